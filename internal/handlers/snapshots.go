package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/macrosync/internal/codec"
	"github.com/pandeptwidyaop/macrosync/internal/services"
)

// SnapshotHandler exposes the document history.
type SnapshotHandler struct {
	store       *services.SnapshotStore
	coordinator *services.SyncCoordinator
}

// NewSnapshotHandler creates a new SnapshotHandler instance.
func NewSnapshotHandler(store *services.SnapshotStore, coordinator *services.SyncCoordinator) *SnapshotHandler {
	return &SnapshotHandler{store: store, coordinator: coordinator}
}

// List returns snapshots without their documents.
// GET /api/snapshots
func (h *SnapshotHandler) List(c *gin.Context) {
	limit, offset := pagination(c)

	snaps, err := h.store.List(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snaps)
}

// Get returns one snapshot including its document.
// GET /api/snapshots/:id
func (h *SnapshotHandler) Get(c *gin.Context) {
	snap, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Restore replaces the in-memory collection with a stored document. The
// device is untouched until the operator saves.
// POST /api/snapshots/:id/restore
func (h *SnapshotHandler) Restore(c *gin.Context) {
	snap, ok := h.lookup(c)
	if !ok {
		return
	}

	list, err := codec.Decode(snap.Document)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	h.coordinator.ReplaceMacros(list)

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"message": fmt.Sprintf("Restored snapshot: %s (%d macros)", snap.ID, len(list)),
		"count":   len(list),
	})
}

func (h *SnapshotHandler) lookup(c *gin.Context) (*services.Snapshot, bool) {
	snap, err := h.store.Get(c.Param("id"))
	if errors.Is(err, services.ErrSnapshotNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return snap, true
}
