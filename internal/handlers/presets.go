package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/macrosync/internal/services"
)

// PresetHandler manages preset files on the device.
type PresetHandler struct {
	coordinator *services.SyncCoordinator
}

// NewPresetHandler creates a new PresetHandler instance.
func NewPresetHandler(coordinator *services.SyncCoordinator) *PresetHandler {
	return &PresetHandler{coordinator: coordinator}
}

type presetView struct {
	File      string `json:"file"`
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
}

// List returns the preset files found on the device.
// GET /api/presets
func (h *PresetHandler) List(c *gin.Context) {
	files, out := h.coordinator.ListPresetFiles(c.Request.Context())
	policy := h.coordinator.Policy()

	presets := make([]presetView, 0, len(files))
	for _, f := range files {
		presets = append(presets, presetView{
			File:      f,
			Name:      policy.DisplayName(f),
			Protected: policy.IsProtected(f),
		})
	}
	respondOutcome(c, out, gin.H{"presets": presets})
}

type savePresetRequest struct {
	Name  string `json:"name"`
	Apply bool   `json:"apply"`
}

// Save writes the collection as a preset, optionally applying it.
// POST /api/presets
func (h *PresetHandler) Save(c *gin.Context) {
	var req savePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	respondOutcome(c, h.coordinator.SavePreset(c.Request.Context(), req.Name, req.Apply))
}

// Load reads a preset into the collection.
// POST /api/presets/:name/load
func (h *PresetHandler) Load(c *gin.Context) {
	out := h.coordinator.LoadPreset(c.Request.Context(), c.Param("name"))
	respondOutcome(c, out, gin.H{"count": len(h.coordinator.Macros())})
}

// Apply makes a preset the device's active document.
// POST /api/presets/:name/apply
func (h *PresetHandler) Apply(c *gin.Context) {
	respondOutcome(c, h.coordinator.ApplyPreset(c.Request.Context(), c.Param("name")))
}

// Delete removes a preset file.
// DELETE /api/presets/:name
func (h *PresetHandler) Delete(c *gin.Context) {
	respondOutcome(c, h.coordinator.DeletePreset(c.Request.Context(), c.Param("name")))
}
