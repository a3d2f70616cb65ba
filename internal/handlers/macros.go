package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/macrosync/internal/codec"
	"github.com/pandeptwidyaop/macrosync/internal/models"
	"github.com/pandeptwidyaop/macrosync/internal/services"
	"github.com/pandeptwidyaop/macrosync/internal/validation"
)

// MaxMacroNameLength bounds macro names accepted from the console.
const MaxMacroNameLength = 64

var errIndexRange = errors.New("macro index out of range")

// MacroHandler edits the in-memory collection and syncs it with the device.
type MacroHandler struct {
	coordinator     *services.SyncCoordinator
	maxDocumentSize int
}

// NewMacroHandler creates a new MacroHandler instance.
func NewMacroHandler(coordinator *services.SyncCoordinator, maxDocumentSize int64) *MacroHandler {
	return &MacroHandler{coordinator: coordinator, maxDocumentSize: int(maxDocumentSize)}
}

type macroView struct {
	Index int `json:"index"`
	*models.Macro
	TriggerText  string   `json:"trigger_text"`
	Valid        bool     `json:"valid"`
	InvalidStep  int      `json:"invalid_step"`
	StepsSummary []string `json:"steps_summary"`
}

func newMacroView(i int, m *models.Macro) macroView {
	summary := make([]string, 0, len(m.Steps))
	for _, s := range m.Steps {
		summary = append(summary, s.String())
	}
	return macroView{
		Index:        i,
		Macro:        m.Clone(),
		TriggerText:  m.TriggerText(),
		Valid:        m.Valid(),
		InvalidStep:  m.InvalidStep(),
		StepsSummary: summary,
	}
}

// List returns the collection.
// GET /api/macros
func (h *MacroHandler) List(c *gin.Context) {
	var views []macroView
	h.coordinator.View(func(macros []*models.Macro) {
		views = make([]macroView, 0, len(macros))
		for i, m := range macros {
			views = append(views, newMacroView(i, m))
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"macros":       views,
		"count":        len(views),
		"initialized":  h.coordinator.Initialized(),
		"last_message": h.coordinator.LastMessage(),
	})
}

// Document returns the collection encoded as the device would store it.
// GET /api/macros/document
func (h *MacroHandler) Document(c *gin.Context) {
	var text string
	var err error
	h.coordinator.View(func(macros []*models.Macro) {
		text, err = codec.Encode(macros)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(text))
}

// Replace swaps the collection for a document sent by the console. Nothing is
// written to the device until Save.
// PUT /api/macros
func (h *MacroHandler) Replace(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return
	}
	text := string(body)
	if err := validation.ValidateDocument(text, h.maxDocumentSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := codec.Decode(text)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.coordinator.ReplaceMacros(list)

	c.JSON(http.StatusOK, gin.H{"ok": true, "message": fmt.Sprintf("Replaced: %d macros", len(list)), "count": len(list)})
}

type createMacroRequest struct {
	Name string `json:"name"`
}

// Create appends a default macro.
// POST /api/macros
func (h *MacroHandler) Create(c *gin.Context) {
	var req createMacroRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := validation.ValidateMacroName(req.Name, MaxMacroNameLength); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var view macroView
	h.coordinator.Update(func(macros []*models.Macro) []*models.Macro {
		m := models.NewDefaultMacro(len(macros) + 1)
		if req.Name != "" {
			m.Name = req.Name
		}
		macros = append(macros, m)
		view = newMacroView(len(macros)-1, m)
		return macros
	})

	c.JSON(http.StatusCreated, view)
}

type updateMacroRequest struct {
	Name *string `json:"name"`
	Memo *string `json:"memo"`
}

// Update edits a macro's name or memo.
// PATCH /api/macros/:index
func (h *MacroHandler) Update(c *gin.Context) {
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	var req updateMacroRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		if err := validation.ValidateMacroName(*req.Name, MaxMacroNameLength); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	view, err := h.withMacro(index, func(m *models.Macro) error {
		if req.Name != nil {
			m.Name = *req.Name
		}
		if req.Memo != nil {
			m.Memo = *req.Memo
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete removes a macro.
// DELETE /api/macros/:index
func (h *MacroHandler) Delete(c *gin.Context) {
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}

	var removed *models.Macro
	h.coordinator.Update(func(macros []*models.Macro) []*models.Macro {
		if index >= len(macros) {
			return nil
		}
		removed = macros[index]
		return append(macros[:index:index], macros[index+1:]...)
	})
	if removed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errIndexRange.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "macro deleted", "name": removed.Name})
}

type moveMacroRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// Move swaps a macro with its neighbour.
// POST /api/macros/:index/move
func (h *MacroHandler) Move(c *gin.Context) {
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	var req moveMacroRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newIndex := -1
	h.coordinator.Update(func(macros []*models.Macro) []*models.Macro {
		if index < len(macros) {
			newIndex = models.MoveMacro(macros, index, req.Delta)
		}
		return nil
	})
	if newIndex < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": errIndexRange.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"index": newIndex, "moved": newIndex != index})
}

type triggerRequest struct {
	Keys []string `json:"keys"`
}

// SetTrigger changes a macro's hotkey, refusing combinations already bound
// to another macro.
// PUT /api/macros/:index/trigger
func (h *MacroHandler) SetTrigger(c *gin.Context) {
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var conflict *models.Macro
	var view macroView
	found := false
	h.coordinator.Update(func(macros []*models.Macro) []*models.Macro {
		if index >= len(macros) {
			return nil
		}
		found = true
		m := macros[index]
		if conflict = models.HotkeyConflict(macros, m, req.Keys); conflict != nil {
			return nil
		}
		m.TriggerKeys = append([]string{}, req.Keys...)
		view = newMacroView(index, m)
		return nil
	})

	switch {
	case !found:
		c.JSON(http.StatusNotFound, gin.H{"error": errIndexRange.Error()})
	case conflict != nil:
		c.JSON(http.StatusConflict, gin.H{
			"error":    "hotkey already used by " + conflict.Name,
			"conflict": conflict.Name,
		})
	default:
		c.JSON(http.StatusOK, view)
	}
}

type stepRequest struct {
	After      *int   `json:"after"`
	Type       string `json:"type" binding:"required"`
	Key        string `json:"key"`
	DurationMs int    `json:"duration_ms"`
	MinMs      int    `json:"min_ms"`
	MaxMs      int    `json:"max_ms"`
}

// AddStep inserts a step after the given position, or appends it.
// POST /api/macros/:index/steps
func (h *MacroHandler) AddStep(c *gin.Context) {
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	var req stepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	step := &models.Step{
		Type:       models.StepType(req.Type),
		Key:        req.Key,
		DurationMs: req.DurationMs,
		MinMs:      req.MinMs,
		MaxMs:      req.MaxMs,
	}
	if err := step.RangeError(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	after := -1
	if req.After != nil {
		after = *req.After
	}

	stepIndex := -1
	view, err := h.withMacro(index, func(m *models.Macro) error {
		stepIndex = m.InsertStepAfter(after, step)
		return nil
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"step_index": stepIndex, "macro": view})
}

// DeleteStep removes one step of a macro.
// DELETE /api/macros/:index/steps/:step
func (h *MacroHandler) DeleteStep(c *gin.Context) {
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	stepIndex, ok := paramIndex(c, "step")
	if !ok {
		return
	}

	selected := -1
	view, err := h.withMacro(index, func(m *models.Macro) error {
		next, removed := m.RemoveStep(stepIndex)
		if !removed {
			return errors.New("step index out of range")
		}
		selected = next
		return nil
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": selected, "macro": view})
}

// withMacro runs fn on the macro at index under the collection lock.
func (h *MacroHandler) withMacro(index int, fn func(m *models.Macro) error) (macroView, error) {
	var view macroView
	err := errIndexRange
	h.coordinator.Update(func(macros []*models.Macro) []*models.Macro {
		if index >= len(macros) {
			return nil
		}
		if err = fn(macros[index]); err == nil {
			view = newMacroView(index, macros[index])
		}
		return nil
	})
	return view, err
}

type refreshRequest struct {
	File string `json:"file"`
}

// Refresh re-reads the active document, or the given file, from the device.
// POST /api/macros/refresh
func (h *MacroHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	out := h.coordinator.RefreshFrom(c.Request.Context(), req.File)
	respondOutcome(c, out, gin.H{"count": len(h.coordinator.Macros())})
}

// Save writes the collection to the device's active document.
// POST /api/macros/save
func (h *MacroHandler) Save(c *gin.Context) {
	respondOutcome(c, h.coordinator.SaveMacros(c.Request.Context()))
}
