package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/macrosync/internal/models"
	"github.com/pandeptwidyaop/macrosync/internal/services"
	"github.com/pandeptwidyaop/macrosync/internal/version"
)

// StatusHandler reports device connectivity and coordinator state.
type StatusHandler struct {
	monitor     *services.ConnectionMonitor
	coordinator *services.SyncCoordinator
	target      string
}

// NewStatusHandler creates a new StatusHandler instance.
func NewStatusHandler(monitor *services.ConnectionMonitor, coordinator *services.SyncCoordinator, target string) *StatusHandler {
	return &StatusHandler{monitor: monitor, coordinator: coordinator, target: target}
}

// Status represents the status response.
type Status struct {
	Target             string `json:"target"`
	MonitorRunning     bool   `json:"monitor_running"`
	Connected          bool   `json:"connected"`
	SecondaryConnected bool   `json:"secondary_connected"`
	Initialized        bool   `json:"initialized"`
	LastMessage        string `json:"last_message"`
	MacroCount         int    `json:"macro_count"`
	InvalidMacro       string `json:"invalid_macro,omitempty"`
	Platform           string `json:"platform"`
	Version            string `json:"version"`
}

// Status returns the current device and coordinator status.
// GET /api/status
func (h *StatusHandler) Status(c *gin.Context) {
	status := Status{
		Target:      h.target,
		Initialized: h.coordinator.Initialized(),
		LastMessage: h.coordinator.LastMessage(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		Version:     version.Version,
	}
	h.coordinator.View(func(macros []*models.Macro) {
		status.MacroCount = len(macros)
		if m, _ := models.FirstInvalid(macros); m != nil {
			status.InvalidMacro = m.Name
		}
	})
	if h.monitor != nil {
		status.MonitorRunning = h.monitor.Running()
		status.Connected = h.monitor.Connected()
		status.SecondaryConnected = h.monitor.SecondaryConnected()
	}
	c.JSON(http.StatusOK, status)
}
