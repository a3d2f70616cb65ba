package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/handlers"
	"github.com/pandeptwidyaop/macrosync/internal/middleware"
	"github.com/pandeptwidyaop/macrosync/internal/services"
)

// Dependencies are the services the API is built on. Monitor, Snapshots,
// Audit and RateLimiter are optional.
type Dependencies struct {
	Coordinator *services.SyncCoordinator
	Monitor     *services.ConnectionMonitor
	Hub         *services.EventHub
	Auth        *services.AuthService
	Audit       *services.AuditService
	Snapshots   *services.SnapshotStore
	RateLimiter *middleware.RateLimiter
	// Target is the user@host label shown in status.
	Target string
	// TerminalBinary and TerminalArgs start the interactive device shell.
	TerminalBinary string
	TerminalArgs   []string
}

func New(cfg *config.Config, deps Dependencies, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())

	prefix := r.Group(cfg.Server.PathPrefix)

	statusHandler := handlers.NewStatusHandler(deps.Monitor, deps.Coordinator, deps.Target)
	versionHandler := handlers.NewVersionHandler()
	macroHandler := handlers.NewMacroHandler(deps.Coordinator, cfg.Server.MaxDocumentSize)
	presetHandler := handlers.NewPresetHandler(deps.Coordinator)
	eventHandler := handlers.NewEventHandler(deps.Hub, deps.Monitor, logger)
	terminalHandler := handlers.NewTerminalHandler(&cfg.Terminal, deps.TerminalBinary, deps.TerminalArgs, logger)

	api := prefix.Group("/api")
	{
		// Public version endpoint
		api.GET("/version", versionHandler.Get)

		protected := api.Group("")
		if deps.RateLimiter != nil {
			protected.Use(deps.RateLimiter.Middleware())
		}
		protected.Use(middleware.TokenRequired(deps.Auth))
		protected.Use(middleware.BodySizeLimit(cfg.Server.MaxDocumentSize))
		{
			protected.GET("/status", statusHandler.Status)

			protected.GET("/macros", macroHandler.List)
			protected.PUT("/macros", macroHandler.Replace)
			protected.POST("/macros", macroHandler.Create)
			protected.GET("/macros/document", macroHandler.Document)
			protected.POST("/macros/refresh", macroHandler.Refresh)
			protected.POST("/macros/save", macroHandler.Save)
			protected.PATCH("/macros/:index", macroHandler.Update)
			protected.DELETE("/macros/:index", macroHandler.Delete)
			protected.POST("/macros/:index/move", macroHandler.Move)
			protected.PUT("/macros/:index/trigger", macroHandler.SetTrigger)
			protected.POST("/macros/:index/steps", macroHandler.AddStep)
			protected.DELETE("/macros/:index/steps/:step", macroHandler.DeleteStep)

			protected.GET("/presets", presetHandler.List)
			protected.POST("/presets", presetHandler.Save)
			protected.POST("/presets/:name/load", presetHandler.Load)
			protected.POST("/presets/:name/apply", presetHandler.Apply)
			protected.DELETE("/presets/:name", presetHandler.Delete)

			if deps.Audit != nil {
				auditHandler := handlers.NewAuditHandler(deps.Audit)
				protected.GET("/audit", auditHandler.List)
			}
			if deps.Snapshots != nil {
				snapshotHandler := handlers.NewSnapshotHandler(deps.Snapshots, deps.Coordinator)
				protected.GET("/snapshots", snapshotHandler.List)
				protected.GET("/snapshots/:id", snapshotHandler.Get)
				protected.POST("/snapshots/:id/restore", snapshotHandler.Restore)
			}

			protected.GET("/events", eventHandler.WebSocket)
			protected.GET("/events/stream", eventHandler.Stream)
			protected.GET("/terminal/ws", terminalHandler.HandleWebSocket)
		}
	}

	// Redirect root to path prefix (only if prefix is not empty)
	if cfg.Server.PathPrefix != "" && cfg.Server.PathPrefix != "/" {
		r.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, cfg.Server.PathPrefix+"/api/status")
		})
	}

	return r
}
