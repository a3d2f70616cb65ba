package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/middleware"
	"github.com/pandeptwidyaop/macrosync/internal/router"
	"github.com/pandeptwidyaop/macrosync/internal/services"
	"github.com/pandeptwidyaop/macrosync/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the console server",
	Long: `Starts the connection monitor and the HTTP console API. The active
document is fetched once per connected session.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a := newApp(cfg, logger)
	if err := a.openStores(cfg, logger); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer a.close(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := services.NewEventHub(32, logger)

	var monitor *services.ConnectionMonitor
	if cfg.Monitor.IsEnabled() {
		monitor = services.NewConnectionMonitor(a.executor, services.MonitorOptions{
			Interval:           cfg.Monitor.GetInterval(),
			ProbeTimeout:       cfg.Monitor.GetProbeTimeout(),
			ProbeCommand:       cfg.Monitor.ProbeCommand,
			ConnectedMarker:    cfg.Monitor.ConnectedMarker,
			DisconnectedMarker: cfg.Monitor.DisconnectedMarker,
		}, logger)
		monitor.OnConnectionChanged(forwardTransitions(ctx, a.coordinator.HandleConnectionChanged))
	}
	hub.Attach(monitor, a.coordinator)

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
		defer limiter.Close()
	}

	engine := router.New(cfg, router.Dependencies{
		Coordinator:    a.coordinator,
		Monitor:        monitor,
		Hub:            hub,
		Auth:           services.NewAuthService(cfg.Auth),
		Audit:          a.audit,
		Snapshots:      a.snapshots,
		RateLimiter:    limiter,
		Target:         a.executor.Target(),
		TerminalBinary: a.executor.Binary(),
		TerminalArgs:   a.executor.InteractiveArgs(),
	}, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if monitor != nil {
		monitor.Start()
		defer monitor.Close()
	} else {
		// Without a monitor nobody reports the first connection.
		go a.coordinator.InitOnce(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("macrosync starting",
			zap.String("version", version.Version),
			zap.String("addr", addr),
			zap.String("path_prefix", cfg.Server.PathPrefix),
			zap.String("device", a.executor.Target()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// forwardTransitions hands connection changes to a single goroutine that
// applies them in order, off the poll goroutine, so a slow fetch never
// delays the next probe. Once ctx is done changes are dropped instead of
// blocking the caller.
func forwardTransitions(ctx context.Context, handle func(context.Context, bool)) func(bool) {
	transitions := make(chan bool, 8)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case connected := <-transitions:
				handle(ctx, connected)
			}
		}
	}()
	return func(connected bool) {
		select {
		case transitions <- connected:
		case <-ctx.Done():
		}
	}
}
