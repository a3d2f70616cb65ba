package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/database"
	"github.com/pandeptwidyaop/macrosync/internal/remote"
	"github.com/pandeptwidyaop/macrosync/internal/services"
)

// app holds the services shared by every command.
type app struct {
	executor    *remote.Executor
	coordinator *services.SyncCoordinator
	db          *database.DB
	audit       *services.AuditService
	snapshots   *services.SnapshotStore
}

func newApp(cfg *config.Config, logger *zap.Logger) *app {
	executor := remote.New(remote.Config{
		Binary:         cfg.Remote.Binary,
		Host:           cfg.Remote.Host,
		User:           cfg.Remote.User,
		Port:           cfg.Remote.Port,
		IdentityFile:   cfg.Remote.IdentityFile,
		ConnectTimeout: cfg.Remote.GetConnectTimeout(),
		ExtraOptions:   cfg.Remote.Options,
		DefaultTimeout: cfg.Remote.GetWriteTimeout(),
	}, logger)

	coordinator := services.NewSyncCoordinator(executor, services.NewPresetPolicy(cfg.Store), services.SyncOptions{
		ReadTimeout:  cfg.Remote.GetReadTimeout(),
		WriteTimeout: cfg.Remote.GetWriteTimeout(),
		ApplyMode:    cfg.Store.ApplyMode,
		CommandFIFO:  cfg.Store.CommandFIFO,
	}, logger)

	return &app{executor: executor, coordinator: coordinator}
}

// openStores attaches the audit log and snapshot history. Commands keep
// working without them when the database cannot be opened.
func (a *app) openStores(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		return errors.Join(err, db.Close())
	}

	keep := cfg.Database.SnapshotKeep
	if keep < 0 {
		keep = 0
	}
	a.db = db
	a.audit = services.NewAuditService(db)
	a.snapshots = services.NewSnapshotStore(db, keep)
	a.coordinator.SetAuditRecorder(a.audit)
	a.coordinator.SetSnapshotSink(a.snapshots)
	logger.Debug("database ready", zap.String("path", cfg.Database.Path))
	return nil
}

func (a *app) close(logger *zap.Logger) {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.Warn("error closing database", zap.Error(err))
	}
}

// outcomeErr turns a failed outcome into a command error.
func outcomeErr(out services.Outcome) error {
	if out.OK {
		return nil
	}
	return errors.New(out.Message)
}
