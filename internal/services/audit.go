package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/macrosync/internal/database"
)

// AuditService records every sync operation performed against the device.
type AuditService struct {
	db *database.DB
}

// NewAuditService creates a new AuditService instance.
func NewAuditService(db *database.DB) *AuditService {
	return &AuditService{db: db}
}

// AuditLog represents an audit log entry to be recorded.
type AuditLog struct {
	Actor     string
	IPAddress string
	Action    string
	Target    string
	Message   string
	Success   bool
}

// Log records an audit log entry to the database.
func (s *AuditService) Log(log AuditLog) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_logs (id, actor, ip_address, action, target, success, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), log.Actor, log.IPAddress, log.Action, log.Target, log.Success, log.Message)
	return err
}

// AuditLogEntry represents an audit log record from the database.
type AuditLogEntry struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	IPAddress string `json:"ip_address"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	Success   bool   `json:"success"`
}

// GetLogs retrieves audit logs with pagination, newest first.
func (s *AuditService) GetLogs(limit, offset int) ([]AuditLogEntry, error) {
	if limit == 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, actor, ip_address, action, target, success, message, created_at
		FROM audit_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	// Initialize empty slice instead of nil to return [] instead of null in JSON
	logs := make([]AuditLogEntry, 0)
	for rows.Next() {
		var log AuditLogEntry
		var ipAddress, target, message *string

		if err := rows.Scan(
			&log.ID,
			&log.Actor,
			&ipAddress,
			&log.Action,
			&target,
			&log.Success,
			&message,
			&log.CreatedAt,
		); err != nil {
			continue
		}

		if ipAddress != nil {
			log.IPAddress = *ipAddress
		}
		if target != nil {
			log.Target = *target
		}
		if message != nil {
			log.Message = *message
		}

		logs = append(logs, log)
	}

	return logs, rows.Err()
}

// Actor identifies who triggered an operation.
type Actor struct {
	Name string
	IP   string
}

type actorKey struct{}

// WithActor attaches the caller identity to ctx for audit records.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller identity, or a "system" actor.
func ActorFromContext(ctx context.Context) Actor {
	if ctx != nil {
		if a, ok := ctx.Value(actorKey{}).(Actor); ok {
			return a
		}
	}
	return Actor{Name: "system"}
}
