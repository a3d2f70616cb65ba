package services

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"

	"github.com/pandeptwidyaop/macrosync/internal/database"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is a copy of a document as it was read from or written to the device.
type Snapshot struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Document   string `json:"document,omitempty"`
	Checksum   string `json:"checksum"`
	MacroCount int    `json:"macro_count"`
	CreatedAt  string `json:"created_at"`
}

// SnapshotStore keeps document history in SQLite.
type SnapshotStore struct {
	db   *database.DB
	keep int
}

// NewSnapshotStore creates a store that retains at most keep snapshots
// (zero keeps everything).
func NewSnapshotStore(db *database.DB, keep int) *SnapshotStore {
	return &SnapshotStore{db: db, keep: keep}
}

// Save stores a document. Identical consecutive documents are stored once.
func (s *SnapshotStore) Save(source, document string, macroCount int) (*Snapshot, error) {
	sum := sha256.Sum256([]byte(document))
	checksum := hex.EncodeToString(sum[:])

	if latest, err := s.latest(); err == nil && latest.Checksum == checksum {
		return latest, nil
	}

	id := uuid.New().String()
	_, err := s.db.Exec(
		"INSERT INTO snapshots (id, source, document, macro_count, checksum) VALUES (?, ?, ?, ?, ?)",
		id, source, document, macroCount, checksum,
	)
	if err != nil {
		return nil, err
	}

	if s.keep > 0 {
		if _, err := s.Prune(s.keep); err != nil {
			return nil, err
		}
	}
	return s.Get(id)
}

func (s *SnapshotStore) latest() (*Snapshot, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1").Scan(&id)
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Get returns a snapshot including its document.
func (s *SnapshotStore) Get(id string) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRow(
		"SELECT id, source, document, checksum, macro_count, created_at FROM snapshots WHERE id = ?",
		id,
	).Scan(&snap.ID, &snap.Source, &snap.Document, &snap.Checksum, &snap.MacroCount, &snap.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns snapshots newest first, without their documents.
func (s *SnapshotStore) List(limit, offset int) ([]Snapshot, error) {
	if limit == 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, source, checksum, macro_count, created_at
		FROM snapshots
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snaps := make([]Snapshot, 0)
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Source, &snap.Checksum, &snap.MacroCount, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Prune deletes all but the newest keep snapshots.
func (s *SnapshotStore) Prune(keep int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM snapshots WHERE rowid NOT IN (
			SELECT rowid FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
