package database

import (
	"database/sql"
	"fmt"
)

type migration struct {
	name string
	up   func(*sql.DB) error
}

func execSQL(query string) func(*sql.DB) error {
	return func(db *sql.DB) error {
		_, err := db.Exec(query)
		return err
	}
}

var migrations = []migration{
	{"create_audit_logs_table", execSQL(`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL DEFAULT '',
		ip_address TEXT,
		action TEXT NOT NULL,
		target TEXT,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)},

	{"create_snapshots_table", execSQL(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		document TEXT NOT NULL,
		macro_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)},

	{"create_audit_logs_created_at_index", execSQL(`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`)},
	{"create_snapshots_created_at_index", execSQL(`CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots(created_at)`)},
	{"add_snapshots_checksum_column", addSnapshotsChecksumColumn},
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration TEXT UNIQUE NOT NULL,
		batch INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func hasMigrationRun(db *sql.DB, name string) (bool, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM migrations WHERE migration = ?`, name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func recordMigration(db *sql.DB, name string, batch int) error {
	_, err := db.Exec(`INSERT INTO migrations (migration, batch) VALUES (?, ?)`, name, batch)
	return err
}

func nextBatch(db *sql.DB) (int, error) {
	var batch sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(batch) FROM migrations`).Scan(&batch); err != nil {
		return 0, err
	}
	return int(batch.Int64) + 1, nil
}

func runMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}
	batch, err := nextBatch(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		done, err := hasMigrationRun(db, m.name)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if err := m.up(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if err := recordMigration(db, m.name, batch); err != nil {
			return err
		}
	}
	return nil
}

// addSnapshotsChecksumColumn adds the checksum column to snapshot tables
// created before it existed. Safe to run more than once.
func addSnapshotsChecksumColumn(db *sql.DB) error {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('snapshots') WHERE name = 'checksum'`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE snapshots ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`)
	return err
}
