//go:build !js

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore is the SQLite-backed snapshot history.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// schema stores snapshots with temporal versioning.
// Composite primary key (name, version) keeps full history.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    name TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    payload BLOB NOT NULL,
    node_count INTEGER NOT NULL DEFAULT 0,
    edge_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    valid_from INTEGER NOT NULL,
    valid_to INTEGER,
    is_current INTEGER DEFAULT 1,
    change_reason TEXT,
    PRIMARY KEY (name, version)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_current ON snapshots(name) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_snapshots_history ON snapshots(name, valid_from);
`

const snapshotColumns = `name, version, payload, node_count, edge_count, created_at, updated_at,
	valid_from, valid_to, is_current, change_reason`

// NewSQLiteStore creates a new in-memory SQLite store.
func NewSQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStoreWithDSN(":memory:")
}

// NewSQLiteStoreWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewSQLiteStoreWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a second pooled connection to ":memory:" would see an empty database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveSnapshot inserts the next version of snap.Name.
func (s *SQLiteStore) SaveSnapshot(snap *Snapshot, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := appendVersion(tx, snap, reason); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func appendVersion(tx *sql.Tx, snap *Snapshot, reason string) error {
	if snap.UpdatedAt == 0 {
		snap.UpdatedAt = time.Now().UnixMilli()
	}
	if snap.Payload == nil {
		snap.Payload = []byte{}
	}

	var currentVersion int
	var createdAt int64
	err := tx.QueryRow(`
		SELECT version, created_at FROM snapshots
		WHERE name = ? AND is_current = 1
	`, snap.Name).Scan(&currentVersion, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		snap.Version = 1
		if snap.CreatedAt == 0 {
			snap.CreatedAt = snap.UpdatedAt
		}
	case err != nil:
		return err
	default:
		// Close old current version
		if _, err := tx.Exec(`
			UPDATE snapshots SET valid_to = ?, is_current = 0
			WHERE name = ? AND is_current = 1
		`, snap.UpdatedAt, snap.Name); err != nil {
			return err
		}
		snap.Version = currentVersion + 1
		snap.CreatedAt = createdAt
	}

	snap.ValidFrom = snap.UpdatedAt
	snap.ValidTo = nil
	snap.IsCurrent = true
	snap.ChangeReason = reason

	_, err = tx.Exec(`
		INSERT INTO snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, snap.Name, snap.Version, snap.Payload, snap.NodeCount, snap.EdgeCount,
		snap.CreatedAt, snap.UpdatedAt, snap.ValidFrom, nil, 1, snap.ChangeReason)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	var isCurrent int
	var validTo sql.NullInt64
	var reason sql.NullString

	if err := row.Scan(
		&snap.Name, &snap.Version, &snap.Payload, &snap.NodeCount, &snap.EdgeCount,
		&snap.CreatedAt, &snap.UpdatedAt, &snap.ValidFrom, &validTo, &isCurrent, &reason,
	); err != nil {
		return nil, err
	}

	snap.IsCurrent = isCurrent != 0
	snap.ChangeReason = reason.String
	if validTo.Valid {
		snap.ValidTo = &validTo.Int64
	}
	return &snap, nil
}

func (s *SQLiteStore) queryOne(query string, args ...any) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, err := scanSnapshot(s.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

func (s *SQLiteStore) queryMany(query string, args ...any) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

// GetSnapshot retrieves the current version of a snapshot.
func (s *SQLiteStore) GetSnapshot(name string) (*Snapshot, error) {
	return s.queryOne(`SELECT `+snapshotColumns+` FROM snapshots WHERE name = ? AND is_current = 1`, name)
}

// GetSnapshotVersion retrieves a specific version.
func (s *SQLiteStore) GetSnapshotVersion(name string, version int) (*Snapshot, error) {
	return s.queryOne(`SELECT `+snapshotColumns+` FROM snapshots WHERE name = ? AND version = ?`, name, version)
}

// GetSnapshotAtTime retrieves the version that was current at timestamp.
func (s *SQLiteStore) GetSnapshotAtTime(name string, timestamp int64) (*Snapshot, error) {
	return s.queryOne(`
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE name = ?
		  AND valid_from <= ?
		  AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY version DESC LIMIT 1
	`, name, timestamp, timestamp)
}

// ListSnapshotVersions returns all versions of a snapshot, newest first.
func (s *SQLiteStore) ListSnapshotVersions(name string) ([]*Snapshot, error) {
	return s.queryMany(`SELECT `+snapshotColumns+` FROM snapshots WHERE name = ? ORDER BY version DESC`, name)
}

// ListSnapshots returns the current version of every snapshot.
func (s *SQLiteStore) ListSnapshots() ([]*Snapshot, error) {
	return s.queryMany(`SELECT ` + snapshotColumns + ` FROM snapshots WHERE is_current = 1 ORDER BY name`)
}

// RestoreSnapshotVersion restores a previous version by creating a new
// version with the old payload.
func (s *SQLiteStore) RestoreSnapshotVersion(name string, version int) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	restored := &Snapshot{Name: name}
	err = tx.QueryRow(`
		SELECT payload, node_count, edge_count FROM snapshots
		WHERE name = ? AND version = ?
	`, name, version).Scan(&restored.Payload, &restored.NodeCount, &restored.EdgeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s v%d", ErrSnapshotNotFound, name, version)
	}
	if err != nil {
		return nil, err
	}

	if err := appendVersion(tx, restored, "restore"); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return restored, nil
}

// DeleteSnapshot removes every version of a snapshot.
func (s *SQLiteStore) DeleteSnapshot(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM snapshots WHERE name = ?`, name)
	return err
}

// CountSnapshots returns the number of distinct snapshot names.
func (s *SQLiteStore) CountSnapshots() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM snapshots WHERE is_current = 1").Scan(&count)
	return count, err
}

// Compile-time interface check
var _ Storer = (*SQLiteStore)(nil)
