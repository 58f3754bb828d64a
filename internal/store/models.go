// Package store keeps a versioned history of graph snapshots.
// Payloads are opaque encoded snapshot documents.
package store

import "errors"

// ErrSnapshotNotFound is returned when restoring a version that does not exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is one version of a named snapshot.
// Uses the temporal table pattern for full version history.
type Snapshot struct {
	Name      string `json:"name"`
	Version   int    `json:"version"`
	Payload   []byte `json:"payload"`
	NodeCount int    `json:"nodeCount"`
	EdgeCount int    `json:"edgeCount"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	// Temporal fields for version tracking
	ValidFrom    int64  `json:"validFrom"`
	ValidTo      *int64 `json:"validTo,omitempty"`
	IsCurrent    bool   `json:"isCurrent"`
	ChangeReason string `json:"changeReason,omitempty"`
}

func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Payload = append([]byte(nil), s.Payload...)
	if s.ValidTo != nil {
		v := *s.ValidTo
		out.ValidTo = &v
	}
	return &out
}

// Storer defines the interface for snapshot history.
// MemStore serves tests and the WASM build; SQLiteStore persists to disk.
type Storer interface {
	// SaveSnapshot stores snap as version 1 of a new name, or as the next
	// version of an existing one. Version, validity and reason are set on snap.
	SaveSnapshot(snap *Snapshot, reason string) error
	// GetSnapshot returns the current version, or nil when the name is unknown.
	GetSnapshot(name string) (*Snapshot, error)
	GetSnapshotVersion(name string, version int) (*Snapshot, error)
	GetSnapshotAtTime(name string, timestamp int64) (*Snapshot, error)
	// ListSnapshotVersions returns every version, newest first.
	ListSnapshotVersions(name string) ([]*Snapshot, error)
	// ListSnapshots returns the current version of every name, by name.
	ListSnapshots() ([]*Snapshot, error)
	// RestoreSnapshotVersion copies an old version forward as a new current one.
	RestoreSnapshotVersion(name string, version int) (*Snapshot, error)
	DeleteSnapshot(name string) error
	CountSnapshots() (int, error)

	// Lifecycle
	Close() error
}
