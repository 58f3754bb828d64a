package store

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory implementation of Storer.
type MemStore struct {
	mu        sync.RWMutex
	snapshots map[string][]*Snapshot // versions in ascending order
	now       func() int64
}

// NewMemStore creates a new in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		snapshots: make(map[string][]*Snapshot),
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Close is a no-op for MemStore.
func (s *MemStore) Close() error {
	return nil
}

func (s *MemStore) SaveSnapshot(snap *Snapshot, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(snap, reason)
	return nil
}

func (s *MemStore) appendLocked(snap *Snapshot, reason string) {
	if snap.UpdatedAt == 0 {
		snap.UpdatedAt = s.now()
	}
	versions := s.snapshots[snap.Name]
	if n := len(versions); n > 0 {
		cur := versions[n-1]
		validTo := snap.UpdatedAt
		cur.ValidTo = &validTo
		cur.IsCurrent = false
		snap.Version = cur.Version + 1
		snap.CreatedAt = versions[0].CreatedAt
	} else {
		snap.Version = 1
		if snap.CreatedAt == 0 {
			snap.CreatedAt = snap.UpdatedAt
		}
	}
	snap.ValidFrom = snap.UpdatedAt
	snap.ValidTo = nil
	snap.IsCurrent = true
	snap.ChangeReason = reason
	s.snapshots[snap.Name] = append(versions, snap.clone())
}

func (s *MemStore) GetSnapshot(name string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.snapshots[name]
	if len(versions) == 0 {
		return nil, nil
	}
	return versions[len(versions)-1].clone(), nil
}

func (s *MemStore) GetSnapshotVersion(name string, version int) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.snapshots[name] {
		if v.Version == version {
			return v.clone(), nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetSnapshotAtTime(name string, timestamp int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.snapshots[name]
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v.ValidFrom <= timestamp && (v.ValidTo == nil || *v.ValidTo > timestamp) {
			return v.clone(), nil
		}
	}
	return nil, nil
}

func (s *MemStore) ListSnapshotVersions(name string) ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.snapshots[name]
	result := make([]*Snapshot, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		result = append(result, versions[i].clone())
	}
	return result, nil
}

func (s *MemStore) ListSnapshots() ([]*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Snapshot, 0, len(s.snapshots))
	for _, versions := range s.snapshots {
		result = append(result, versions[len(versions)-1].clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *MemStore) RestoreSnapshotVersion(name string, version int) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old *Snapshot
	for _, v := range s.snapshots[name] {
		if v.Version == version {
			old = v
			break
		}
	}
	if old == nil {
		return nil, fmt.Errorf("%w: %s v%d", ErrSnapshotNotFound, name, version)
	}

	restored := &Snapshot{
		Name:      name,
		Payload:   append([]byte(nil), old.Payload...),
		NodeCount: old.NodeCount,
		EdgeCount: old.EdgeCount,
		UpdatedAt: s.now(),
	}
	s.appendLocked(restored, "restore")
	return restored.clone(), nil
}

func (s *MemStore) DeleteSnapshot(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, name)
	return nil
}

func (s *MemStore) CountSnapshots() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots), nil
}

// Compile-time interface check
var _ Storer = (*MemStore)(nil)
