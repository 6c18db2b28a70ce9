package state

import (
	"context"
	"sync"
	"time"

	"tokcache/internal/models"
)

// MemoryStore keeps fetch clocks and kill-switch flags in process memory.
// It backs the "file" state backend and is snapshotted to disk by the
// scheduler.
type MemoryStore struct {
	mu      sync.RWMutex
	clocks  map[string]time.Time
	enabled map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clocks:  make(map[string]time.Time),
		enabled: make(map[string]bool),
	}
}

func (m *MemoryStore) FetchingEnabled(_ context.Context, ownerID string) (bool, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.enabled[ownerID]
	return v, ok, nil
}

func (m *MemoryStore) SetFetchingEnabled(_ context.Context, ownerID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled[ownerID] = enabled
	return nil
}

func (m *MemoryStore) LastFetchAt(_ context.Context, clockKey string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.clocks[clockKey]
	return t, ok, nil
}

func (m *MemoryStore) ReserveFetch(_ context.Context, clockKey string, now, threshold time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.clocks[clockKey]; ok && last.After(threshold) {
		return false, nil
	}
	m.clocks[clockKey] = now
	return true, nil
}

func (m *MemoryStore) Snapshot() *models.FetchStateSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &models.FetchStateSnapshot{
		Version: models.FetchStateSnapshotVersion,
		Clocks:  make(map[string]time.Time, len(m.clocks)),
		Enabled: make(map[string]bool, len(m.enabled)),
		SavedAt: time.Now().UTC(),
	}
	for k, v := range m.clocks {
		snap.Clocks[k] = v
	}
	for k, v := range m.enabled {
		snap.Enabled[k] = v
	}
	return snap
}

// Restore merges a snapshot into the store. A clock only moves forward, so
// restoring an older snapshot never shortens a running cooldown.
func (m *MemoryStore) Restore(snap *models.FetchStateSnapshot) {
	if snap == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range snap.Clocks {
		if cur, ok := m.clocks[k]; !ok || v.After(cur) {
			m.clocks[k] = v
		}
	}
	for k, v := range snap.Enabled {
		m.enabled[k] = v
	}
}
