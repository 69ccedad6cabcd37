package cache

import (
	"context"
	"sync"
)

// MemoryPositions implements PositionCache in process.
type MemoryPositions struct {
	mu   sync.RWMutex
	byID map[int64]Position
}

// NewMemoryPositions creates an empty in-process position cache.
func NewMemoryPositions() *MemoryPositions {
	return &MemoryPositions{byID: make(map[int64]Position)}
}

// Set stores p unless a newer position is already cached.
func (m *MemoryPositions) Set(_ context.Context, p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.byID[p.DriverID]; ok && cur.RecordedAt.After(p.RecordedAt) {
		return nil
	}
	m.byID[p.DriverID] = p
	return nil
}

// Get returns nil when nothing is cached for the driver.
func (m *MemoryPositions) Get(_ context.Context, driverID int64) (*Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[driverID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}
