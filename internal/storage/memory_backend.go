package storage

import (
	"context"
	"errors"
	"sync"
)

// MemoryBackend is an in-memory Backend, used in tests and when no storage
// path is configured.
type MemoryBackend struct {
	mu       sync.RWMutex
	snap     *CatalogSnapshot
	readOnly bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Initialize implements Backend. The path is ignored.
func (m *MemoryBackend) Initialize(_ string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readOnly = readOnly
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

// SaveCatalog implements Backend.
func (m *MemoryBackend) SaveCatalog(_ context.Context, snap CatalogSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readOnly {
		return errors.New("saving catalog: backend is read-only")
	}
	snap.Blocks = append(snap.Blocks[:0:0], snap.Blocks...)
	m.snap = &snap
	return nil
}

// LoadCatalog implements Backend.
func (m *MemoryBackend) LoadCatalog(_ context.Context) (CatalogSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return CatalogSnapshot{}, ErrNoSnapshot
	}
	out := *m.snap
	out.Blocks = append(out.Blocks[:0:0], out.Blocks...)
	return out, nil
}
