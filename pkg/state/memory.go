package state

import (
	"context"
	"sync"

	"ledgersync/pkg/syncer"
)

// MemoryStore keeps the watermark in process memory. Useful for tests and
// one-shot runs that resume within the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	current syncer.Watermark
	present bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored watermark.
func (s *MemoryStore) Load(ctx context.Context) (syncer.Watermark, bool, error) {
	if err := ctx.Err(); err != nil {
		return syncer.Watermark{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.present, nil
}

// Save replaces the stored watermark.
func (s *MemoryStore) Save(ctx context.Context, w syncer.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = w
	s.present = true
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
