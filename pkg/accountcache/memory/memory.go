// Package memory provides an in-process account store with TTL expiry and
// LRU eviction.
package memory

import (
	"context"
	"sync"
	"time"

	"ledgersync/pkg/ledger"
)

type entry struct {
	account    ledger.Account
	expiresAt  time.Time // zero means no expiry
	accessedAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Config holds configuration for the memory store.
type Config struct {
	// MaxEntries caps the store size; the least recently used entry is
	// evicted past the cap. Zero means unlimited.
	MaxEntries int

	// CleanupInterval is how often expired entries are swept in the
	// background. Zero disables the sweeper; expired entries still
	// drop lazily on access.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default memory store configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
	}
}

// Store is an in-memory account store. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*entry
	config Config

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a memory store and starts the background sweeper if
// configured.
func New(config Config) *Store {
	s := &Store{
		data:   make(map[string]*entry),
		config: config,
		stop:   make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		s.wg.Add(1)
		go s.sweep()
	}
	return s
}

// Get returns the account for id if present and unexpired.
func (s *Store) Get(ctx context.Context, id string) (ledger.Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Account{}, false, err
	}

	now := time.Now()

	s.mu.RLock()
	e, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return ledger.Account{}, false, nil
	}

	if e.expired(now) {
		s.mu.Lock()
		// Re-check: a Set may have replaced the entry since the read.
		if cur, ok := s.data[id]; ok && cur.expired(now) {
			delete(s.data, id)
		}
		s.mu.Unlock()
		return ledger.Account{}, false, nil
	}

	s.mu.Lock()
	e.accessedAt = now
	account := e.account
	s.mu.Unlock()
	return account, true, nil
}

// Set stores an account snapshot, replacing any existing entry wholesale.
func (s *Store) Set(ctx context.Context, id string, account ledger.Account, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	e := &entry{account: account, accessedAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[id]; !exists && s.config.MaxEntries > 0 && len(s.data) >= s.config.MaxEntries {
		s.evictOldestLocked()
	}
	s.data[id] = e
	return nil
}

// evictOldestLocked removes the least recently accessed entry. Caller holds
// the write lock.
func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, e := range s.data {
		if oldestID == "" || e.accessedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = e.accessedAt
		}
	}
	if oldestID != "" {
		delete(s.data, oldestID)
	}
}

// Delete removes the entry for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data, id)
	s.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = make(map[string]*entry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included until swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close stops the background sweeper.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}

func (s *Store) sweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, e := range s.data {
				if e.expired(now) {
					delete(s.data, id)
				}
			}
			s.mu.Unlock()
		}
	}
}
