package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ledgersync/pkg/syncer"
)

// FileStore persists the watermark as a small JSON file. Writes go through
// a temp file and rename so a crash mid-write cannot corrupt the state.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at the given path, creating the parent
// directory if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state: file path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: creating directory %s: %w", dir, err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the stored watermark. A missing file means no watermark yet.
func (s *FileStore) Load(ctx context.Context) (syncer.Watermark, bool, error) {
	if err := ctx.Err(); err != nil {
		return syncer.Watermark{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return syncer.Watermark{}, false, nil
	}
	if err != nil {
		return syncer.Watermark{}, false, fmt.Errorf("state: reading %s: %w", s.path, err)
	}

	var w syncer.Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		return syncer.Watermark{}, false, fmt.Errorf("state: decoding %s: %w", s.path, err)
	}
	return w, !w.IsZero(), nil
}

// Save atomically replaces the stored watermark.
func (s *FileStore) Save(ctx context.Context, w syncer.Watermark) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding watermark: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("state: replacing %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
