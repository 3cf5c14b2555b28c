// Package state persists sync watermarks between invocations, so an
// incremental sync can pick up where the previous run ended.
package state

import (
	"context"

	"ledgersync/pkg/syncer"
)

// Store persists the sync watermark. Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns the stored watermark and whether one was present.
	Load(ctx context.Context) (syncer.Watermark, bool, error)

	// Save replaces the stored watermark.
	Save(ctx context.Context, w syncer.Watermark) error

	// Close releases resources held by the store.
	Close() error
}
