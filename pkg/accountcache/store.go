package accountcache

import (
	"context"
	"time"

	"ledgersync/pkg/ledger"
)

// Store holds cached account snapshots. Implementations must be safe for
// concurrent use. Entries are whole snapshots: Set replaces, never merges.
type Store interface {
	// Get returns the cached account and whether it was present and
	// unexpired.
	Get(ctx context.Context, id string) (ledger.Account, bool, error)

	// Set stores an account snapshot with the given time-to-live.
	// A zero ttl means the entry does not expire.
	Set(ctx context.Context, id string, account ledger.Account, ttl time.Duration) error

	// Delete removes an entry. Deleting an absent entry is not an error.
	Delete(ctx context.Context, id string) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
