// Package accountcache memoizes account snapshots by identifier with a
// fetch-if-absent policy: the first reference to an uncached account fetches
// it from the remote API, concurrent misses for the same identifier collapse
// into a single in-flight fetch, and failures are never cached.
package accountcache

import (
	"context"
	"sync/atomic"
	"time"

	"ledgersync/pkg/api"
	"ledgersync/pkg/ledger"
	"ledgersync/pkg/logging"
	"ledgersync/pkg/metrics"
	"ledgersync/pkg/query"
	"ledgersync/pkg/walker"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher fetches a single account from the remote API. *api.Client
// satisfies it.
type Fetcher interface {
	GetAccount(ctx context.Context, id string) (ledger.Account, error)
}

// Config holds cache configuration.
type Config struct {
	// TTL is how long a cached snapshot stays valid. Expired entries are
	// re-fetched on next access, not eagerly evicted. Zero disables
	// expiry, for callers that Warm the cache per sync run instead.
	TTL time.Duration

	// Retry bounds the remote fetch retries on transient failure.
	Retry api.RetryPolicy
}

// DefaultConfig returns the default cache configuration: 5 minute TTL and
// the default retry policy.
func DefaultConfig() Config {
	return Config{
		TTL:   5 * time.Minute,
		Retry: api.DefaultRetryPolicy(),
	}
}

// Cache is a read-through account cache. Safe for concurrent use.
type Cache struct {
	store   Store
	fetcher Fetcher
	config  Config
	group   singleflight.Group
	logger  *logging.Logger
	metrics metrics.Collector

	// remoteFetches counts calls actually issued to the fetcher, for
	// verifying miss deduplication.
	remoteFetches int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics wires a metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(c *Cache) { c.metrics = collector }
}

// New creates a cache over the given store and fetcher.
func New(fetcher Fetcher, store Store, config Config, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		fetcher: fetcher,
		config:  config,
		logger:  logging.Global().Named("accountcache"),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the account snapshot for id, fetching and caching it on a
// miss. Concurrent calls for the same uncached id share one remote fetch.
// Fetch failures are returned but never cached; a later call retries.
func (c *Cache) Get(ctx context.Context, id string) (ledger.Account, error) {
	if account, ok, err := c.store.Get(ctx, id); err == nil && ok {
		c.metrics.RecordCacheLookup(true)
		return account, nil
	}
	c.metrics.RecordCacheLookup(false)

	result, err, shared := c.group.Do(id, func() (interface{}, error) {
		// Re-check under the flight: another caller may have populated
		// the entry between our miss and winning the flight.
		if account, ok, err := c.store.Get(ctx, id); err == nil && ok {
			return account, nil
		}
		return c.fetch(ctx, id)
	})
	if err != nil {
		return ledger.Account{}, err
	}
	if shared {
		c.logger.Debug("coalesced concurrent account fetch", zap.String("account_id", id))
	}
	return result.(ledger.Account), nil
}

func (c *Cache) fetch(ctx context.Context, id string) (ledger.Account, error) {
	atomic.AddInt64(&c.remoteFetches, 1)
	start := time.Now()

	var account ledger.Account
	err := c.config.Retry.Retry(ctx, func() error {
		var fetchErr error
		account, fetchErr = c.fetcher.GetAccount(ctx, id)
		if fetchErr != nil && api.IsRetryable(fetchErr) {
			c.metrics.RecordRetry("account")
		}
		return fetchErr
	})
	c.metrics.RecordAccountFetch(api.ClassifyError(err), time.Since(start))
	if err != nil {
		return ledger.Account{}, err
	}

	if err := c.store.Set(ctx, id, account, c.config.TTL); err != nil {
		// A store write failure degrades to cache-miss behavior; the
		// fetched snapshot is still good.
		c.logger.Warn("failed to cache account", zap.String("account_id", id), zap.Error(err))
	}
	return account, nil
}

// Invalidate drops the cached snapshot for id, for callers who know the
// account changed out-of-band. The next Get re-fetches.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	return c.store.Delete(ctx, id)
}

// Clear drops every cached snapshot.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Warm bulk-populates the cache from the account collection, walking every
// page. Used before a sync run to avoid per-transaction fetches entirely.
func (c *Cache) Warm(ctx context.Context, source walker.AccountSource) (int, error) {
	w := walker.NewAccounts(source, query.Query{})
	warmed := 0
	for {
		page, err := w.Next(ctx)
		if err == walker.ErrDone {
			break
		}
		if err != nil {
			return warmed, err
		}
		for _, account := range page.Accounts {
			if err := c.store.Set(ctx, account.ID, account, c.config.TTL); err != nil {
				return warmed, err
			}
			warmed++
		}
	}
	c.logger.Info("account cache warmed", zap.Int("accounts", warmed))
	return warmed, nil
}

// RemoteFetches returns how many fetches were actually issued to the remote
// API, for instrumentation and tests.
func (c *Cache) RemoteFetches() int64 {
	return atomic.LoadInt64(&c.remoteFetches)
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
