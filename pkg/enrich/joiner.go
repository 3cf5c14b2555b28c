// Package enrich joins raw transactions with account metadata resolved
// through the account cache. Enrichment is a point-in-time join: the
// attached details reflect the account state at enrichment time.
//
// Enrichment never drops a transaction. When the account join cannot be
// resolved the transaction is emitted with absent details and the gap is
// counted, so a deleted account degrades one record instead of failing a
// page.
package enrich

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"ledgersync/pkg/api"
	"ledgersync/pkg/ledger"
	"ledgersync/pkg/logging"
	"ledgersync/pkg/metrics"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// AccountResolver resolves an account by identifier. *accountcache.Cache
// satisfies it; the cache owns the retry policy for transient failures.
type AccountResolver interface {
	Get(ctx context.Context, id string) (ledger.Account, error)
}

// Config holds joiner configuration.
type Config struct {
	// Concurrency caps how many account resolutions run at once within a
	// page. Zero uses the default of 8.
	Concurrency int
}

// DefaultConfig returns the default joiner configuration.
func DefaultConfig() Config {
	return Config{Concurrency: 8}
}

// Joiner enriches transactions concurrently while preserving input order.
type Joiner struct {
	resolver AccountResolver
	pool     *ants.Pool
	logger   *logging.Logger
	metrics  metrics.Collector
}

// Option configures a Joiner.
type Option func(*Joiner)

// WithMetrics wires a metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(j *Joiner) { j.metrics = collector }
}

// New creates a joiner with a worker pool of the configured size.
func New(resolver AccountResolver, config Config, opts ...Option) (*Joiner, error) {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConfig().Concurrency
	}
	pool, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, fmt.Errorf("enrich: creating worker pool: %w", err)
	}

	j := &Joiner{
		resolver: resolver,
		pool:     pool,
		logger:   logging.Global().Named("enrich"),
		metrics:  metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Enrich joins one transaction with its account details. The boolean
// reports whether the join resolved; a false return is an enrichment gap,
// not a failure.
func (j *Joiner) Enrich(ctx context.Context, tx ledger.Transaction) (ledger.EnrichedTransaction, bool, error) {
	enriched := ledger.EnrichedTransaction{Transaction: tx}

	if tx.AccountID == "" {
		return enriched, false, nil
	}

	account, err := j.resolver.Get(ctx, tx.AccountID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return enriched, false, ctxErr
		}
		if api.IsNotFound(err) || api.IsRetryable(err) {
			// Account deleted, inaccessible, or still unreachable after
			// the cache's own retries: degrade, never drop the record.
			j.logger.Warn("account join unresolved, emitting without details",
				zap.String("transaction_id", tx.ID),
				zap.String("account_id", tx.AccountID),
				zap.String("kind", api.ClassifyError(err)),
			)
			return enriched, false, nil
		}
		return enriched, false, err
	}

	details := account.Details()
	enriched.AccountDetails = &details
	return enriched, true, nil
}

// EnrichPage enriches every transaction of a page concurrently, bounded by
// the pool size, and returns the results in input order along with the
// number of enrichment gaps. A gap in one transaction does not abort its
// siblings; only context cancellation or an unexpected resolver error fails
// the page.
func (j *Joiner) EnrichPage(ctx context.Context, txs []ledger.Transaction) ([]ledger.EnrichedTransaction, int, error) {
	results := make([]ledger.EnrichedTransaction, len(txs))

	var (
		wg       sync.WaitGroup
		gaps     int64
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for i := range txs {
		i := i
		wg.Add(1)
		submitErr := j.pool.Submit(func() {
			defer wg.Done()
			enriched, resolved, err := j.Enrich(ctx, txs[i])
			if err != nil {
				fail(err)
				return
			}
			if !resolved {
				atomic.AddInt64(&gaps, 1)
				j.metrics.RecordEnrichmentGap()
			}
			results[i] = enriched
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("enrich: submitting join: %w", submitErr))
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}
	return results, int(atomic.LoadInt64(&gaps)), nil
}

// Close releases the worker pool.
func (j *Joiner) Close() error {
	j.pool.Release()
	return nil
}
