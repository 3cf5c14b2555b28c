// Package walker traverses paginated remote collections by following opaque
// cursors. A walker never reorders, deduplicates, or drops records, and it
// never advances its cursor on a failed fetch: a transient failure retries
// the same position so no page is silently skipped.
package walker

import (
	"context"
	"errors"

	"ledgersync/pkg/api"
	"ledgersync/pkg/logging"
	"ledgersync/pkg/query"

	"go.uber.org/zap"
)

// ErrDone is returned by Next when forward traversal is exhausted
// (the last page carried no next cursor). It is terminal, not a failure.
var ErrDone = errors.New("walker: no more pages")

// TransactionSource fetches transaction pages. *api.Client satisfies it.
type TransactionSource interface {
	ListTransactions(ctx context.Context, q query.Query) (*api.TransactionPage, error)
	TransactionsAt(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error)
}

// Walker pulls transaction pages one at a time. It is not safe for
// concurrent use; a sync run owns exactly one walker.
type Walker struct {
	source TransactionSource
	retry  api.RetryPolicy
	logger *logging.Logger

	q       query.Query
	cursor  api.Cursor
	started bool
	done    bool
	pages   int
}

// Option configures a Walker.
type Option func(*Walker)

// WithRetryPolicy overrides the default backoff policy.
func WithRetryPolicy(p api.RetryPolicy) Option {
	return func(w *Walker) { w.retry = p }
}

// New creates a walker that starts a fresh traversal from the validated
// query.
func New(source TransactionSource, q query.Query, opts ...Option) *Walker {
	w := &Walker{
		source: source,
		retry:  api.DefaultRetryPolicy(),
		logger: logging.Global().Named("walker"),
		q:      q,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Resume creates a walker that continues a prior traversal from a stored
// cursor. The cursor already encodes the original filters; supplying new
// content filters alongside it is a caller error the orchestrator rejects.
func Resume(source TransactionSource, cursor api.Cursor, opts ...Option) *Walker {
	w := New(source, query.Query{}, opts...)
	w.cursor = cursor
	w.started = true
	return w
}

// Next fetches and returns the next page. Transient failures are retried
// against the same cursor per the retry policy; exhaustion surfaces the
// terminal error without advancing. Returns ErrDone once traversal is
// exhausted.
func (w *Walker) Next(ctx context.Context) (*api.TransactionPage, error) {
	if w.done {
		return nil, ErrDone
	}
	if w.started && w.cursor.IsZero() {
		w.done = true
		return nil, ErrDone
	}

	var page *api.TransactionPage
	err := w.retry.Retry(ctx, func() error {
		var fetchErr error
		if !w.started {
			page, fetchErr = w.source.ListTransactions(ctx, w.q)
		} else {
			page, fetchErr = w.source.TransactionsAt(ctx, w.cursor)
		}
		if fetchErr != nil && api.IsRetryable(fetchErr) {
			w.logger.Warn("transient page fetch failure, retrying same cursor",
				zap.Int("pages_walked", w.pages),
				zap.Error(fetchErr),
			)
		}
		return fetchErr
	})
	if err != nil {
		// Cursor deliberately not advanced: the caller may retry Next
		// or resume later from Cursor().
		return nil, err
	}

	w.started = true
	w.cursor = page.Next
	w.pages++
	if page.Next.IsZero() {
		w.done = true
	}

	w.logger.Debug("page fetched",
		zap.Int("records", len(page.Transactions)),
		zap.Int("page", w.pages),
		zap.Bool("last", page.Next.IsZero()),
	)
	return page, nil
}

// Cursor returns the walker's current position: the cursor the next
// successful Next call would fetch, or the zero cursor once exhausted.
func (w *Walker) Cursor() api.Cursor {
	return w.cursor
}

// Pages returns how many pages have been fetched so far.
func (w *Walker) Pages() int {
	return w.pages
}
