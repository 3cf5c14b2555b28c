package walker

import (
	"context"

	"ledgersync/pkg/api"
	"ledgersync/pkg/query"
)

// AccountSource fetches account pages. *api.Client satisfies it.
type AccountSource interface {
	ListAccounts(ctx context.Context, q query.Query) (*api.AccountPage, error)
	AccountsAt(ctx context.Context, cursor api.Cursor) (*api.AccountPage, error)
}

// AccountWalker pulls account pages one at a time, with the same
// retry-in-place semantics as Walker.
type AccountWalker struct {
	source  AccountSource
	retry   api.RetryPolicy
	q       query.Query
	cursor  api.Cursor
	started bool
	done    bool
}

// NewAccounts creates a walker over the account collection.
func NewAccounts(source AccountSource, q query.Query) *AccountWalker {
	return &AccountWalker{
		source: source,
		retry:  api.DefaultRetryPolicy(),
		q:      q,
	}
}

// Next fetches and returns the next account page, or ErrDone once the
// collection is exhausted.
func (w *AccountWalker) Next(ctx context.Context) (*api.AccountPage, error) {
	if w.done {
		return nil, ErrDone
	}
	if w.started && w.cursor.IsZero() {
		w.done = true
		return nil, ErrDone
	}

	var page *api.AccountPage
	err := w.retry.Retry(ctx, func() error {
		var fetchErr error
		if !w.started {
			page, fetchErr = w.source.ListAccounts(ctx, w.q)
		} else {
			page, fetchErr = w.source.AccountsAt(ctx, w.cursor)
		}
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	w.started = true
	w.cursor = page.Next
	if page.Next.IsZero() {
		w.done = true
	}
	return page, nil
}
