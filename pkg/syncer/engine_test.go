package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ledgersync/pkg/api"
	"ledgersync/pkg/api/apitest"
	"ledgersync/pkg/enrich"
	"ledgersync/pkg/ledger"
	"ledgersync/pkg/query"
	"ledgersync/pkg/syncer/dedup"
)

type resolverFunc func(ctx context.Context, id string) (ledger.Account, error)

func (f resolverFunc) Get(ctx context.Context, id string) (ledger.Account, error) {
	return f(ctx, id)
}

func knownAccounts(ids ...string) resolverFunc {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	return func(ctx context.Context, id string) (ledger.Account, error) {
		if !known[id] {
			return ledger.Account{}, api.ErrNotFound
		}
		return ledger.Account{ID: id, DisplayName: "Account " + id}, nil
	}
}

func testRetryPolicy() api.RetryPolicy {
	return api.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}
}

func newTestEngine(t *testing.T, source *apitest.Source, resolver enrich.AccountResolver) *Engine {
	t.Helper()
	joiner, err := enrich.New(resolver, enrich.Config{Concurrency: 4})
	if err != nil {
		t.Fatalf("enrich.New failed: %v", err)
	}
	t.Cleanup(func() { joiner.Close() })
	return NewEngine(source, joiner, WithRetryPolicy(testRetryPolicy()))
}

func txPage(next api.Cursor, accountID string, ids ...string) *api.TransactionPage {
	page := &api.TransactionPage{Next: next}
	for _, id := range ids {
		page.Transactions = append(page.Transactions, ledger.Transaction{
			ID:        id,
			AccountID: accountID,
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	return page
}

func collect(t *testing.T, stream *Stream) ([]ledger.EnrichedTransaction, Result) {
	t.Helper()
	ctx := context.Background()
	var out []ledger.EnrichedTransaction
	for {
		tx, err := stream.Next(ctx)
		if errors.Is(err, ErrDone) {
			return out, stream.Result()
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, tx)
	}
}

// An unknown tag is a remote concern: the server answers with an empty
// collection and the run completes cleanly with nothing emitted.
func TestSync_UnknownTagCompletesEmpty(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return &api.TransactionPage{}, nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts())

	stream, err := engine.Sync(context.Background(), query.Filters{Tag: "no-such-tag"})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	emitted, result := collect(t, stream)

	if result.State != StateCompleted {
		t.Errorf("state = %v, want Completed", result.State)
	}
	if len(emitted) != 0 || result.Emitted != 0 {
		t.Errorf("expected nothing emitted, got %d", len(emitted))
	}
	if result.Err != nil {
		t.Errorf("unexpected error: %v", result.Err)
	}
}

// A 404 on the collection endpoint is terminal: the run fails with the
// specific error kind and emits nothing.
func TestSync_NotFoundFails(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return nil, api.ErrNotFound
		},
	}
	engine := newTestEngine(t, source, knownAccounts())

	stream, err := engine.Sync(context.Background(), query.Filters{Category: "bad"})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	emitted, result := collect(t, stream)

	if result.State != StateFailed {
		t.Errorf("state = %v, want Failed", result.State)
	}
	if !errors.Is(result.Err, api.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", result.Err)
	}
	if len(emitted) != 0 {
		t.Errorf("expected nothing emitted, got %d", len(emitted))
	}
	if got := source.ListTransactionsCalls(); got != 1 {
		t.Errorf("not-found must not be retried, got %d calls", got)
	}
}

// A mid-walk transient failure is retried against the same cursor; after it
// heals the full sequence arrives in order with no duplicates.
func TestSync_TransientMidWalkFailureHeals(t *testing.T) {
	page2Failures := 2
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return txPage("c2", "acc-1", "tx-1", "tx-2"), nil
		},
		TransactionsAtFunc: func(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
			switch cursor {
			case "c2":
				if page2Failures > 0 {
					page2Failures--
					return nil, api.ErrUnavailable
				}
				return txPage("c3", "acc-1", "tx-3", "tx-4"), nil
			case "c3":
				return txPage("", "acc-1", "tx-5"), nil
			default:
				return nil, fmt.Errorf("unknown cursor %q", cursor)
			}
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	emitted, result := collect(t, stream)

	if result.State != StateCompleted {
		t.Fatalf("state = %v (err %v), want Completed", result.State, result.Err)
	}
	want := []string{"tx-1", "tx-2", "tx-3", "tx-4", "tx-5"}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %d records, want %d", len(emitted), len(want))
	}
	for i, id := range want {
		if emitted[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, emitted[i].ID, id)
		}
	}
	if result.Gaps != 0 {
		t.Errorf("gaps = %d, want 0", result.Gaps)
	}
}

// A deleted account degrades its transaction to an enrichment gap; the run
// still completes and nothing is dropped.
func TestSync_DeletedAccountDegrades(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			page := txPage("", "acc-1", "tx-1")
			page.Transactions = append(page.Transactions, ledger.Transaction{ID: "tx-2", AccountID: "deleted"})
			return page, nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	emitted, result := collect(t, stream)

	if result.State != StateCompleted {
		t.Fatalf("state = %v (err %v), want Completed", result.State, result.Err)
	}
	if len(emitted) != 2 {
		t.Fatalf("expected both records, got %d", len(emitted))
	}
	if emitted[0].AccountDetails == nil {
		t.Error("resolvable record lost its details")
	}
	if emitted[1].AccountDetails != nil {
		t.Error("gapped record must carry no details")
	}
	if result.Gaps != 1 {
		t.Errorf("gaps = %d, want 1", result.Gaps)
	}
}

func TestSync_InvalidFiltersRejectedBeforeAnyCall(t *testing.T) {
	source := &apitest.Source{}
	engine := newTestEngine(t, source, knownAccounts())

	_, err := engine.Sync(context.Background(), query.Filters{Status: "PENDING"})
	if !errors.Is(err, query.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if source.ListTransactionsCalls() != 0 {
		t.Error("validation failure must not reach the remote")
	}
}

func TestSync_ResumeCursorRejectsContentFilters(t *testing.T) {
	source := &apitest.Source{}
	engine := newTestEngine(t, source, knownAccounts())

	_, err := engine.Sync(context.Background(), query.Filters{Tag: "Holiday"}, WithResumeCursor("stored"))
	if !errors.Is(err, query.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if source.TransactionsAtCalls() != 0 {
		t.Error("the conflict must be rejected before any remote call")
	}
}

func TestSync_ResumeCursorContinuesWalk(t *testing.T) {
	source := &apitest.Source{
		TransactionsAtFunc: func(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
			if cursor != "stored" {
				return nil, fmt.Errorf("unexpected cursor %q", cursor)
			}
			return txPage("", "acc-1", "tx-9"), nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{}, WithResumeCursor("stored"))
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	emitted, result := collect(t, stream)

	if result.State != StateCompleted {
		t.Fatalf("state = %v, want Completed", result.State)
	}
	if len(emitted) != 1 || emitted[0].ID != "tx-9" {
		t.Errorf("unexpected emission: %+v", emitted)
	}
	if source.ListTransactionsCalls() != 0 {
		t.Error("resume must not restart from the first page")
	}
}

func TestSync_WatermarkAdvancesPerPage(t *testing.T) {
	settled := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			page := txPage("", "acc-1", "tx-1")
			page.Transactions[0].Status = ledger.TransactionStatusSettled
			page.Transactions[0].SettledAt = &settled
			return page, nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	_, result := collect(t, stream)

	if !result.Watermark.Cursor.IsZero() {
		t.Errorf("completed run cursor = %q, want zero", result.Watermark.Cursor)
	}
	if !result.Watermark.LastSeenAt.Equal(settled) {
		t.Errorf("LastSeenAt = %v, want %v", result.Watermark.LastSeenAt, settled)
	}
}

func TestSync_DedupSkipsOverlap(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return txPage("", "acc-1", "tx-1", "tx-2", "tx-3"), nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	tracker := dedup.New(1000, 0.01)
	tracker.Mark("tx-1")
	tracker.Mark("tx-2")

	stream, err := engine.Sync(context.Background(), query.Filters{}, WithDedup(tracker))
	if err != nil {
		t.Fatal(err)
	}
	emitted, result := collect(t, stream)

	if len(emitted) != 1 || emitted[0].ID != "tx-3" {
		t.Fatalf("expected only the unseen record, got %+v", emitted)
	}
	if result.Deduplicated != 2 {
		t.Errorf("Deduplicated = %d, want 2", result.Deduplicated)
	}
	if result.Emitted != 1 {
		t.Errorf("Emitted = %d, want 1", result.Emitted)
	}
}

func TestSync_CancellationStopsAtPageBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &apitest.Source{
		ListTransactionsFunc: func(ctxReq context.Context, q query.Query) (*api.TransactionPage, error) {
			return txPage("c2", "acc-1", "tx-1"), nil
		},
		TransactionsAtFunc: func(ctxReq context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
			// Cancel while fetching the second page; the engine notices at
			// the next boundary.
			cancel()
			return nil, ctxReq.Err()
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(ctx, query.Filters{})
	if err != nil {
		t.Fatal(err)
	}

	var emitted []ledger.EnrichedTransaction
	for {
		tx, nextErr := stream.Next(context.Background())
		if errors.Is(nextErr, ErrDone) {
			break
		}
		if nextErr != nil {
			t.Fatalf("Next failed: %v", nextErr)
		}
		emitted = append(emitted, tx)
	}
	result := stream.Result()

	if result.State != StateCancelled {
		t.Errorf("state = %v, want Cancelled", result.State)
	}
	if result.Err != nil {
		t.Errorf("cancellation is not a failure: %v", result.Err)
	}
	if len(emitted) != 1 {
		t.Errorf("the fully-processed page should have been emitted, got %d", len(emitted))
	}
	if result.Watermark.Cursor != "c2" {
		t.Errorf("watermark cursor = %q, want the last completed boundary", result.Watermark.Cursor)
	}
}

// Emission is lazy: the second page is not fetched until the consumer drains
// the first.
func TestSync_LazyPagination(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return txPage("c2", "acc-1", "tx-1"), nil
		},
		TransactionsAtFunc: func(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
			return txPage("", "acc-1", "tx-2"), nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{})
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := stream.Next(ctx); err != nil {
		t.Fatal(err)
	}
	// tx-1 is consumed but the page-2 fetch also needs the emit of tx-2 to
	// unblock, so after a grace period the second cursor must not have been
	// followed more than once.
	time.Sleep(20 * time.Millisecond)
	if got := source.TransactionsAtCalls(); got > 1 {
		t.Errorf("pages fetched ahead of consumption: %d", got)
	}

	if _, err := stream.Drain(ctx); err != nil {
		t.Fatal(err)
	}
	if got := stream.Result().Emitted; got != 2 {
		t.Errorf("Emitted = %d, want 2", got)
	}
}

// Closing an unconsumed stream must unblock the run goroutine and surface a
// terminal result instead of leaving the run parked on its next emission.
func TestSync_CloseAbandonsRun(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return txPage("c2", "acc-1", "tx-1"), nil
		},
		TransactionsAtFunc: func(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
			return txPage("", "acc-1", "tx-2"), nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	// Abandon the stream without consuming anything.
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}

	done := make(chan Result, 1)
	go func() { done <- stream.Result() }()
	select {
	case result := <-done:
		if result.State != StateCancelled {
			t.Errorf("state = %v, want Cancelled", result.State)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not terminate after Close")
	}

	// Close is idempotent, including after the run has ended.
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSync_DrainReportsResult(t *testing.T) {
	source := &apitest.Source{
		ListTransactionsFunc: func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
			return txPage("", "acc-1", "tx-1", "tx-2"), nil
		},
	}
	engine := newTestEngine(t, source, knownAccounts("acc-1"))

	stream, err := engine.Sync(context.Background(), query.Filters{})
	if err != nil {
		t.Fatal(err)
	}
	result, err := stream.Drain(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.State != StateCompleted || result.Emitted != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
}
