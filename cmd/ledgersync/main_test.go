package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ledgersync/pkg/accountcache"
	"ledgersync/pkg/accountcache/memory"
	"ledgersync/pkg/api"
	"ledgersync/pkg/api/apitest"
	"ledgersync/pkg/enrich"
	"ledgersync/pkg/ledger"
	"ledgersync/pkg/logging"
	"ledgersync/pkg/query"
	"ledgersync/pkg/state"
	"ledgersync/pkg/syncer"
	"ledgersync/pkg/syncer/dedup"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		APIBaseURL:        "http://api.test",
		APIToken:          "token",
		PageSize:          100,
		ResumeWindow:      time.Minute,
		EnrichConcurrency: 2,
		CacheTTL:          time.Minute,
		OutputFile:        filepath.Join(t.TempDir(), "out.ndjson"),
	}
}

func readOutputIDs(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening output: %v", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decoding output line: %v", err)
		}
		ids = append(ids, record.ID)
	}
	if err := scanner.Err(); err != nil {
		t.Fatal(err)
	}
	return ids
}

// A run interrupted mid-walk must leave a cursor behind, and the next run
// must continue from it. Pages arrive newest first, so restarting by
// timestamp instead would filter at the newest record and silently skip the
// older pages the interrupted walk never reached.
func TestRunOnce_ResumesInterruptedWalkFromCursor(t *testing.T) {
	at := func(day int) time.Time {
		return time.Date(2026, 6, day, 0, 0, 0, 0, time.UTC)
	}
	newest := at(4)

	ctx1, cancel := context.WithCancel(context.Background())
	interrupted := true

	source := &apitest.Source{}
	source.ListTransactionsFunc = func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
		return &api.TransactionPage{
			Transactions: []ledger.Transaction{
				{ID: "tx-1", AccountID: "acc-1", CreatedAt: newest},
				{ID: "tx-2", AccountID: "acc-1", CreatedAt: at(3)},
			},
			Next: "c2",
		}, nil
	}
	source.TransactionsAtFunc = func(ctx context.Context, cursor api.Cursor) (*api.TransactionPage, error) {
		switch cursor {
		case "c2":
			if interrupted {
				// Shutdown arrives while the second page is in flight.
				cancel()
				return nil, ctx.Err()
			}
			return &api.TransactionPage{
				Transactions: []ledger.Transaction{{ID: "tx-3", AccountID: "acc-1", CreatedAt: at(2)}},
				Next:         "c3",
			}, nil
		case "c3":
			return &api.TransactionPage{
				Transactions: []ledger.Transaction{{ID: "tx-4", AccountID: "acc-1", CreatedAt: at(1)}},
			}, nil
		default:
			t.Errorf("unexpected cursor %q", cursor)
			return nil, api.ErrNotFound
		}
	}

	cache := accountcache.New(source, memory.New(memory.DefaultConfig()), accountcache.DefaultConfig())
	t.Cleanup(func() { cache.Close() })
	joiner, err := enrich.New(cache, enrich.Config{Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { joiner.Close() })

	fast := api.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2.0}
	engine := syncer.NewEngine(source, joiner, syncer.WithRetryPolicy(fast))
	store := state.NewMemoryStore()
	tracker := dedup.New(1000, 0.01)
	status := newStatusTracker()
	config := testConfig(t)
	logger := logging.NewNop()

	if err := runOnce(ctx1, config, engine, cache, source, store, tracker, status, logger); err != nil {
		t.Fatalf("interrupted run: %v", err)
	}

	watermark, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("watermark after interruption: ok=%v err=%v", ok, err)
	}
	if watermark.Cursor != "c2" {
		t.Fatalf("cursor = %q, want the unfinished page boundary", watermark.Cursor)
	}

	interrupted = false
	if err := runOnce(context.Background(), config, engine, cache, source, store, tracker, status, logger); err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	if got := source.ListTransactionsCalls(); got != 1 {
		t.Errorf("resumed run restarted the walk, ListTransactions calls = %d", got)
	}

	ids := readOutputIDs(t, config.OutputFile)
	want := []string{"tx-1", "tx-2", "tx-3", "tx-4"}
	if len(ids) != len(want) {
		t.Fatalf("output = %v, want %v", ids, want)
	}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("output position %d: got %s, want %s", i, ids[i], id)
		}
	}

	watermark, ok, err = store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("final watermark: ok=%v err=%v", ok, err)
	}
	if !watermark.Cursor.IsZero() {
		t.Errorf("completed walk left cursor %q", watermark.Cursor)
	}
	// The resumed half only saw older records; the high-water timestamp
	// from the first half must survive.
	if !watermark.LastSeenAt.Equal(newest) {
		t.Errorf("LastSeenAt = %v, want %v", watermark.LastSeenAt, newest)
	}
}

// A failed run keeps the previous watermark untouched.
func TestRunOnce_FailureKeepsPreviousWatermark(t *testing.T) {
	source := &apitest.Source{}
	source.ListTransactionsFunc = func(ctx context.Context, q query.Query) (*api.TransactionPage, error) {
		return nil, api.ErrNotFound
	}

	cache := accountcache.New(source, memory.New(memory.DefaultConfig()), accountcache.DefaultConfig())
	t.Cleanup(func() { cache.Close() })
	joiner, err := enrich.New(cache, enrich.Config{Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { joiner.Close() })

	engine := syncer.NewEngine(source, joiner)
	store := state.NewMemoryStore()
	previous := syncer.Watermark{LastSeenAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	if err := store.Save(context.Background(), previous); err != nil {
		t.Fatal(err)
	}

	config := testConfig(t)
	err = runOnce(context.Background(), config, engine, cache, source, store,
		dedup.New(1000, 0.01), newStatusTracker(), logging.NewNop())
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	got, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if !got.LastSeenAt.Equal(previous.LastSeenAt) || !got.Cursor.IsZero() {
		t.Errorf("watermark changed on failure: %+v", got)
	}
}
