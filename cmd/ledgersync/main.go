// Command ledgersync mirrors the remote transaction ledger into enriched
// local records: it warms the account cache, walks the paginated
// transaction collection from the last persisted watermark, joins each
// transaction with account metadata, and writes the result out, while
// serving health and metrics endpoints.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ledgersync/pkg/accountcache"
	"ledgersync/pkg/accountcache/memory"
	"ledgersync/pkg/accountcache/redis"
	"ledgersync/pkg/api"
	"ledgersync/pkg/enrich"
	"ledgersync/pkg/logging"
	promcollector "ledgersync/pkg/metrics/prometheus"
	"ledgersync/pkg/query"
	"ledgersync/pkg/state"
	"ledgersync/pkg/syncer"
	"ledgersync/pkg/syncer/dedup"
	"ledgersync/pkg/walker"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	logger, err := logging.NewFromEnv()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	config, err := LoadConfig()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(config, logger); err != nil {
		logger.Fatal("sync failed", zap.Error(err))
	}
}

func run(config *Config, logger *logging.Logger) error {
	collector := promcollector.NewCollector("ledgersync")
	if err := collector.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	client, err := api.NewClient(api.DefaultConfig(config.APIBaseURL, config.APIToken))
	if err != nil {
		return err
	}

	var cacheStore accountcache.Store
	if config.RedisAddr != "" {
		cacheStore, err = redis.New(redis.DefaultConfig(config.RedisAddr))
		if err != nil {
			return err
		}
		logger.Info("using redis account cache", zap.String("addr", config.RedisAddr))
	} else {
		cacheStore = memory.New(memory.DefaultConfig())
	}

	cacheConfig := accountcache.DefaultConfig()
	cacheConfig.TTL = config.CacheTTL
	cache := accountcache.New(client, cacheStore, cacheConfig, accountcache.WithMetrics(collector))

	joiner, err := enrich.New(cache, enrich.Config{Concurrency: config.EnrichConcurrency}, enrich.WithMetrics(collector))
	if err != nil {
		return err
	}

	var stateStore state.Store
	if config.DatabaseURL != "" {
		stateStore, err = state.NewPostgresStore(state.PostgresConfig{DSN: config.DatabaseURL})
		if err != nil {
			return err
		}
		logger.Info("using postgres sync state")
	} else {
		stateStore, err = state.NewFileStore(config.StateFile)
		if err != nil {
			return err
		}
	}

	defer func() {
		if err := multierr.Combine(joiner.Close(), cache.Close(), stateStore.Close()); err != nil {
			logger.Warn("shutdown cleanup", zap.Error(err))
		}
	}()

	engine := syncer.NewEngine(client, joiner, syncer.WithMetrics(collector))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status := newStatusTracker()
	server := startOpsServer(config.HTTPAddr, status, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", zap.Error(err))
		}
	}()

	tracker := dedup.New(100000, 0.001)
	for {
		if err := runOnce(ctx, config, engine, cache, client, stateStore, tracker, status, logger); err != nil {
			return err
		}
		if config.SyncInterval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-time.After(config.SyncInterval):
		}
	}
}

func runOnce(
	ctx context.Context,
	config *Config,
	engine *syncer.Engine,
	cache *accountcache.Cache,
	accounts walker.AccountSource,
	stateStore state.Store,
	tracker *dedup.Tracker,
	status *statusTracker,
	logger *logging.Logger,
) error {
	if ctx.Err() != nil {
		return nil
	}

	// Accounts first, so enrichment joins against fresh snapshots instead
	// of fetching one account at a time mid-walk.
	warmed, err := cache.Warm(ctx, accounts)
	if err != nil {
		logger.Warn("account cache warm-up failed, enrichment will fetch lazily", zap.Error(err))
	} else {
		logger.Info("accounts synced", zap.Int("count", warmed))
	}

	filters := query.Filters{PageSize: config.PageSize}
	opts := []syncer.SyncOption{syncer.WithDedup(tracker)}
	var previous syncer.Watermark
	if !config.FullSync {
		watermark, ok, err := stateStore.Load(ctx)
		if err != nil {
			return err
		}
		if ok {
			previous = watermark
			if !watermark.Cursor.IsZero() {
				// An interrupted walk left a cursor. Continue it; a
				// timestamp restart would skip the unwalked older pages,
				// since pages arrive newest first.
				filters = query.Filters{}
				opts = append(opts, syncer.WithResumeCursor(watermark.Cursor))
				logger.Info("resuming interrupted walk")
			} else {
				filters.Since = watermark.SinceFilter(config.ResumeWindow)
				logger.Info("incremental sync", zap.Time("since", filters.Since))
			}
		} else {
			logger.Info("no previous watermark, performing full sync")
		}
	}

	stream, err := engine.Sync(ctx, filters, opts...)
	if err != nil {
		return err
	}
	status.setRunning()

	result, err := consume(ctx, stream, config.OutputFile)
	if err != nil {
		return err
	}
	status.setResult(result)

	if result.State == syncer.StateFailed {
		logger.Error("sync run failed, keeping previous watermark",
			zap.Int("emitted", result.Emitted),
			zap.Error(result.Err),
		)
		return nil
	}

	// A resumed walk only sees the older half of the collection, so the new
	// high-water timestamp must never move backwards past the previous one.
	next := result.Watermark
	if next.LastSeenAt.Before(previous.LastSeenAt) {
		next.LastSeenAt = previous.LastSeenAt
	}
	if !next.IsZero() {
		// Persisting the resume point must survive shutdown cancellation.
		saveCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			saveCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		if err := stateStore.Save(saveCtx, next); err != nil {
			return err
		}
	}
	logger.Info("sync run complete",
		zap.String("state", result.State.String()),
		zap.Int("emitted", result.Emitted),
		zap.Int("gaps", result.Gaps),
		zap.Int("deduplicated", result.Deduplicated),
	)
	return nil
}

// consume drains the stream, appending enriched transactions to the output
// file as JSON lines when one is configured.
func consume(ctx context.Context, stream *syncer.Stream, outputFile string) (syncer.Result, error) {
	if outputFile == "" {
		result, err := stream.Drain(ctx)
		if err != nil && ctx.Err() != nil {
			return stream.Result(), nil
		}
		return result, err
	}

	f, err := os.OpenFile(outputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return syncer.Result{}, err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	encoder := json.NewEncoder(w)
	for {
		tx, err := stream.Next(ctx)
		if err == syncer.ErrDone {
			return stream.Result(), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown: the engine stops at the next page boundary.
				// Wait for its terminal report so the resume point of the
				// interrupted walk is still persisted.
				return stream.Result(), nil
			}
			return syncer.Result{}, err
		}
		if err := encoder.Encode(tx); err != nil {
			return syncer.Result{}, err
		}
	}
}

// statusTracker exposes the latest run outcome to the ops endpoints.
type statusTracker struct {
	mu      sync.RWMutex
	running bool
	last    *syncer.Result
}

func newStatusTracker() *statusTracker {
	return &statusTracker{}
}

func (t *statusTracker) setRunning() {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
}

func (t *statusTracker) setResult(result syncer.Result) {
	t.mu.Lock()
	t.running = false
	t.last = &result
	t.mu.Unlock()
}

func (t *statusTracker) snapshot() map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := map[string]interface{}{"running": t.running}
	if t.last != nil {
		snap["state"] = t.last.State.String()
		snap["emitted"] = t.last.Emitted
		snap["gaps"] = t.last.Gaps
		snap["deduplicated"] = t.last.Deduplicated
		if !t.last.Watermark.LastSeenAt.IsZero() {
			snap["lastSeenAt"] = t.last.Watermark.LastSeenAt
		}
		if t.last.Err != nil {
			snap["error"] = t.last.Err.Error()
		}
	}
	return snap
}

func startOpsServer(addr string, status *statusTracker, logger *logging.Logger) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status.snapshot())
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return server
}
