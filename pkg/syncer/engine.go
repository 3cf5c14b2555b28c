// Package syncer coordinates filter validation, cursor walking and
// enrichment into a single incremental sync run that emits enriched
// transactions lazily, in server page order, and always ends with a
// resumable watermark: callers receive either the complete sequence or a
// partial sequence plus the watermark and a specific error kind, never a
// silent truncation.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgersync/pkg/api"
	"ledgersync/pkg/enrich"
	"ledgersync/pkg/ledger"
	"ledgersync/pkg/logging"
	"ledgersync/pkg/metrics"
	"ledgersync/pkg/query"
	"ledgersync/pkg/syncer/dedup"
	"ledgersync/pkg/walker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the terminal report of a sync run.
type Result struct {
	// State is the terminal state: Completed, Failed or Cancelled.
	State State

	// Emitted is how many enriched transactions the consumer received.
	Emitted int

	// Gaps is how many of them carried no resolvable account details.
	Gaps int

	// Deduplicated is how many resume-overlap records were skipped.
	Deduplicated int

	// Watermark is the resume point for the next invocation.
	Watermark Watermark

	// Err is the terminal error for Failed runs, nil otherwise.
	Err error
}

// Engine runs sync operations against one transaction source.
type Engine struct {
	source  walker.TransactionSource
	joiner  *enrich.Joiner
	retry   api.RetryPolicy
	logger  *logging.Logger
	metrics metrics.Collector
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics wires a metrics collector.
func WithMetrics(collector metrics.Collector) Option {
	return func(e *Engine) { e.metrics = collector }
}

// WithRetryPolicy overrides the page-fetch retry policy.
func WithRetryPolicy(p api.RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// NewEngine creates a sync engine over the given source and joiner.
func NewEngine(source walker.TransactionSource, joiner *enrich.Joiner, opts ...Option) *Engine {
	e := &Engine{
		source:  source,
		joiner:  joiner,
		retry:   api.DefaultRetryPolicy(),
		logger:  logging.Global().Named("syncer"),
		metrics: metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncOption configures a single sync run.
type SyncOption func(*syncOptions)

type syncOptions struct {
	resumeCursor api.Cursor
	tracker      *dedup.Tracker
}

// WithResumeCursor continues a prior walk from a stored cursor. The cursor
// already encodes the original content filters, so supplying new content
// filters alongside it is rejected as an invalid filter.
func WithResumeCursor(cursor api.Cursor) SyncOption {
	return func(o *syncOptions) { o.resumeCursor = cursor }
}

// WithDedup skips transactions already marked in the tracker and marks
// every emitted one, absorbing the overlap of a timestamp-based resume.
func WithDedup(tracker *dedup.Tracker) SyncOption {
	return func(o *syncOptions) { o.tracker = tracker }
}

// Sync validates the filters and starts a run. Validation failures surface
// here, before any remote call; everything after that is reported through
// the returned stream and its Result.
func (e *Engine) Sync(ctx context.Context, filters query.Filters, opts ...SyncOption) (*Stream, error) {
	var options syncOptions
	for _, opt := range opts {
		opt(&options)
	}

	var w *walker.Walker
	if !options.resumeCursor.IsZero() {
		if filters.HasContentFilters() {
			return nil, fmt.Errorf("%w: content filters cannot be combined with cursor continuation", query.ErrInvalidFilter)
		}
		w = walker.Resume(e.source, options.resumeCursor, walker.WithRetryPolicy(e.retry))
	} else {
		q, err := filters.Validate()
		if err != nil {
			return nil, err
		}
		w = walker.New(e.source, q, walker.WithRetryPolicy(e.retry))
	}

	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("sync run starting", zap.Bool("resume", !options.resumeCursor.IsZero()))

	runCtx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go e.run(runCtx, w, s, options, logger)
	return s, nil
}

func (e *Engine) run(ctx context.Context, w *walker.Walker, s *Stream, options syncOptions, logger *logging.Logger) {
	start := time.Now()
	result := Result{
		State:     StateWalking,
		Watermark: Watermark{Cursor: options.resumeCursor},
	}

	finish := func(state State, err error) {
		result.State = state
		result.Err = err
		e.metrics.RecordSyncRun(state.String(), time.Since(start))
		logger.Info("sync run finished",
			zap.String("state", state.String()),
			zap.Int("emitted", result.Emitted),
			zap.Int("gaps", result.Gaps),
			zap.Int("deduplicated", result.Deduplicated),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		s.close(result)
	}

	for {
		// Cancellation takes effect here, at the page boundary, so a page
		// is never half-processed.
		if err := ctx.Err(); err != nil {
			finish(StateCancelled, nil)
			return
		}

		fetchStart := time.Now()
		page, err := w.Next(ctx)
		if err == walker.ErrDone {
			finish(StateCompleted, nil)
			return
		}
		e.metrics.RecordPageFetch(api.ClassifyError(err), time.Since(fetchStart))
		if err != nil {
			if ctx.Err() != nil {
				finish(StateCancelled, nil)
				return
			}
			finish(StateFailed, err)
			return
		}

		result.State = StateEnriching
		enriched, gaps, err := e.joiner.EnrichPage(ctx, page.Transactions)
		if err != nil {
			if ctx.Err() != nil {
				finish(StateCancelled, nil)
				return
			}
			finish(StateFailed, err)
			return
		}
		result.Gaps += gaps

		emitted := 0
		for i := range enriched {
			tx := enriched[i]
			if options.tracker != nil && options.tracker.Seen(tx.ID) {
				result.Deduplicated++
				continue
			}
			if !s.emit(ctx, tx) {
				// The consumer went away mid-page. The watermark stays at
				// the previous page boundary so a resume re-covers this
				// page rather than skipping its tail.
				finish(StateCancelled, nil)
				return
			}
			if options.tracker != nil {
				options.tracker.Mark(tx.ID)
			}
			result.Watermark.observe(tx.EffectiveTime())
			emitted++
		}
		result.Emitted += emitted
		e.metrics.RecordEmitted(emitted)

		// Page fully emitted: advance the resumable boundary.
		result.Watermark.Cursor = page.Next
		result.State = StateWalking
	}
}

// ErrDone is returned by Stream.Next once the run has ended and every
// emitted transaction has been consumed.
var ErrDone = errors.New("syncer: sync finished")

// Stream is the lazy sequence of enriched transactions produced by a run.
// Emission is unbuffered: the next page is fetched only after the consumer
// drains the current one.
//
// A stream must not be abandoned while the run is live: consume it to
// ErrDone, cancel the context passed to Sync, or call Close. Otherwise the
// run goroutine blocks forever on the next emission.
type Stream struct {
	ch     chan ledger.EnrichedTransaction
	done   chan struct{}
	cancel context.CancelFunc
	result Result
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		ch:     make(chan ledger.EnrichedTransaction),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// emit delivers one transaction, reporting false if the consumer's context
// ended first.
func (s *Stream) emit(ctx context.Context, tx ledger.EnrichedTransaction) bool {
	select {
	case s.ch <- tx:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) close(result Result) {
	s.result = result
	s.cancel()
	close(s.ch)
	close(s.done)
}

// Close abandons the stream: it cancels the run and waits for it to reach a
// terminal state, which Result then reports. Safe to call more than once and
// after the run has already ended.
func (s *Stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// Next returns the next enriched transaction, blocking until one is
// available. It returns ErrDone once the run has ended; the terminal report
// is then available from Result.
func (s *Stream) Next(ctx context.Context) (ledger.EnrichedTransaction, error) {
	select {
	case tx, ok := <-s.ch:
		if !ok {
			return ledger.EnrichedTransaction{}, ErrDone
		}
		return tx, nil
	case <-ctx.Done():
		return ledger.EnrichedTransaction{}, ctx.Err()
	}
}

// Drain consumes the remaining sequence, discarding records, and returns
// the terminal result. Useful when only the side effects matter.
func (s *Stream) Drain(ctx context.Context) (Result, error) {
	for {
		_, err := s.Next(ctx)
		if err == ErrDone {
			return s.Result(), nil
		}
		if err != nil {
			return Result{}, err
		}
	}
}

// Result blocks until the run ends and returns its terminal report.
func (s *Stream) Result() Result {
	<-s.done
	return s.result
}
