package metrics

import "time"

// Collector receives sync-engine measurements. Implementations can export
// to any backend; NoOpCollector is the default when metrics are not wired.
type Collector interface {
	// Remote calls
	RecordPageFetch(outcome string, duration time.Duration)
	RecordAccountFetch(outcome string, duration time.Duration)
	RecordRetry(call string)

	// Account cache
	RecordCacheLookup(hit bool)

	// Enrichment
	RecordEnrichmentGap()

	// Sync runs
	RecordEmitted(count int)
	RecordSyncRun(state string, duration time.Duration)
}

// NoOpCollector is a Collector that discards every measurement.
type NoOpCollector struct{}

func (NoOpCollector) RecordPageFetch(outcome string, duration time.Duration)    {}
func (NoOpCollector) RecordAccountFetch(outcome string, duration time.Duration) {}
func (NoOpCollector) RecordRetry(call string)                                   {}
func (NoOpCollector) RecordCacheLookup(hit bool)                                {}
func (NoOpCollector) RecordEnrichmentGap()                                      {}
func (NoOpCollector) RecordEmitted(count int)                                   {}
func (NoOpCollector) RecordSyncRun(state string, duration time.Duration)        {}
