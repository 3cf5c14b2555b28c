// Package prometheus exports sync-engine metrics to Prometheus.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector backed by Prometheus.
type Collector struct {
	pageFetches    *prometheus.CounterVec
	accountFetches *prometheus.CounterVec
	retries        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	enrichmentGaps prometheus.Counter
	emitted        prometheus.Counter
	syncRuns       *prometheus.CounterVec

	pageLatency    prometheus.Histogram
	accountLatency prometheus.Histogram
	syncDuration   prometheus.Histogram
}

// NewCollector creates a Prometheus collector with the given namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		pageFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "page_fetches_total",
				Help:      "Total transaction page fetches by outcome",
			},
			[]string{"outcome"},
		),
		accountFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_fetches_total",
				Help:      "Total account fetches by outcome",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total transient-failure retries by call type",
			},
			[]string{"call"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_cache_lookups_total",
				Help:      "Total account cache lookups by result",
			},
			[]string{"result"},
		),
		enrichmentGaps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_gaps_total",
				Help:      "Transactions emitted without resolvable account details",
			},
		),
		emitted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_emitted_total",
				Help:      "Enriched transactions emitted to consumers",
			},
		),
		syncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Completed sync runs by terminal state",
			},
			[]string{"state"},
		),
		pageLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "page_fetch_duration_seconds",
				Help:      "Transaction page fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		accountLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "account_fetch_duration_seconds",
				Help:      "Account fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		syncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_run_duration_seconds",
				Help:      "End-to-end sync run duration",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
		),
	}
}

// Register registers all metrics with the given registerer.
func (c *Collector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.pageFetches, c.accountFetches, c.retries, c.cacheLookups,
		c.enrichmentGaps, c.emitted, c.syncRuns,
		c.pageLatency, c.accountLatency, c.syncDuration,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordPageFetch(outcome string, duration time.Duration) {
	c.pageFetches.WithLabelValues(outcome).Inc()
	c.pageLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordAccountFetch(outcome string, duration time.Duration) {
	c.accountFetches.WithLabelValues(outcome).Inc()
	c.accountLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordRetry(call string) {
	c.retries.WithLabelValues(call).Inc()
}

func (c *Collector) RecordCacheLookup(hit bool) {
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		c.cacheLookups.WithLabelValues("miss").Inc()
	}
}

func (c *Collector) RecordEnrichmentGap() {
	c.enrichmentGaps.Inc()
}

func (c *Collector) RecordEmitted(count int) {
	c.emitted.Add(float64(count))
}

func (c *Collector) RecordSyncRun(state string, duration time.Duration) {
	c.syncRuns.WithLabelValues(state).Inc()
	c.syncDuration.Observe(duration.Seconds())
}
