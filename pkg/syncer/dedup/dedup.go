// Package dedup tracks already-emitted transaction identifiers so a sync
// resumed with an overlapping since filter can skip records it delivered
// before.
//
// A bloom filter fronts an exact set: the filter answers "definitely
// unseen" without touching the set, and anything else falls through to the
// exact lookup. A bloom false positive therefore costs one map read and can
// never wrongly drop a record.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Tracker remembers emitted transaction identifiers. Safe for concurrent
// use.
type Tracker struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	ids    map[string]struct{}
}

// New creates a tracker sized for the expected number of identifiers.
func New(expectedItems uint, falsePositiveRate float64) *Tracker {
	if expectedItems == 0 {
		expectedItems = 10000
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}
	return &Tracker{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
		ids:    make(map[string]struct{}),
	}
}

// Seen reports whether Mark was called for id.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.filter.Test([]byte(id)) {
		return false
	}
	_, ok := t.ids[id]
	return ok
}

// Mark records id as emitted.
func (t *Tracker) Mark(id string) {
	t.mu.Lock()
	t.filter.Add([]byte(id))
	t.ids[id] = struct{}{}
	t.mu.Unlock()
}

// Len returns how many identifiers have been marked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
