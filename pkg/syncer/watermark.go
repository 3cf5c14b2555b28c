package syncer

import (
	"time"

	"ledgersync/pkg/api"
)

// Watermark marks resumable sync progress. Cursor is the position the next
// page fetch would use, captured only at page boundaries; LastSeenAt is the
// most recent creation/settlement time among emitted transactions.
//
// When a run completes there is no next cursor, and when resuming across
// sessions the remote may not honor old cursors at all; SinceFilter is the
// fallback for both cases.
type Watermark struct {
	Cursor     api.Cursor `json:"cursor,omitempty"`
	LastSeenAt time.Time  `json:"lastSeenAt,omitempty"`
}

// IsZero reports whether no progress has been recorded.
func (w Watermark) IsZero() bool {
	return w.Cursor.IsZero() && w.LastSeenAt.IsZero()
}

// observe folds a transaction timestamp into the watermark.
func (w *Watermark) observe(t time.Time) {
	if t.After(w.LastSeenAt) {
		w.LastSeenAt = t
	}
}

// SinceFilter returns the timestamp to use as a since filter on the next
// invocation, backed off by an overlap window. Resuming by timestamp is
// at-least-once: records inside the window may be delivered again, which a
// dedup.Tracker absorbs for callers that need exactly-once emission.
func (w Watermark) SinceFilter(window time.Duration) time.Time {
	if w.LastSeenAt.IsZero() {
		return time.Time{}
	}
	return w.LastSeenAt.Add(-window)
}
