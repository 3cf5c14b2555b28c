package syncer

// State is the sync run state machine:
//
//	Idle → Walking → (Paginating ↔ Enriching) → Completed | Failed
//
// Cancellation lands in Cancelled at a page boundary and, like Failed,
// reports the last completed watermark.
type State int

const (
	StateIdle State = iota
	StateWalking
	StateEnriching
	StateCompleted
	StateFailed
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateEnriching:
		return "enriching"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}
