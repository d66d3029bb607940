package engine

// State is the observable state of the capture worker.
type State int32

const (
	// Idle means no capture runs and no artifact is pending.
	Idle State = iota
	// Capturing means the worker is reading registers.
	Capturing
	// PendingRead means an artifact waits for its external reader.
	PendingRead
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case PendingRead:
		return "pending_read"
	default:
		return "unknown"
	}
}

// PendingRead -> Capturing only happens for captures that produce no
// artifact.
var allowedTransitions = map[State]map[State]struct{}{
	Idle: {
		Capturing: {},
	},
	Capturing: {
		Idle:        {},
		PendingRead: {},
	},
	PendingRead: {
		Idle:      {},
		Capturing: {},
	},
}

// CanTransition reports whether the worker may move from one state to another.
func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
