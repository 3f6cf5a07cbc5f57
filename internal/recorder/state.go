package recorder

// State represents the lifecycle state of a channel recorder.
type State int

const (
	// StateIdle means no capture is in progress and none is being retried.
	StateIdle State = iota

	// StateRunning means a capture process is active or being restarted.
	StateRunning

	// StateFailed means the restart tolerance was exhausted. A failed
	// recorder stays failed until an operator resets it.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsActive returns true if the recorder is supervising a capture.
func (s State) IsActive() bool {
	return s == StateRunning
}
