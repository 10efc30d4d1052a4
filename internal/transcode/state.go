// Package transcode re-encodes a source fMP4 file with the brick effect baked
// into every video frame, passing audio through untouched. It also hosts the
// Recorder, which writes live frames straight to a new file.
package transcode

// State is a transcode session's position in its lifecycle.
type State int

// Session states, in order. A session ends in StateCompleted or StateFailed.
const (
	StateIdle State = iota
	StateConfiguring
	StateRunning
	StateFinalizing
	StateCompleted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
