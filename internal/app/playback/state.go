// Package playback provides the per-guild playback session state machine.
package playback

// State represents the playback state.
type State int

const (
	StateIdle      State = iota // No voice connection
	StateConnected              // Connected, nothing playing
	StatePlaying                // Track is playing
	StatePaused                 // Track is paused
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Active reports whether a track is loaded into the connection.
func (s State) Active() bool {
	return s == StatePlaying || s == StatePaused
}
