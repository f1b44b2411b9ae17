package playback

import "github.com/osa030/encore/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackQueued   EventType = iota // Track was added to the queue
	EventTrackStarted                   // Track started playing
	EventTrackEnded                     // Track finished playing
	EventTrackFailed                    // Track could not be streamed or errored mid-stream
	EventTrackSkipped                   // Track was skipped
	EventStateChanged                   // Playback state changed (pause/resume/connect)
	EventQueueEmpty                     // Queue ran out
	EventSessionClosed                  // Session left the voice channel
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackQueued:
		return "track_queued"
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventTrackFailed:
		return "track_failed"
	case EventTrackSkipped:
		return "track_skipped"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	case EventSessionClosed:
		return "session_closed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type    EventType
	GuildID string
	Track   *track.QueuedTrack // Affected track (nil for some events)
	State   State              // Session state after the event
	Reason  string             // Failure or close reason, if any
}
