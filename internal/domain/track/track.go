// Package track provides the Track domain entity.
package track

import (
	"strings"
	"time"
)

// Source identifies the catalog platform a track came from.
type Source string

const (
	SourceYouTube      Source = "youtube"
	SourceYouTubeMusic Source = "ytmusic"
	SourceSoundCloud   Source = "soundcloud"
	SourceSpotify      Source = "spotify"
	SourceAuto         Source = "auto" // Search across every provider
)

// String returns the string representation of the source.
func (s Source) String() string {
	return string(s)
}

// ParseSource converts user input into a Source.
// Unknown values fall back to SourceAuto.
func ParseSource(s string) Source {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceYouTube:
		return SourceYouTube
	case SourceYouTubeMusic:
		return SourceYouTubeMusic
	case SourceSoundCloud:
		return SourceSoundCloud
	case SourceSpotify:
		return SourceSpotify
	default:
		return SourceAuto
	}
}

// Track represents a playable item from one catalog platform.
// Tracks are values: enrich them by copying into a QueuedTrack.
type Track struct {
	ID           string        // Platform-specific ID (optional)
	Title        string        // Track title
	Artist       string        // Artist or uploader
	URL          string        // Canonical URL
	Duration     time.Duration // Duration, whole seconds
	ThumbnailURL string        // Thumbnail or album art URL
	Source       Source        // Platform tag
}

// New creates a track with its duration normalized to whole seconds.
func New(source Source, id, title, artist, url string, duration time.Duration, thumbnail string) Track {
	return Track{
		ID:           id,
		Title:        strings.TrimSpace(title),
		Artist:       strings.TrimSpace(artist),
		URL:          url,
		Duration:     NormalizeDuration(duration),
		ThumbnailURL: thumbnail,
		Source:       source,
	}
}

// NormalizeDuration truncates a duration to whole seconds. Negative values become zero.
func NormalizeDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}

// DurationSeconds returns the duration in seconds.
func (t Track) DurationSeconds() int {
	return int(t.Duration / time.Second)
}

// DisplayName returns "Artist - Title" or just the title when the artist is unknown.
func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// SearchQuery returns a query suitable for finding this track on another platform.
func (t Track) SearchQuery() string {
	return t.DisplayName()
}

// Requester represents the person who requested the track.
type Requester struct {
	ID   string // Chat-platform user ID
	Name string // Display name
}

// QueuedTrack represents a track in a guild queue.
type QueuedTrack struct {
	Track     Track     // Catalog track info
	Requester Requester // Requester info
	AddedAt   time.Time // Time when added to queue
}

// NewQueuedTrack wraps a track with requester metadata.
func NewQueuedTrack(t Track, requester Requester) QueuedTrack {
	return QueuedTrack{
		Track:     t,
		Requester: requester,
		AddedAt:   time.Now(),
	}
}
