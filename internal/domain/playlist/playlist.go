// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/encore/internal/domain/track"
)

// Playlist is a named, ordered collection of catalog tracks.
type Playlist struct {
	ID          string        // Platform playlist ID
	Name        string        // Playlist name
	Description string        // Playlist description
	URL         string        // Canonical URL
	Tracks      []track.Track // Playable tracks, in playlist order
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// TotalDuration returns the summed duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Sample returns up to n tracks whose URLs are not in exclude, in the order
// left by shuffle. shuffle may be nil to keep playlist order.
func (p *Playlist) Sample(n int, exclude map[string]bool, shuffle func(n int, swap func(i, j int))) []track.Track {
	if n <= 0 {
		return []track.Track{}
	}

	available := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if !exclude[t.URL] {
			available = append(available, t)
		}
	}
	if shuffle != nil {
		shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
	}
	return available[:min(n, len(available))]
}
