package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/encore/internal/domain/track"
)

func pendingOf(tracks ...track.Track) *fakeQueue {
	q := &fakeQueue{}
	for _, t := range tracks {
		q.pending = append(q.pending, track.QueuedTrack{Track: t, Requester: track.Requester{ID: "user1"}})
	}
	return q
}

func TestDuplicateTrackFilter_ExactMatch(t *testing.T) {
	queued := track.Track{
		Source: track.SourceYouTube,
		ID:     "dQw4w9WgXcQ",
		Title:  "Never Gonna Give You Up",
		Artist: "Rick Astley",
		URL:    "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}

	tests := []struct {
		name      string
		requested track.Track
		want      bool
	}{
		{"same url", track.Track{URL: queued.URL}, false},
		{"same id and source", track.Track{Source: track.SourceYouTube, ID: "dQw4w9WgXcQ", URL: "https://youtu.be/dQw4w9WgXcQ"}, false},
		{"same id other source", track.Track{Source: track.SourceSoundCloud, ID: "dQw4w9WgXcQ", URL: "https://soundcloud.com/a/b"}, true},
		{"different track", track.Track{Source: track.SourceYouTube, ID: "other", URL: "https://www.youtube.com/watch?v=other"}, true},
	}

	f := NewDuplicateTrackFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(context.Background(), Request{Queue: pendingOf(queued)}, tt.requested)
			assert.Equal(t, tt.want, result.Accepted)
			if !tt.want {
				assert.Equal(t, "duplicate_track", result.Code)
			}
		})
	}
}

func TestDuplicateTrackFilter_RemasterDetection(t *testing.T) {
	tests := []struct {
		name           string
		queuedTrack    track.Track
		requestedTrack track.Track
		shouldReject   bool
	}{
		{
			name:           "Standard remaster pattern",
			queuedTrack:    track.Track{Title: "Bohemian Rhapsody", Artist: "Queen", URL: "a"},
			requestedTrack: track.Track{Title: "Bohemian Rhapsody - 2011 Remaster", Artist: "Queen", URL: "b"},
			shouldReject:   true,
		},
		{
			name:           "Remastered in parentheses",
			queuedTrack:    track.Track{Title: "Yesterday", Artist: "The Beatles", URL: "a"},
			requestedTrack: track.Track{Title: "Yesterday (Remastered 2023)", Artist: "The Beatles", URL: "b"},
			shouldReject:   true,
		},
		{
			name:           "Cover song - different artist",
			queuedTrack:    track.Track{Title: "Yesterday", Artist: "The Beatles", URL: "a"},
			requestedTrack: track.Track{Title: "Yesterday", Artist: "Paul McCartney", URL: "b"},
			shouldReject:   false,
		},
		{
			name:           "Different songs - similar names",
			queuedTrack:    track.Track{Title: "Love", Artist: "John Lennon", URL: "a"},
			requestedTrack: track.Track{Title: "Love Song", Artist: "John Lennon", URL: "b"},
			shouldReject:   false,
		},
		{
			name:           "Radio Edit version",
			queuedTrack:    track.Track{Title: "Stairway to Heaven", Artist: "Led Zeppelin", URL: "a"},
			requestedTrack: track.Track{Title: "Stairway to Heaven (Radio Edit)", Artist: "led zeppelin", URL: "b"},
			shouldReject:   true,
		},
		{
			name:           "Official video upload",
			queuedTrack:    track.Track{Title: "Hotel California - Live", Artist: "Eagles", URL: "a"},
			requestedTrack: track.Track{Title: "Hotel California (Official Video)", Artist: "Eagles", URL: "b"},
			shouldReject:   true,
		},
		{
			name:           "Remix version - should be allowed",
			queuedTrack:    track.Track{Title: "Le Freak", Artist: "CHIC", URL: "a"},
			requestedTrack: track.Track{Title: "Le Freak (Oliver Heldens Remix)", Artist: "CHIC", URL: "b"},
			shouldReject:   false,
		},
		{
			name:           "Unknown artist",
			queuedTrack:    track.Track{Title: "Intro", URL: "a"},
			requestedTrack: track.Track{Title: "Intro", URL: "b"},
			shouldReject:   false,
		},
	}

	f := NewDuplicateTrackFilter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(context.Background(), Request{Queue: pendingOf(tt.queuedTrack)}, tt.requestedTrack)
			assert.Equal(t, !tt.shouldReject, result.Accepted)
		})
	}
}

func TestDuplicateTrackFilter_EmptyQueue(t *testing.T) {
	f := NewDuplicateTrackFilter()
	assert.True(t, f.Check(context.Background(), Request{Queue: pendingOf()}, track.Track{URL: "a"}).Accepted)
	assert.True(t, f.Check(context.Background(), Request{}, track.Track{URL: "a"}).Accepted)
}

func TestNormalizeTrackName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Let It Be - 2011 Remaster", "let it be"},
		{"Let It Be (Remastered 2023)", "let it be"},
		{"Song  [Remastered]", "song"},
		{"Song (Single Version)", "song"},
		{"Song - Radio Edit", "song"},
		{"Song [Official Audio]", "song"},
		{"  Plain   Title  ", "plain title"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTrackName(tt.in))
		})
	}
}
