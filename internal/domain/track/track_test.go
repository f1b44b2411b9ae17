package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Source
	}{
		{name: "youtube", input: "youtube", expected: SourceYouTube},
		{name: "upper case ytmusic", input: "YTMusic", expected: SourceYouTubeMusic},
		{name: "padded soundcloud", input: "  soundcloud ", expected: SourceSoundCloud},
		{name: "spotify", input: "spotify", expected: SourceSpotify},
		{name: "empty", input: "", expected: SourceAuto},
		{name: "unknown", input: "deezer", expected: SourceAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSource(tt.input))
		})
	}
}

func TestNew_NormalizesDuration(t *testing.T) {
	tr := New(SourceYouTube, "abc", " Song ", " Artist ", "https://youtu.be/abc", 3*time.Minute+1500*time.Millisecond, "")

	assert.Equal(t, "Song", tr.Title)
	assert.Equal(t, "Artist", tr.Artist)
	assert.Equal(t, 3*time.Minute+time.Second, tr.Duration)
	assert.Equal(t, 181, tr.DurationSeconds())
	assert.Equal(t, SourceYouTube, tr.Source)
}

func TestNormalizeDuration_Negative(t *testing.T) {
	assert.Equal(t, time.Duration(0), NormalizeDuration(-5*time.Second))
}

func TestTrack_DisplayName(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "with artist",
			track:    Track{Title: "Song", Artist: "Artist"},
			expected: "Artist - Song",
		},
		{
			name:     "without artist",
			track:    Track{Title: "Song"},
			expected: "Song",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.DisplayName())
		})
	}
}

func TestNewQueuedTrack_CopiesTrack(t *testing.T) {
	original := Track{ID: "1", Title: "Song"}
	qt := NewQueuedTrack(original, Requester{ID: "u1", Name: "User"})

	qt.Track.Title = "Changed"

	assert.Equal(t, "Song", original.Title)
	assert.Equal(t, "u1", qt.Requester.ID)
	assert.False(t, qt.AddedAt.IsZero())
}
