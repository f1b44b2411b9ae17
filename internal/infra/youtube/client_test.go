package youtube

import (
	"context"
	"errors"
	"testing"
	"time"

	kkdai "github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/encore/internal/domain/track"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "watch url", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "watch url with params", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=43s&list=x", expected: "dQw4w9WgXcQ"},
		{name: "short link", input: "https://youtu.be/dQw4w9WgXcQ?si=abc", expected: "dQw4w9WgXcQ"},
		{name: "shorts", input: "https://youtube.com/shorts/dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "music link", input: "https://music.youtube.com/watch?v=dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "plain id", input: "dQw4w9WgXcQ", expected: "dQw4w9WgXcQ"},
		{name: "too short", input: "https://youtu.be/abc", expected: ""},
		{name: "not youtube", input: "https://example.com/page", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractVideoID(tt.input))
		})
	}
}

func TestIsVideoURL(t *testing.T) {
	assert.True(t, IsVideoURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.True(t, IsVideoURL("https://youtu.be/dQw4w9WgXcQ"))
	assert.False(t, IsVideoURL("https://music.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.False(t, IsVideoURL("dQw4w9WgXcQ"))
	assert.False(t, IsVideoURL("never gonna give you up"))
}

func TestSearch_LimitsAndDeduplicates(t *testing.T) {
	c := &Client{
		search: func(ctx context.Context, query string) ([]hit, error) {
			return []hit{
				{ID: "aaaaaaaaaaa", Title: "One"},
				{ID: "aaaaaaaaaaa", Title: "One again"},
				{ID: "", Title: "Channel"},
				{ID: "bbbbbbbbbbb", Title: "Two", Channel: "Band", Duration: "3:45"},
				{ID: "ccccccccccc", Title: "Three"},
			}, nil
		},
	}

	tracks, err := c.Search(context.Background(), "query", 2)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "One", tracks[0].Title)
	assert.Equal(t, "Two", tracks[1].Title)
	assert.Equal(t, "https://www.youtube.com/watch?v=bbbbbbbbbbb", tracks[1].URL)
	assert.Equal(t, track.SourceYouTube, tracks[1].Source)
	assert.Equal(t, "Band", tracks[1].Artist)
	assert.Equal(t, 225*time.Second, tracks[1].Duration)
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{input: "3:45", expected: 225 * time.Second},
		{input: "1:02:03", expected: time.Hour + 2*time.Minute + 3*time.Second},
		{input: "0:07", expected: 7 * time.Second},
		{input: "", expected: 0},
		{input: "LIVE", expected: 0},
		{input: "1:-2", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLength(tt.input))
		})
	}
}

func TestSearch_Error(t *testing.T) {
	c := &Client{
		search: func(ctx context.Context, query string) ([]hit, error) {
			return nil, errors.New("network down")
		},
	}

	_, err := c.Search(context.Background(), "query", 5)
	assert.Error(t, err)
}

func TestGetVideo(t *testing.T) {
	c := &Client{
		getVideo: func(ctx context.Context, id string) (*kkdai.Video, error) {
			assert.Equal(t, "dQw4w9WgXcQ", id)
			return &kkdai.Video{
				ID:       id,
				Title:    "Never Gonna Give You Up",
				Author:   "Rick Astley",
				Duration: 213*time.Second + 400*time.Millisecond,
				Thumbnails: kkdai.Thumbnails{
					{URL: "https://i.ytimg.com/small.jpg"},
					{URL: "https://i.ytimg.com/large.jpg"},
				},
			}, nil
		},
	}

	got, err := c.GetVideo(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Never Gonna Give You Up", got.Title)
	assert.Equal(t, "Rick Astley", got.Artist)
	assert.Equal(t, 213*time.Second, got.Duration)
	assert.Equal(t, "https://i.ytimg.com/large.jpg", got.ThumbnailURL)
}

func TestGetVideo_InvalidURL(t *testing.T) {
	c := &Client{}
	_, err := c.GetVideo(context.Background(), "https://example.com")
	assert.Error(t, err)
}
