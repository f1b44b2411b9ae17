package ytmusic

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/encore/internal/domain/track"
)

func TestIsTrackURL(t *testing.T) {
	assert.True(t, IsTrackURL("https://music.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.True(t, IsTrackURL("https://music.youtube.com/watch?list=x&v=dQw4w9WgXcQ"))
	assert.False(t, IsTrackURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.False(t, IsTrackURL("https://music.youtube.com/playlist?list=x"))
}

func TestExtractVideoID(t *testing.T) {
	assert.Equal(t, "dQw4w9WgXcQ", ExtractVideoID("https://music.youtube.com/watch?v=dQw4w9WgXcQ&feature=share"))
	assert.Equal(t, "", ExtractVideoID("https://music.youtube.com/"))
}

func TestSearch(t *testing.T) {
	c := &Client{
		search: func(query string) ([]item, error) {
			assert.Equal(t, "song", query)
			return []item{
				{VideoID: "aaaaaaaaaaa", Title: "Song", Artists: []string{"A", "B"}},
				{VideoID: "", Title: "Skipped"},
				{VideoID: "bbbbbbbbbbb", Title: "Song 2"},
				{VideoID: "ccccccccccc", Title: "Song 3"},
			}, nil
		},
	}

	tracks, err := c.Search(context.Background(), "song", 2)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "A, B", tracks[0].Artist)
	assert.Equal(t, "https://music.youtube.com/watch?v=aaaaaaaaaaa", tracks[0].URL)
	assert.Equal(t, track.SourceYouTubeMusic, tracks[0].Source)
	assert.Equal(t, "Song 2", tracks[1].Title)
}

func TestSearch_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := &Client{
		search: func(query string) ([]item, error) {
			<-release
			return nil, nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Search(ctx, "song", 5)
	assert.Error(t, err)
}
