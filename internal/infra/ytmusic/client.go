// Package ytmusic provides YouTube Music track search.
package ytmusic

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	ytm "github.com/raitonoberu/ytmusic"

	"github.com/osa030/encore/internal/domain/track"
)

var watchURLPattern = regexp.MustCompile(`^https?://music\.youtube\.com/watch\?(?:.*&)?v=([A-Za-z0-9_-]{11})`)

// item is a search result before conversion.
type item struct {
	VideoID string
	Title   string
	Artists []string
}

// Client searches YouTube Music.
type Client struct {
	search func(query string) ([]item, error)
}

// New creates a YouTube Music client.
func New() *Client {
	return &Client{
		search: func(query string) ([]item, error) {
			r, err := ytm.TrackSearch(query).Next()
			if err != nil {
				return nil, err
			}
			items := make([]item, 0, len(r.Tracks))
			for _, t := range r.Tracks {
				artists := make([]string, 0, len(t.Artists))
				for _, a := range t.Artists {
					artists = append(artists, a.Name)
				}
				items = append(items, item{VideoID: t.VideoID, Title: t.Title, Artists: artists})
			}
			return items, nil
		},
	}
}

// Search returns up to limit tracks. The underlying library is not context
// aware, so cancellation only stops waiting for the result.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}

	type result struct {
		items []item
		err   error
	}
	done := make(chan result, 1)
	go func() {
		items, err := c.search(query)
		done <- result{items, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "ytmusic search cancelled")
	case r = <-done:
	}
	if r.err != nil {
		return nil, errors.Wrap(r.err, "failed to search")
	}

	tracks := make([]track.Track, 0, min(limit, len(r.items)))
	for _, it := range r.items {
		if len(tracks) >= limit {
			break
		}
		if it.VideoID == "" {
			continue
		}
		tracks = append(tracks, track.New(
			track.SourceYouTubeMusic,
			it.VideoID,
			it.Title,
			strings.Join(it.Artists, ", "),
			WatchURL(it.VideoID),
			0,
			fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", it.VideoID),
		))
	}
	return tracks, nil
}

// WatchURL returns the YouTube Music URL for a video ID.
func WatchURL(id string) string {
	return "https://music.youtube.com/watch?v=" + id
}

// IsTrackURL reports whether input is a music.youtube.com watch link.
func IsTrackURL(input string) bool {
	return watchURLPattern.MatchString(strings.TrimSpace(input))
}

// ExtractVideoID returns the video ID of a music.youtube.com link or "".
func ExtractVideoID(input string) string {
	m := watchURLPattern.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return ""
	}
	return m[1]
}
