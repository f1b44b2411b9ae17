// Package youtube provides YouTube search and video metadata lookups.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	kkdai "github.com/kkdai/youtube/v2"
	"github.com/ppalone/ytsearch"

	"github.com/osa030/encore/internal/domain/track"
)

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	videoURLPattern = regexp.MustCompile(`^https?://(?:www\.|m\.)?(?:youtube\.com/(?:watch\?|shorts/|live/|embed/)|youtu\.be/)`)
)

// requestTimeout bounds each HTTP round trip to YouTube.
const requestTimeout = 15 * time.Second

// hit is a search result before conversion.
type hit struct {
	ID       string
	Title    string
	Channel  string
	Duration string // "3:45" or "1:02:03"; empty for live streams
}

// Client searches YouTube and reads video metadata.
type Client struct {
	search   func(ctx context.Context, query string) ([]hit, error)
	getVideo func(ctx context.Context, id string) (*kkdai.Video, error)
}

// New creates a YouTube client. No API key is needed.
func New() *Client {
	httpClient := &http.Client{Timeout: requestTimeout}
	sc := ytsearch.NewClient(httpClient)
	vc := &kkdai.Client{HTTPClient: httpClient}

	return &Client{
		search: func(ctx context.Context, query string) ([]hit, error) {
			res, err := sc.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			hits := make([]hit, 0, len(res.Results))
			for _, v := range res.Results {
				hits = append(hits, hit{ID: v.VideoID, Title: v.Title, Channel: v.Channel, Duration: v.Duration})
			}
			return hits, nil
		},
		getVideo: func(ctx context.Context, id string) (*kkdai.Video, error) {
			return vc.GetVideoContext(ctx, id)
		},
	}
}

// Search returns up to limit videos for the query.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("search query is required")
	}

	hits, err := c.search(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search")
	}

	seen := make(map[string]bool, len(hits))
	tracks := make([]track.Track, 0, min(limit, len(hits)))
	for _, h := range hits {
		if len(tracks) >= limit {
			break
		}
		if h.ID == "" || seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		tracks = append(tracks, track.New(track.SourceYouTube, h.ID, h.Title, h.Channel, WatchURL(h.ID), ParseLength(h.Duration), ThumbnailURL(h.ID)))
	}
	return tracks, nil
}

// GetVideo returns the track for a video URL or ID.
func (c *Client) GetVideo(ctx context.Context, input string) (track.Track, error) {
	id := ExtractVideoID(input)
	if id == "" {
		return track.Track{}, errors.Newf("invalid youtube url: %s", input)
	}

	v, err := c.getVideo(ctx, id)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to get video")
	}

	thumb := ThumbnailURL(id)
	if len(v.Thumbnails) > 0 {
		thumb = v.Thumbnails[len(v.Thumbnails)-1].URL
	}
	return track.New(track.SourceYouTube, id, v.Title, v.Author, WatchURL(id), v.Duration, thumb), nil
}

// ParseLength parses a "m:ss" or "h:mm:ss" length. It returns 0 when the
// text is not a length.
func ParseLength(text string) time.Duration {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	var total int
	for _, part := range strings.Split(text, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}

// ThumbnailURL returns the default thumbnail for a video ID.
func ThumbnailURL(id string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", id)
}

// IsVideoURL reports whether input is a youtube.com or youtu.be video link.
// music.youtube.com links are left to the YouTube Music provider.
func IsVideoURL(input string) bool {
	return videoURLPattern.MatchString(strings.TrimSpace(input)) && ExtractVideoID(input) != ""
}

// ExtractVideoID returns the 11 character video ID of a URL, or the input
// itself when it already is an ID. It returns "" when nothing matches.
func ExtractVideoID(input string) string {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input
	}

	u, err := url.Parse(input)
	if err != nil {
		return ""
	}

	var id string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case u.Query().Get("v") != "":
		id = u.Query().Get("v")
	default:
		for _, prefix := range []string{"/shorts/", "/live/", "/embed/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				break
			}
		}
	}

	if !videoIDPattern.MatchString(id) {
		return ""
	}
	return id
}
