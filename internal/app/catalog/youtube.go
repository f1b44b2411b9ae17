package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/youtube"
)

// VideoClient defines the YouTube operations needed by the provider.
type VideoClient interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
	GetVideo(ctx context.Context, input string) (track.Track, error)
}

// YouTubeProvider searches YouTube and streams through yt-dlp.
type YouTubeProvider struct {
	client    VideoClient
	extractor StreamExtractor
}

// NewYouTubeProvider creates a new YouTubeProvider.
func NewYouTubeProvider(client VideoClient, extractor StreamExtractor) *YouTubeProvider {
	return &YouTubeProvider{client: client, extractor: extractor}
}

// Source returns track.SourceYouTube.
func (p *YouTubeProvider) Source() track.Source {
	return track.SourceYouTube
}

// Search searches YouTube videos.
func (p *YouTubeProvider) Search(ctx context.Context, query string, limit int) []track.Track {
	tracks, err := p.client.Search(ctx, query, limit)
	return absorb(p.Source(), tracks, err)
}

// ResolveStream resolves the video's audio stream.
func (p *YouTubeProvider) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	target := t.URL
	if target == "" && t.ID != "" {
		target = youtube.WatchURL(t.ID)
	}
	return resolveStream(ctx, p.extractor, p.Source(), target)
}

// IsRecognizedURL reports whether input is a YouTube video link.
func (p *YouTubeProvider) IsRecognizedURL(input string) bool {
	return youtube.IsVideoURL(input)
}

// GetTrackByURL loads video metadata for a link.
func (p *YouTubeProvider) GetTrackByURL(ctx context.Context, url string) (track.Track, error) {
	t, err := p.client.GetVideo(ctx, url)
	if err != nil {
		return track.Track{}, errors.WithSecondaryError(errors.Wrapf(ErrProviderUnavailable, "youtube: get track: %v", err), err)
	}
	return t, nil
}
