package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/ytmusic"
)

// TrackSearcher defines a plain track search.
type TrackSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// YouTubeMusicProvider searches YouTube Music and streams through yt-dlp.
type YouTubeMusicProvider struct {
	client    TrackSearcher
	extractor StreamExtractor
}

// NewYouTubeMusicProvider creates a new YouTubeMusicProvider.
func NewYouTubeMusicProvider(client TrackSearcher, extractor StreamExtractor) *YouTubeMusicProvider {
	return &YouTubeMusicProvider{client: client, extractor: extractor}
}

// Source returns track.SourceYouTubeMusic.
func (p *YouTubeMusicProvider) Source() track.Source {
	return track.SourceYouTubeMusic
}

// Search searches YouTube Music tracks.
func (p *YouTubeMusicProvider) Search(ctx context.Context, query string, limit int) []track.Track {
	tracks, err := p.client.Search(ctx, query, limit)
	return absorb(p.Source(), tracks, err)
}

// ResolveStream resolves the track's audio stream.
func (p *YouTubeMusicProvider) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	target := t.URL
	if target == "" && t.ID != "" {
		target = ytmusic.WatchURL(t.ID)
	}
	return resolveStream(ctx, p.extractor, p.Source(), target)
}

// IsRecognizedURL reports whether input is a music.youtube.com link.
func (p *YouTubeMusicProvider) IsRecognizedURL(input string) bool {
	return ytmusic.IsTrackURL(input)
}

// GetTrackByURL loads track metadata through yt-dlp.
func (p *YouTubeMusicProvider) GetTrackByURL(ctx context.Context, url string) (track.Track, error) {
	r, err := p.extractor.Metadata(ctx, url)
	if err != nil {
		return track.Track{}, errors.WithSecondaryError(errors.Wrapf(ErrProviderUnavailable, "ytmusic: get track: %v", err), err)
	}
	t := fromResult(p.Source(), r)
	if id := ytmusic.ExtractVideoID(url); id != "" {
		t.ID = id
		t.URL = ytmusic.WatchURL(id)
	}
	return t, nil
}
