package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/spotify"
)

// SpotifyClient defines the Spotify operations needed by the provider.
type SpotifyClient interface {
	GetTrack(ctx context.Context, trackID string) (track.Track, error)
	Search(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// SpotifyProvider searches the Spotify catalog. Spotify audio is not
// streamable, so streams are looked up on YouTube by artist and title.
type SpotifyProvider struct {
	client    SpotifyClient // nil when no credentials are configured
	extractor StreamExtractor
}

// NewSpotifyProvider creates a new SpotifyProvider. client may be nil.
func NewSpotifyProvider(client SpotifyClient, extractor StreamExtractor) *SpotifyProvider {
	return &SpotifyProvider{client: client, extractor: extractor}
}

// Source returns track.SourceSpotify.
func (p *SpotifyProvider) Source() track.Source {
	return track.SourceSpotify
}

// Search searches Spotify tracks. Without credentials it returns nothing.
func (p *SpotifyProvider) Search(ctx context.Context, query string, limit int) []track.Track {
	if p.client == nil {
		return []track.Track{}
	}
	tracks, err := p.client.Search(ctx, query, limit)
	return absorb(p.Source(), tracks, err)
}

// ResolveStream finds the track on YouTube.
func (p *SpotifyProvider) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	query := t.SearchQuery()
	if query == "" {
		return nil, errors.Wrap(ErrStreamUnavailable, "spotify: track has no title")
	}
	return resolveStream(ctx, p.extractor, p.Source(), "ytsearch1:"+query)
}

// IsRecognizedURL reports whether input is a Spotify track link or URI.
func (p *SpotifyProvider) IsRecognizedURL(input string) bool {
	return spotify.IsTrackURL(input)
}

// GetTrackByURL loads a Spotify track.
func (p *SpotifyProvider) GetTrackByURL(ctx context.Context, url string) (track.Track, error) {
	if p.client == nil {
		return track.Track{}, errors.Wrap(ErrProviderUnavailable, "spotify: no credentials configured")
	}
	t, err := p.client.GetTrack(ctx, url)
	if err != nil {
		return track.Track{}, errors.WithSecondaryError(errors.Wrapf(ErrProviderUnavailable, "spotify: get track: %v", err), err)
	}
	return t, nil
}
