// Package catalog provides music platform search and stream resolution.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/ytdlp"
)

var (
	// ErrProviderUnavailable marks failures talking to a platform.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNoResultsFound is returned when no provider returned anything.
	ErrNoResultsFound = errors.New("no results found")
	// ErrStreamUnavailable is returned when a track cannot be streamed.
	ErrStreamUnavailable = errors.New("stream unavailable")
	// ErrUnknownSource is returned for a source no provider serves.
	ErrUnknownSource = errors.New("unknown source")
)

// Provider is the interface for catalog providers.
type Provider interface {
	// Source returns the platform tag of the provider.
	Source() track.Source

	// Search returns tracks in relevance order. Platform failures are
	// logged and yield an empty slice.
	Search(ctx context.Context, query string, limit int) []track.Track

	// ResolveStream returns a playable handle for the track.
	ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error)

	// IsRecognizedURL reports whether the input is a link of this platform.
	// It never touches the network.
	IsRecognizedURL(input string) bool
}

// URLResolver is implemented by providers that can load a track from a link.
type URLResolver interface {
	GetTrackByURL(ctx context.Context, url string) (track.Track, error)
}

// StreamExtractor defines the yt-dlp operations providers rely on.
type StreamExtractor interface {
	Search(ctx context.Context, prefix, query string, limit int) ([]ytdlp.Result, error)
	Metadata(ctx context.Context, url string) (ytdlp.Result, error)
	Resolve(ctx context.Context, target string) (*track.StreamHandle, error)
}

// absorb turns a provider failure into an empty result.
func absorb(source track.Source, tracks []track.Track, err error) []track.Track {
	if err != nil {
		zlog.Warn().Msgf("provider search failed, returning no results: provider=%s error=%v", source, err)
		return []track.Track{}
	}
	if tracks == nil {
		return []track.Track{}
	}
	return tracks
}

func resolveStream(ctx context.Context, ex StreamExtractor, source track.Source, target string) (*track.StreamHandle, error) {
	if target == "" {
		return nil, errors.Wrapf(ErrStreamUnavailable, "%s: track has no stream target", source)
	}
	h, err := ex.Resolve(ctx, target)
	if err != nil {
		return nil, errors.WithSecondaryError(errors.Wrapf(ErrStreamUnavailable, "%s: resolve stream: %v", source, err), err)
	}
	return h, nil
}

// fromResult converts yt-dlp output into a track.
func fromResult(source track.Source, r ytdlp.Result) track.Track {
	return track.New(source, r.ID, r.Title, r.Uploader, r.URL, r.Duration, r.ThumbnailURL)
}

func fromResults(source track.Source, rs []ytdlp.Result) []track.Track {
	tracks := make([]track.Track, 0, len(rs))
	for _, r := range rs {
		tracks = append(tracks, fromResult(source, r))
	}
	return tracks
}
