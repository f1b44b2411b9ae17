package catalog

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/domain/track"
)

var soundCloudURLPattern = regexp.MustCompile(`^https?://(?:(?:www\.|m\.)?soundcloud\.com/[^/?#]+/[^/?#]+|on\.soundcloud\.com/[A-Za-z0-9]+)`)

// soundCloudSearchPrefix is the yt-dlp search extractor for SoundCloud.
const soundCloudSearchPrefix = "scsearch"

// SoundCloudProvider searches and streams SoundCloud through yt-dlp.
type SoundCloudProvider struct {
	extractor StreamExtractor
}

// NewSoundCloudProvider creates a new SoundCloudProvider.
func NewSoundCloudProvider(extractor StreamExtractor) *SoundCloudProvider {
	return &SoundCloudProvider{extractor: extractor}
}

// Source returns track.SourceSoundCloud.
func (p *SoundCloudProvider) Source() track.Source {
	return track.SourceSoundCloud
}

// Search searches SoundCloud tracks.
func (p *SoundCloudProvider) Search(ctx context.Context, query string, limit int) []track.Track {
	results, err := p.extractor.Search(ctx, soundCloudSearchPrefix, query, limit)
	if err != nil {
		return absorb(p.Source(), nil, err)
	}
	return fromResults(p.Source(), results)
}

// ResolveStream resolves the track's audio stream.
func (p *SoundCloudProvider) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	return resolveStream(ctx, p.extractor, p.Source(), t.URL)
}

// IsRecognizedURL reports whether input is a SoundCloud track link.
func (p *SoundCloudProvider) IsRecognizedURL(input string) bool {
	return soundCloudURLPattern.MatchString(strings.TrimSpace(input))
}

// GetTrackByURL loads track metadata through yt-dlp.
func (p *SoundCloudProvider) GetTrackByURL(ctx context.Context, url string) (track.Track, error) {
	r, err := p.extractor.Metadata(ctx, url)
	if err != nil {
		return track.Track{}, errors.WithSecondaryError(errors.Wrapf(ErrProviderUnavailable, "soundcloud: get track: %v", err), err)
	}
	t := fromResult(p.Source(), r)
	if t.URL == "" {
		t.URL = strings.TrimSpace(url)
	}
	return t, nil
}
