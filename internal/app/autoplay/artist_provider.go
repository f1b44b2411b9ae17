package autoplay

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/domain/track"
	"github.com/osa030/encore/internal/infra/config"
)

// ArtistProviderConfig holds the artist provider settings.
type ArtistProviderConfig struct {
	Source string `mapstructure:"source" default:"auto" validate:"oneof=auto youtube ytmusic soundcloud spotify"`
}

// ArtistProvider suggests other tracks by the artist of the latest seed,
// found through the catalog. It needs no credentials.
type ArtistProvider struct {
	searcher Searcher
	source   track.Source
}

// NewArtistProvider creates a provider from raw settings.
func NewArtistProvider(searcher Searcher, settings map[string]any) (*ArtistProvider, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}

	cfg, err := config.DecodeSettings[ArtistProviderConfig](settings)
	if err != nil {
		return nil, err
	}
	return &ArtistProvider{searcher: searcher, source: track.ParseSource(cfg.Source)}, nil
}

// Name returns the provider name.
func (p *ArtistProvider) Name() string {
	return "artist"
}

// Suggest searches the catalog for the latest seed's artist. Results rank
// in catalog order with scores below any Last.fm similarity.
func (p *ArtistProvider) Suggest(ctx context.Context, seeds []Seed, count int) ([]Suggestion, error) {
	if len(seeds) == 0 || seeds[0].Artist == "" || count <= 0 {
		return []Suggestion{}, nil
	}
	seed := seeds[0]

	results, err := p.searcher.Search(ctx, p.source, seed.Artist, count+1)
	if err != nil {
		return nil, errors.Wrapf(err, "search artist %s", seed.Artist)
	}

	suggestions := make([]Suggestion, 0, len(results))
	for i, t := range results {
		if t.URL == seed.Track.URL {
			continue
		}
		found := NewSeed(t)
		suggestions = append(suggestions, Suggestion{
			Title:  found.Title,
			Artist: found.Artist,
			Score:  0.3 / float64(i+1),
			Track:  &t,
		})
	}
	return suggestions, nil
}
