package autoplay

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/infra/config"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
// playlists may be nil when no playlist provider is configured.
func NewProviderChainFromConfig(cfg config.AutoplayConfig, searcher Searcher, playlists PlaylistClient) (*ProviderChain, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no autoplay providers configured")
	}

	var providers []Provider
	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		switch pcfg.Type {
		case "lastfm":
			provider, err = NewLastFmProvider(pcfg.Settings)
		case "artist":
			provider, err = NewArtistProvider(searcher, pcfg.Settings)
		case "playlist":
			provider, err = NewPlaylistProvider(playlists, pcfg.Settings)
		default:
			return nil, errors.Newf("unsupported autoplay provider type: %s (provider index %d)", pcfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create autoplay provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, provider)
		zlog.Info().Msgf("registered autoplay provider: index=%d type=%s", i+1, pcfg.Type)
	}

	return NewProviderChain(providers...), nil
}
