package catalog

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/encore/internal/infra/config"
)

// ProviderSettings holds per-provider settings from the catalog config.
type ProviderSettings struct {
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec" default:"2" validate:"gt=0,lte=100"`
	Burst      int     `yaml:"burst" mapstructure:"burst" default:"4" validate:"gte=1,lte=100"`
	TimeoutSec int     `yaml:"timeout_sec" mapstructure:"timeout_sec" default:"10" validate:"gte=1,lte=120"`
}

// Clients bundles the platform clients providers are built from.
type Clients struct {
	Extractor    StreamExtractor
	YouTube      VideoClient
	YouTubeMusic TrackSearcher
	Spotify      SpotifyClient // nil when no credentials are configured
}

// DecodeProviderSettings decodes, defaults and validates provider settings.
func DecodeProviderSettings(settings map[string]any) (ProviderSettings, error) {
	return config.DecodeSettings[ProviderSettings](settings)
}

// NewAggregatorFromConfig creates an aggregator from configuration.
func NewAggregatorFromConfig(cfg *config.Config, clients Clients) (*Aggregator, error) {
	if len(cfg.Catalog.Providers) == 0 {
		return nil, errors.New("no catalog providers configured")
	}
	if clients.Extractor == nil {
		return nil, errors.New("stream extractor is required")
	}

	var providers []ProviderWithLimit

	for i, pcfg := range cfg.Catalog.Providers {
		zlog.Debug().Msgf("creating catalog provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)

		settings, err := DecodeProviderSettings(pcfg.Settings)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		var provider Provider
		switch pcfg.Type {
		case "youtube":
			if clients.YouTube == nil {
				return nil, errors.Newf("youtube client missing (provider index %d)", i)
			}
			provider = NewYouTubeProvider(clients.YouTube, clients.Extractor)

		case "ytmusic":
			if clients.YouTubeMusic == nil {
				return nil, errors.Newf("ytmusic client missing (provider index %d)", i)
			}
			provider = NewYouTubeMusicProvider(clients.YouTubeMusic, clients.Extractor)

		case "soundcloud":
			provider = NewSoundCloudProvider(clients.Extractor)

		case "spotify":
			if clients.Spotify == nil {
				zlog.Warn().Msg("spotify credentials not configured: spotify search will return no results")
			}
			provider = NewSpotifyProvider(clients.Spotify, clients.Extractor)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		providers = append(providers, ProviderWithLimit{
			Provider: provider,
			Limiter:  rate.NewLimiter(rate.Limit(settings.RatePerSec), settings.Burst),
			Timeout:  time.Duration(settings.TimeoutSec) * time.Second,
		})

		zlog.Info().Msgf("registered catalog provider: index=%d type=%s rate_per_sec=%.1f burst=%d timeout_sec=%d",
			i+1, pcfg.Type, settings.RatePerSec, settings.Burst, settings.TimeoutSec)
	}

	return NewAggregator(providers), nil
}
