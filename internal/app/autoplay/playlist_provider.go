package autoplay

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/domain/playlist"
	"github.com/osa030/encore/internal/infra/config"
)

// playlistScore ranks playlist picks below any seed-related suggestion.
const playlistScore = 0.02

// PlaylistClient loads a playlist with up to maxTracks tracks.
type PlaylistClient interface {
	GetPlaylist(ctx context.Context, playlistURL string, maxTracks int) (*playlist.Playlist, error)
}

// PlaylistProviderConfig holds the playlist provider settings.
type PlaylistProviderConfig struct {
	PlaylistURL string `mapstructure:"playlist_url" validate:"required"`
	MaxTracks   int    `mapstructure:"max_tracks" default:"500" validate:"gte=1,lte=5000"`
}

// PlaylistProvider suggests random tracks from a configured playlist,
// ignoring the seeds. It keeps autoplay going when nothing related is found.
// The playlist is loaded on first use and cached; a failed load is retried
// on the next call.
type PlaylistProvider struct {
	client  PlaylistClient
	config  PlaylistProviderConfig
	shuffle func(n int, swap func(i, j int))

	mu       sync.Mutex
	playlist *playlist.Playlist
}

// NewPlaylistProvider creates a provider from raw settings.
func NewPlaylistProvider(client PlaylistClient, settings map[string]any) (*PlaylistProvider, error) {
	if client == nil {
		return nil, errors.New("playlist provider requires Spotify credentials")
	}

	cfg, err := config.DecodeSettings[PlaylistProviderConfig](settings)
	if err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("playlist provider config: %+v", cfg)
	return &PlaylistProvider{client: client, config: cfg, shuffle: rand.Shuffle}, nil
}

// Name returns the provider name.
func (p *PlaylistProvider) Name() string {
	return "playlist"
}

// Suggest returns up to count random playlist tracks that are not seeds.
func (p *PlaylistProvider) Suggest(ctx context.Context, seeds []Seed, count int) ([]Suggestion, error) {
	if count <= 0 {
		return []Suggestion{}, nil
	}

	pl, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	exclude := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		exclude[s.Track.URL] = true
	}

	picks := pl.Sample(count, exclude, p.shuffle)
	suggestions := make([]Suggestion, 0, len(picks))
	for _, t := range picks {
		suggestions = append(suggestions, Suggestion{
			Title:  t.Title,
			Artist: t.Artist,
			Score:  playlistScore,
			Track:  &t,
		})
	}
	return suggestions, nil
}

func (p *PlaylistProvider) load(ctx context.Context) (*playlist.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playlist != nil {
		return p.playlist, nil
	}

	pl, err := p.client.GetPlaylist(ctx, p.config.PlaylistURL, p.config.MaxTracks)
	if err != nil {
		return nil, errors.Wrapf(err, "load playlist %s", p.config.PlaylistURL)
	}
	zlog.Info().Msgf("autoplay: loaded playlist: name=%q tracks=%d duration=%v", pl.Name, pl.Len(), pl.TotalDuration())
	p.playlist = pl
	return pl, nil
}
