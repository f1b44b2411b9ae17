package autoplay

import (
	"context"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/domain/track"
)

// ErrNoHistory is returned when there is nothing to base a suggestion on.
var ErrNoHistory = errors.New("no played tracks to seed autoplay")

// Config holds autoplay settings.
type Config struct {
	SeedCount      int // Most recent tracks used as seeds
	CandidateCount int // Suggestions requested and tried per lookup
	PoolSize       int // Top suggestions shuffled for variety; 1 disables
}

// Autoplayer turns a guild's play history into one follow-up track.
type Autoplayer struct {
	cfg      Config
	chain    *ProviderChain
	searcher Searcher
	shuffler func(n int, swap func(i, j int))
}

// New creates an autoplayer.
func New(cfg Config, chain *ProviderChain, searcher Searcher) *Autoplayer {
	if cfg.SeedCount <= 0 {
		cfg.SeedCount = 3
	}
	if cfg.CandidateCount <= 0 {
		cfg.CandidateCount = 10
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 3
	}
	return &Autoplayer{cfg: cfg, chain: chain, searcher: searcher, shuffler: rand.Shuffle}
}

// Next picks a track related to history (most recent first) that is not in
// history itself.
func (a *Autoplayer) Next(ctx context.Context, history []track.Track) (track.Track, error) {
	if len(history) == 0 {
		return track.Track{}, ErrNoHistory
	}

	played := make(map[string]bool, len(history))
	playedKeys := make(map[string]bool, len(history))
	seeds := make([]Seed, 0, a.cfg.SeedCount)
	for i, t := range history {
		seed := NewSeed(t)
		played[t.URL] = true
		playedKeys[seed.Key()] = true
		if i < a.cfg.SeedCount {
			seeds = append(seeds, seed)
		}
	}

	suggestions, err := a.chain.Suggest(ctx, seeds, a.cfg.CandidateCount, playedKeys)
	if err != nil {
		return track.Track{}, err
	}
	if len(suggestions) > a.cfg.CandidateCount {
		suggestions = suggestions[:a.cfg.CandidateCount]
	}
	pool := suggestions[:min(a.cfg.PoolSize, len(suggestions))]
	a.shuffler(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	for _, s := range suggestions {
		if err := ctx.Err(); err != nil {
			return track.Track{}, err
		}
		t, ok := a.resolve(ctx, s)
		if !ok || played[t.URL] {
			continue
		}
		zlog.Debug().Msgf("autoplay: picked suggestion: query=%q score=%.2f url=%s", s.Query(), s.Score, t.URL)
		return t, nil
	}
	return track.Track{}, errors.Wrapf(ErrNoSuggestion, "none of %d suggestions resolved", len(suggestions))
}

func (a *Autoplayer) resolve(ctx context.Context, s Suggestion) (track.Track, bool) {
	if s.Track != nil {
		return *s.Track, true
	}

	results, err := a.searcher.Search(ctx, track.SourceAuto, s.Query(), 1)
	if err != nil || len(results) == 0 {
		zlog.Debug().Msgf("autoplay: suggestion not found in catalog: query=%q error=%v", s.Query(), err)
		return track.Track{}, false
	}
	return results[0], true
}
