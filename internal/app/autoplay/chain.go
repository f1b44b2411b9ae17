package autoplay

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrNoSuggestion is returned when no provider has a usable suggestion.
var ErrNoSuggestion = errors.New("no autoplay suggestion")

// ProviderChain asks every provider and merges their suggestions.
type ProviderChain struct {
	providers []Provider
}

// NewProviderChain creates a new provider chain. Earlier providers win ties.
func NewProviderChain(providers ...Provider) *ProviderChain {
	return &ProviderChain{providers: providers}
}

// Suggest collects suggestions from all providers, drops the ones whose key
// is in exclude and sorts the rest by score. A suggestion returned by
// several providers keeps its best score.
func (c *ProviderChain) Suggest(ctx context.Context, seeds []Seed, count int, exclude map[string]bool) ([]Suggestion, error) {
	var merged []Suggestion
	index := make(map[string]int)

	for i, p := range c.providers {
		zlog.Debug().Msgf("autoplay: trying provider: index=%d total=%d name=%s", i+1, len(c.providers), p.Name())

		suggestions, err := p.Suggest(ctx, seeds, count)
		if err != nil {
			zlog.Warn().Msgf("autoplay: provider failed, trying next: provider=%s error=%v", p.Name(), err)
			continue
		}

		added := 0
		for _, s := range suggestions {
			key := s.Key()
			if exclude[key] {
				continue
			}
			if j, ok := index[key]; ok {
				if s.Score > merged[j].Score {
					merged[j].Score = s.Score
				}
				if merged[j].Track == nil {
					merged[j].Track = s.Track
				}
				continue
			}
			index[key] = len(merged)
			merged = append(merged, s)
			added++
		}
		zlog.Debug().Msgf("autoplay: provider returned suggestions: provider=%s count=%d new=%d", p.Name(), len(suggestions), added)
	}

	if len(merged) == 0 {
		return nil, ErrNoSuggestion
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged, nil
}

// Providers returns the providers in order.
func (c *ProviderChain) Providers() []Provider {
	return c.providers
}
