package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/encore/internal/domain/track"
)

// DefaultTimeout bounds one provider search or link lookup.
const DefaultTimeout = 10 * time.Second

// ProviderWithLimit wraps a provider with its outbound search limiter.
type ProviderWithLimit struct {
	Provider Provider
	Limiter  *rate.Limiter // nil means unlimited
	Timeout  time.Duration // DefaultTimeout when zero
}

// limited is a provider whose metadata calls wait on a rate limiter and
// run under a deadline.
type limited struct {
	Provider
	limiter *rate.Limiter
	timeout time.Duration
}

// Search waits for the limiter before searching. The wait counts against
// the timeout.
func (l *limited) Search(ctx context.Context, query string, limit int) []track.Track {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.limiter.Wait(ctx); err != nil {
		zlog.Debug().Msgf("provider search not attempted: provider=%s error=%v", l.Source(), err)
		return []track.Track{}
	}
	return l.Provider.Search(ctx, query, limit)
}

func (l *limited) lookup(ctx context.Context, url string) (track.Track, error) {
	r, ok := l.Provider.(URLResolver)
	if !ok {
		return track.Track{}, errors.Wrapf(ErrProviderUnavailable, "%s does not resolve links", l.Source())
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return r.GetTrackByURL(ctx, url)
}

// Aggregator holds providers in priority order.
type Aggregator struct {
	providers []*limited
	bySource  map[track.Source]*limited
}

// NewAggregator creates an aggregator. The slice order is the priority order.
func NewAggregator(providers []ProviderWithLimit) *Aggregator {
	a := &Aggregator{
		providers: make([]*limited, 0, len(providers)),
		bySource:  make(map[track.Source]*limited, len(providers)),
	}
	for _, pl := range providers {
		if pl.Provider == nil {
			continue
		}
		if _, dup := a.bySource[pl.Provider.Source()]; dup {
			zlog.Warn().Msgf("duplicate provider ignored: provider=%s", pl.Provider.Source())
			continue
		}
		lim := pl.Limiter
		if lim == nil {
			lim = rate.NewLimiter(rate.Inf, 0)
		}
		timeout := pl.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		l := &limited{Provider: pl.Provider, limiter: lim, timeout: timeout}
		a.providers = append(a.providers, l)
		a.bySource[pl.Provider.Source()] = l
	}
	return a
}

// Search searches one provider, or every provider in parallel for
// track.SourceAuto. Auto results are concatenated in priority order.
func (a *Aggregator) Search(ctx context.Context, source track.Source, query string, limit int) ([]track.Track, error) {
	if source != track.SourceAuto {
		p, ok := a.bySource[source]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownSource, "source=%s", source)
		}
		tracks := p.Search(ctx, query, limit)
		if len(tracks) == 0 {
			return nil, errors.Wrapf(ErrNoResultsFound, "source=%s query=%q", source, query)
		}
		return tracks, nil
	}

	results := make([][]track.Track, len(a.providers))
	var wg sync.WaitGroup
	for i, p := range a.providers {
		wg.Add(1)
		go func(i int, p *limited) {
			defer wg.Done()
			zlog.Debug().Msgf("searching provider: index=%d total=%d provider=%s", i+1, len(a.providers), p.Source())
			results[i] = p.Search(ctx, query, limit)
		}(i, p)
	}
	wg.Wait()

	var all []track.Track
	for i, r := range results {
		if len(r) == 0 {
			zlog.Debug().Msgf("provider returned no results: provider=%s", a.providers[i].Source())
			continue
		}
		all = append(all, r...)
	}
	if len(all) == 0 {
		return nil, errors.Wrapf(ErrNoResultsFound, "query=%q", query)
	}

	zlog.Info().Msgf("search finished: query=%q providers=%d results=%d", query, len(a.providers), len(all))
	return all, nil
}

// Classify returns the source of the first provider that recognizes input.
func (a *Aggregator) Classify(input string) (track.Source, bool) {
	for _, p := range a.providers {
		if p.IsRecognizedURL(input) {
			return p.Source(), true
		}
	}
	return "", false
}

// Provider returns the provider for source.
func (a *Aggregator) Provider(source track.Source) (Provider, bool) {
	p, ok := a.bySource[source]
	if !ok {
		return nil, false
	}
	return p, true
}

// Providers returns every provider in priority order.
func (a *Aggregator) Providers() []Provider {
	out := make([]Provider, 0, len(a.providers))
	for _, p := range a.providers {
		out = append(out, p)
	}
	return out
}

// Others returns every provider except the one for source.
func (a *Aggregator) Others(source track.Source) []Provider {
	out := make([]Provider, 0, len(a.providers))
	for _, p := range a.providers {
		if p.Source() != source {
			out = append(out, p)
		}
	}
	return out
}

// Sources returns the configured sources in priority order.
func (a *Aggregator) Sources() []track.Source {
	out := make([]track.Source, 0, len(a.providers))
	for _, p := range a.providers {
		out = append(out, p.Source())
	}
	return out
}

// GetTrackByURL loads a track from a link of a recognized platform.
func (a *Aggregator) GetTrackByURL(ctx context.Context, url string) (track.Track, error) {
	source, ok := a.Classify(url)
	if !ok {
		return track.Track{}, errors.Wrapf(ErrUnknownSource, "unrecognized url: %s", url)
	}
	return a.bySource[source].lookup(ctx, url)
}

// ResolveStream resolves a track through the provider of its source.
func (a *Aggregator) ResolveStream(ctx context.Context, t track.Track) (*track.StreamHandle, error) {
	p, ok := a.bySource[t.Source]
	if !ok {
		return nil, errors.Wrapf(ErrStreamUnavailable, "no provider for source %s", t.Source)
	}
	return p.ResolveStream(ctx, t)
}
