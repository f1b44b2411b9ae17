package autoplay

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/encore/internal/infra/config"
	"github.com/osa030/encore/internal/infra/lastfm"
)

// LastFmClient defines the Last.fm operations the provider needs.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetTopTags(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Tag, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

// LastFmProviderConfig holds the lastfm provider settings.
type LastFmProviderConfig struct {
	APIKey        string  `mapstructure:"api_key" validate:"required"`
	TagCount      int     `mapstructure:"tag_count" default:"3" validate:"gte=1,lte=10"`
	TagWeight     float64 `mapstructure:"tag_weight" default:"0.4" validate:"gte=0,lte=1"`
	SimilarWeight float64 `mapstructure:"similar_weight" default:"0.6" validate:"gte=0,lte=1"`
	RatePerSec    float64 `mapstructure:"rate_per_sec" default:"5" validate:"gt=0"`
}

// chartScore is the score of global chart suggestions, below any
// seed-derived one.
const chartScore = 0.05

// LastFmProvider suggests tracks from Last.fm with hybrid scoring: similar
// tracks of each seed and top tracks of the seeds' most common tags. The
// global chart is the fallback when neither yields anything.
type LastFmProvider struct {
	client LastFmClient
	config LastFmProviderConfig
}

// NewLastFmProvider creates a provider from raw settings.
func NewLastFmProvider(settings map[string]any) (*LastFmProvider, error) {
	cfg, err := config.DecodeSettings[LastFmProviderConfig](settings)
	if err != nil {
		return nil, err
	}

	client, err := lastfm.New(lastfm.Config{APIKey: cfg.APIKey, RatePerSec: cfg.RatePerSec})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return NewLastFmProviderWithClient(client, cfg)
}

// NewLastFmProviderWithClient creates a provider around an existing client.
func NewLastFmProviderWithClient(client LastFmClient, cfg LastFmProviderConfig) (*LastFmProvider, error) {
	if client == nil {
		return nil, errors.New("last.fm client is required")
	}
	if math.Abs(cfg.TagWeight+cfg.SimilarWeight-1) > 1e-9 {
		return nil, errors.New("tag weight and similar weight must sum to 1.0")
	}
	if cfg.TagCount <= 0 {
		cfg.TagCount = 3
	}
	return &LastFmProvider{client: client, config: cfg}, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

// Suggest returns scored suggestions, best first.
func (p *LastFmProvider) Suggest(ctx context.Context, seeds []Seed, count int) ([]Suggestion, error) {
	if count <= 0 {
		return []Suggestion{}, nil
	}

	scores := newScoreBoard()
	var errs error
	var errMu sync.Mutex
	record := func(err error) {
		errMu.Lock()
		errs = errors.CombineErrors(errs, err)
		errMu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.addSimilar(ctx, seeds, count, scores, record)
	}()
	go func() {
		defer wg.Done()
		p.addTagged(ctx, seeds, count, scores, record)
	}()
	wg.Wait()

	if scores.len() == 0 {
		chart, err := p.client.GetChartTopTracks(ctx, count*2)
		if err != nil {
			return nil, errors.CombineErrors(errs, errors.Wrap(err, "chart top tracks"))
		}
		for _, t := range chart {
			scores.add(t.Name, t.Artist, chartScore)
		}
	}

	result := scores.sorted()
	if len(result) > count*2 {
		result = result[:count*2]
	}
	return result, nil
}

// addSimilar scores similar tracks of every seed with the similar weight
// scaled by Last.fm's match value.
func (p *LastFmProvider) addSimilar(ctx context.Context, seeds []Seed, count int, scores *scoreBoard, record func(error)) {
	var wg sync.WaitGroup
	for _, seed := range seeds {
		if seed.Artist == "" || seed.Title == "" {
			continue
		}
		wg.Add(1)
		go func(s Seed) {
			defer wg.Done()
			similar, err := p.client.GetSimilarTracks(ctx, s.Title, s.Artist, count*2)
			if err != nil {
				record(errors.Wrapf(err, "similar tracks for %s - %s", s.Artist, s.Title))
				return
			}
			for _, sim := range similar {
				match := sim.Match
				if match <= 0 || match > 1 {
					match = 1
				}
				scores.add(sim.Name, sim.Artist, p.config.SimilarWeight*match)
			}
		}(seed)
	}
	wg.Wait()
}

// addTagged scores top tracks of the seeds' most common tags with the tag
// weight.
func (p *LastFmProvider) addTagged(ctx context.Context, seeds []Seed, count int, scores *scoreBoard, record func(error)) {
	tagCounts := make(map[string]int)
	for _, seed := range seeds {
		if seed.Artist == "" || seed.Title == "" {
			continue
		}
		tags, err := p.client.GetTopTags(ctx, seed.Title, seed.Artist, 10)
		if err != nil {
			record(errors.Wrapf(err, "top tags for %s - %s", seed.Artist, seed.Title))
			continue
		}
		for _, tag := range tags {
			tagCounts[tag.Name] += tag.Count
		}
	}
	if len(tagCounts) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, tag := range topTags(tagCounts, p.config.TagCount) {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			tracks, err := p.client.GetTopTracks(ctx, tag, count*2)
			if err != nil {
				record(errors.Wrapf(err, "top tracks for tag %s", tag))
				return
			}
			for _, t := range tracks {
				scores.add(t.Name, t.Artist, p.config.TagWeight)
			}
		}(tag)
	}
	wg.Wait()
}

// topTags returns the n most frequent tag names.
func topTags(tagCounts map[string]int, n int) []string {
	names := make([]string, 0, len(tagCounts))
	for name := range tagCounts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if tagCounts[names[i]] != tagCounts[names[j]] {
			return tagCounts[names[i]] > tagCounts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// scoreBoard accumulates suggestion scores by song key.
type scoreBoard struct {
	mu    sync.Mutex
	order []string
	byKey map[string]*Suggestion
}

func newScoreBoard() *scoreBoard {
	return &scoreBoard{byKey: make(map[string]*Suggestion)}
}

func (b *scoreBoard) add(title, artist string, score float64) {
	if title == "" {
		return
	}
	key := songKey(artist, title)

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.byKey[key]; ok {
		s.Score += score
		return
	}
	b.order = append(b.order, key)
	b.byKey[key] = &Suggestion{Title: title, Artist: artist, Score: score}
}

func (b *scoreBoard) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

func (b *scoreBoard) sorted() []Suggestion {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Suggestion, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, *b.byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}
