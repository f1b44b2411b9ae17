// Package matcher finds playable alternatives for links from unsupported platforms.
package matcher

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/domain/track"
)

var (
	// ErrTitleExtractionFailed is returned when no title can be read from the link.
	ErrTitleExtractionFailed = errors.New("title extraction failed")
	// ErrNoAlternativeFound is returned when no provider returned a usable candidate.
	ErrNoAlternativeFound = errors.New("no alternative found")
)

// TitleExtractor reads a human-readable title from a platform's public metadata.
type TitleExtractor interface {
	// Name returns the extractor name for logs.
	Name() string
	// CanExtract reports whether the extractor handles the URL. Pattern match only.
	CanExtract(url string) bool
	// ExtractTitle returns a title such as "Artist - Song".
	ExtractTitle(ctx context.Context, url string) (string, error)
}

// Searcher is the part of a catalog provider the matcher needs.
type Searcher interface {
	Source() track.Source
	Search(ctx context.Context, query string, limit int) []track.Track
}

// Config holds matcher settings.
type Config struct {
	CandidateLimit int            // Candidates requested per provider
	MinScore       float64        // Alternatives scoring below this are rejected
	Priority       []track.Source // Tie-break order; DefaultPriority when empty
	Timeout        time.Duration  // Bound for metadata and search calls
}

// Matcher resolves unsupported links into alternatives from other catalogs.
type Matcher struct {
	extractors []TitleExtractor
	searchers  []Searcher
	cfg        Config
}

// New creates a matcher. Extractors are tried in order; the first that
// accepts a URL is used.
func New(cfg Config, extractors []TitleExtractor, searchers []Searcher) *Matcher {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = DefaultPriority
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Matcher{
		extractors: extractors,
		searchers:  searchers,
		cfg:        cfg,
	}
}

// CanMatch reports whether some extractor handles the URL.
func (m *Matcher) CanMatch(url string) bool {
	return m.extractorFor(url) != nil
}

// ExtractTitle returns the normalized title of the link.
func (m *Matcher) ExtractTitle(ctx context.Context, url string) (string, error) {
	ext := m.extractorFor(url)
	if ext == nil {
		return "", errors.Wrapf(ErrTitleExtractionFailed, "no extractor for %s", url)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	raw, err := ext.ExtractTitle(ctx, url)
	if err != nil {
		return "", errors.WithSecondaryError(errors.Wrapf(ErrTitleExtractionFailed, "%s: extract title: %v", ext.Name(), err), err)
	}

	title := NormalizeTitle(raw)
	if title == "" {
		return "", errors.Wrapf(ErrTitleExtractionFailed, "%s: empty title", ext.Name())
	}
	return title, nil
}

// FindAlternative extracts the link title, searches every provider in
// parallel and returns the best scoring candidate.
func (m *Matcher) FindAlternative(ctx context.Context, url string) (Match, error) {
	return m.FindAlternativeFrom(ctx, url, m.searchers)
}

// FindAlternativeFrom is FindAlternative restricted to the given searchers.
func (m *Matcher) FindAlternativeFrom(ctx context.Context, url string, searchers []Searcher) (Match, error) {
	title, err := m.ExtractTitle(ctx, url)
	if err != nil {
		return Match{}, err
	}
	zlog.Debug().Msgf("matcher: extracted title=%q url=%s", title, url)

	candidates := m.collect(ctx, title, searchers)
	best, ok := Best(title, candidates, m.cfg.Priority)
	if !ok {
		return Match{}, errors.Wrapf(ErrNoAlternativeFound, "title=%q", title)
	}
	if best.Score < m.cfg.MinScore {
		return Match{}, errors.Wrapf(ErrNoAlternativeFound, "best score %.2f below %.2f for %q", best.Score, m.cfg.MinScore, title)
	}

	zlog.Info().Msgf("matcher: alternative found source=%s title=%q score=%.2f", best.Source, best.Track.Title, best.Score)
	return best, nil
}

// collect queries every searcher concurrently. A searcher that fails or
// times out contributes nothing. Results are concatenated in searcher order.
func (m *Matcher) collect(ctx context.Context, query string, searchers []Searcher) []track.Track {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	results := make([][]track.Track, len(searchers))
	var wg sync.WaitGroup
	for i, s := range searchers {
		wg.Add(1)
		go func(i int, s Searcher) {
			defer wg.Done()
			results[i] = s.Search(ctx, query, m.cfg.CandidateLimit)
		}(i, s)
	}
	wg.Wait()

	var all []track.Track
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (m *Matcher) extractorFor(url string) TitleExtractor {
	for _, ext := range m.extractors {
		if ext.CanExtract(url) {
			return ext
		}
	}
	return nil
}
