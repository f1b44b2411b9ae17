// Package autoplay picks follow-up tracks when a guild's queue runs out.
package autoplay

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/encore/internal/domain/track"
)

// Suggestion is a candidate follow-up track. Providers that already know a
// playable track set Track; the rest are resolved by catalog search.
type Suggestion struct {
	Title  string
	Artist string
	Score  float64
	Track  *track.Track
}

// Key identifies the suggestion independently of the platform.
func (s Suggestion) Key() string {
	return songKey(s.Artist, s.Title)
}

// Query returns the catalog search terms for the suggestion.
func (s Suggestion) Query() string {
	if s.Artist == "" {
		return s.Title
	}
	return s.Artist + " - " + s.Title
}

// Provider is the interface for suggestion strategies.
type Provider interface {
	// Suggest returns up to count suggestions related to seeds, most
	// recently played first.
	Suggest(ctx context.Context, seeds []Seed, count int) ([]Suggestion, error)

	// Name returns the provider name (used in config).
	Name() string
}

// Searcher resolves search terms into playable tracks.
type Searcher interface {
	Search(ctx context.Context, source track.Source, query string, limit int) ([]track.Track, error)
}

// Seed is a played track reduced to the names recommendation services use.
type Seed struct {
	Title  string
	Artist string
	Track  track.Track
}

var (
	decorationPattern = regexp.MustCompile(`(?i)\s*[(\[](?:official|lyrics?|audio|video|mv|hd|hq|visualizer|remaster)[^)\]]*[)\]]`)
	topicSuffix       = regexp.MustCompile(`(?i)\s*-\s*topic$`)
)

// NewSeed derives a seed from a track. Titles of the form "Artist - Title"
// take the artist from the title, since video uploads usually carry the
// channel name as artist.
func NewSeed(t track.Track) Seed {
	title := strings.TrimSpace(decorationPattern.ReplaceAllString(t.Title, ""))
	artist := strings.TrimSpace(topicSuffix.ReplaceAllString(t.Artist, ""))

	if left, right, ok := strings.Cut(title, " - "); ok && strings.TrimSpace(right) != "" {
		artist = strings.TrimSpace(left)
		title = strings.TrimSpace(right)
	}
	return Seed{Title: title, Artist: artist, Track: t}
}

// Key identifies the seed independently of the platform.
func (s Seed) Key() string {
	return songKey(s.Artist, s.Title)
}

func songKey(artist, title string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "\x00" + strings.ToLower(strings.TrimSpace(title))
}
