package matcher

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/osa030/encore/internal/domain/track"
)

// DefaultPriority breaks score ties. Earlier sources win.
var DefaultPriority = []track.Source{
	track.SourceYouTube,
	track.SourceYouTubeMusic,
	track.SourceSoundCloud,
	track.SourceSpotify,
}

var (
	qualifierPattern  = regexp.MustCompile(`[\(\[\{][^\)\]\}]*[\)\]\}]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// NormalizeTitle strips bracketed qualifiers such as "(Official Video)" or
// "[HD]", lowercases, and collapses whitespace.
func NormalizeTitle(title string) string {
	s := qualifierPattern.ReplaceAllString(title, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// simplify lowercases s and drops every rune that is not a letter or digit.
func simplify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Score returns the normalized edit-distance similarity of a and b in [0,1].
// Comparison is case-insensitive and ignores non-alphanumeric characters.
func Score(a, b string) float64 {
	sa, sb := simplify(a), simplify(b)
	maxLen := max(len([]rune(sa)), len([]rune(sb)))
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(sa, sb)
	return float64(maxLen-dist) / float64(maxLen)
}

// Match is a candidate chosen as an alternative for an unsupported link.
type Match struct {
	Track  track.Track
	Score  float64
	Source track.Source
}

// Rank scores every candidate against query and returns them best first.
// Ties keep priority order, then the provider's own result order.
func Rank(query string, candidates []track.Track, priority []track.Source) []Match {
	rank := make(map[track.Source]int, len(priority))
	for i, s := range priority {
		rank[s] = i
	}
	priorityOf := func(s track.Source) int {
		if r, ok := rank[s]; ok {
			return r
		}
		return len(priority)
	}

	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{
			Track:  c,
			Score:  candidateScore(query, c),
			Source: c.Source,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return priorityOf(matches[i].Source) < priorityOf(matches[j].Source)
	})
	return matches
}

// Best returns the highest ranked candidate.
func Best(query string, candidates []track.Track, priority []track.Source) (Match, bool) {
	ranked := Rank(query, candidates, priority)
	if len(ranked) == 0 {
		return Match{}, false
	}
	return ranked[0], true
}

// candidateScore compares query with the candidate title alone and with
// "artist - title" and keeps the better of the two.
func candidateScore(query string, t track.Track) float64 {
	s := Score(query, NormalizeTitle(t.Title))
	if t.Artist != "" {
		s = max(s, Score(query, NormalizeTitle(t.DisplayName())))
	}
	return s
}
