package ytdlp

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is one entry of a flat search listing.
type Result struct {
	URL          string
	Title        string
	Uploader     string
	Duration     time.Duration
	ID           string
	ThumbnailURL string
}

var downloadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[ExtractAudio\] Destination: (.+)$`),
	regexp.MustCompile(`\[Merger\] Merging formats into "(.+)"$`),
	regexp.MustCompile(`\[download\] Destination: (.+)$`),
	regexp.MustCompile(`\[download\] (.+) has already been downloaded`),
}

// parseDuration accepts seconds as printed by yt-dlp ("213", "213.0").
// "NA" and garbage yield zero.
func parseDuration(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f) * time.Second
}

func field(ps []string, i int) string {
	if i >= len(ps) {
		return ""
	}
	v := strings.TrimSpace(ps[i])
	if v == "NA" {
		return ""
	}
	return v
}

// parseListing parses tab separated lines of
// url, title, uploader, duration[, id[, thumbnail]].
// Lines without a URL and title are skipped.
func parseListing(stdout string) []Result {
	var results []Result
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		ps := strings.Split(l, "\t")
		if len(ps) < 2 {
			continue
		}
		u, title := field(ps, 0), field(ps, 1)
		if !strings.HasPrefix(u, "http") || title == "" {
			continue
		}
		results = append(results, Result{
			URL:          u,
			Title:        title,
			Uploader:     field(ps, 2),
			Duration:     parseDuration(field(ps, 3)),
			ID:           field(ps, 4),
			ThumbnailURL: field(ps, 5),
		})
	}
	return results
}

// parseDirectURL returns the first http(s) line of the output.
func parseDirectURL(stdout string) (string, bool) {
	for _, l := range strings.Split(stdout, "\n") {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
			return l, true
		}
	}
	return "", false
}

// parseDownloadPath finds the downloaded file in the output. A bare path
// line (from --print after_move:filepath) wins over progress messages;
// among progress messages the last match wins.
func parseDownloadPath(stdout string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if filepath.IsAbs(l) {
			return l, true
		}
	}

	var found string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		for _, p := range downloadPatterns {
			if m := p.FindStringSubmatch(l); m != nil {
				found = strings.Trim(m[1], `"`)
				break
			}
		}
	}
	return found, found != ""
}
