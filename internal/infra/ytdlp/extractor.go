// Package ytdlp turns track URLs into playable audio through the yt-dlp
// command line tool.
package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/encore/internal/domain/track"
)

// Mode selects how streams are resolved.
type Mode string

const (
	// ModeLink asks yt-dlp for a direct media URL.
	ModeLink Mode = "link"
	// ModeDownload downloads the audio into a scoped temporary directory.
	ModeDownload Mode = "download"
)

// ErrNoOutput is returned when yt-dlp output contains no usable path or URL.
var ErrNoOutput = errors.New("yt-dlp produced no usable output")

// Config holds extractor settings.
type Config struct {
	Mode            Mode
	TempDir         string
	Format          string
	Proxy           string
	MetadataTimeout time.Duration
	StreamTimeout   time.Duration
}

// Extractor wraps yt-dlp invocations behind search, metadata and stream calls.
type Extractor struct {
	cfg Config
	run runner
}

// New creates an extractor backed by the yt-dlp binary on PATH.
func New(cfg Config) *Extractor {
	if cfg.Mode == "" {
		cfg.Mode = ModeLink
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "encore")
	}
	if cfg.Format == "" {
		cfg.Format = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"
	}
	if cfg.MetadataTimeout <= 0 {
		cfg.MetadataTimeout = 30 * time.Second
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 60 * time.Second
	}
	return &Extractor{
		cfg: cfg,
		run: &cliRunner{proxy: cfg.Proxy},
	}
}

type scopeKey struct{}

// WithScope tags ctx with the scope (a guild id) temporary files belong to.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func scopeFrom(ctx context.Context) string {
	if s, ok := ctx.Value(scopeKey{}).(string); ok && s != "" {
		return sanitize(s)
	}
	return "shared"
}

// Search runs a yt-dlp search such as "ytsearch", "ytmsearch" or "scsearch".
func (e *Extractor) Search(ctx context.Context, prefix, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MetadataTimeout)
	defer cancel()

	target := fmt.Sprintf("%s%d:%s", prefix, limit, query)
	out, err := e.run.Search(ctx, target, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "yt-dlp search failed: target=%s", target)
	}
	return parseListing(out), nil
}

// Metadata returns the metadata of a single URL without downloading it.
func (e *Extractor) Metadata(ctx context.Context, url string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.MetadataTimeout)
	defer cancel()

	out, err := e.run.Metadata(ctx, url)
	if err != nil {
		return Result{}, errors.Wrapf(err, "yt-dlp metadata failed: url=%s", url)
	}
	results := parseListing(out)
	if len(results) == 0 {
		return Result{}, errors.Wrapf(ErrNoOutput, "metadata url=%s", url)
	}
	return results[0], nil
}

// Resolve returns a stream handle for target, a URL or a search target such
// as "ytsearch1:artist - title".
func (e *Extractor) Resolve(ctx context.Context, target string) (*track.StreamHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StreamTimeout)
	defer cancel()

	if e.cfg.Mode == ModeDownload {
		return e.download(ctx, target)
	}

	out, err := e.run.DirectURL(ctx, target, e.cfg.Format)
	if err != nil {
		return nil, errors.Wrapf(err, "yt-dlp resolve failed: target=%s", target)
	}
	u, ok := parseDirectURL(out)
	if !ok {
		return nil, errors.Wrapf(ErrNoOutput, "resolve target=%s", target)
	}
	return track.NewStreamHandle(u, false, nil), nil
}

func (e *Extractor) download(ctx context.Context, target string) (*track.StreamHandle, error) {
	dir := filepath.Join(e.cfg.TempDir, scopeFrom(ctx), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create temp dir")
	}
	cleanup := func() error {
		return os.RemoveAll(dir)
	}

	out, err := e.run.Download(ctx, target, e.cfg.Format, filepath.Join(dir, "%(id)s.%(ext)s"))
	if err != nil {
		_ = cleanup()
		return nil, errors.Wrapf(err, "yt-dlp download failed: target=%s", target)
	}

	path, ok := parseDownloadPath(out)
	if !ok || !fileExists(path) {
		// Output is best effort; fall back to whatever landed in the directory.
		path, ok = singleFile(dir)
	}
	if !ok {
		_ = cleanup()
		return nil, errors.Wrapf(ErrNoOutput, "download target=%s", target)
	}

	zlog.Debug().Msgf("ytdlp: downloaded path=%s", path)
	return track.NewStreamHandle(path, true, cleanup), nil
}

// CleanupScope removes every temporary file for the scope.
func (e *Extractor) CleanupScope(scope string) error {
	if scope == "" {
		return nil
	}
	return os.RemoveAll(filepath.Join(e.cfg.TempDir, sanitize(scope)))
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func singleFile(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() && !strings.HasSuffix(e.Name(), ".part") {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// sanitize keeps scope names usable as a single path element.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
	if s == "" {
		return "shared"
	}
	return s
}
