package ytdlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	goytdlp "github.com/lrstanley/go-ytdlp"
)

const (
	listingTemplate  = "%(url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(id)s\t%(thumbnail)s"
	metadataTemplate = "%(webpage_url)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(id)s\t%(thumbnail)s"
)

// runner executes yt-dlp and returns its standard output.
type runner interface {
	Search(ctx context.Context, target string, limit int) (string, error)
	Metadata(ctx context.Context, url string) (string, error)
	DirectURL(ctx context.Context, target, format string) (string, error)
	Download(ctx context.Context, target, format, output string) (string, error)
}

type cliRunner struct {
	proxy string
}

func (r *cliRunner) command() *goytdlp.Command {
	cmd := goytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if r.proxy != "" {
		cmd.Proxy(r.proxy)
	}
	return cmd
}

func commonArgs() []string {
	return []string{
		"--no-check-certificates",
		"--socket-timeout", "30",
		"--retries", "3",
	}
}

func (r *cliRunner) Search(ctx context.Context, target string, limit int) (string, error) {
	res, err := r.command().
		FlatPlaylist().
		Print(listingTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, append(commonArgs(), target)...)
	return output(res, err)
}

func (r *cliRunner) Metadata(ctx context.Context, url string) (string, error) {
	res, err := r.command().
		Print(metadataTemplate).
		NoPlaylist().
		Run(ctx, append(commonArgs(), "--skip-download", url)...)
	return output(res, err)
}

func (r *cliRunner) DirectURL(ctx context.Context, target, format string) (string, error) {
	res, err := r.command().
		Format(format).
		Print("%(url)s").
		NoPlaylist().
		Run(ctx, append(commonArgs(), "--skip-download", target)...)
	return output(res, err)
}

func (r *cliRunner) Download(ctx context.Context, target, format, out string) (string, error) {
	res, err := r.command().
		Format(format).
		Output(out).
		Print("after_move:filepath").
		NoSimulate().
		NoPart().
		NoPlaylist().
		Run(ctx, append(commonArgs(), target)...)
	return output(res, err)
}

// output folds stderr into the error. DRM and removed videos are reported
// by yt-dlp only on stderr.
func output(res *goytdlp.Result, err error) (string, error) {
	if err != nil {
		if res != nil && res.Stderr != "" {
			return "", errors.Wrapf(err, "stderr: %s", strings.TrimSpace(res.Stderr))
		}
		return "", err
	}
	if res == nil {
		return "", ErrNoOutput
	}
	return res.Stdout, nil
}
