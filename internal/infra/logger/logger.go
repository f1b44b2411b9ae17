// Package logger configures the global zerolog logger.
//
// Console output is human readable; a log file receives JSON lines. Debug
// level adds the caller as "dir/file.go:line".
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	File  string    // JSON log file; empty logs to the console
	Level string    // debug, info, warn or error
	Out   io.Writer // Console writer, stdout when nil
}

// Init installs the global logger. The returned closer releases the log
// file, if any.
func Init(cfg Config) (io.Closer, error) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.CallerMarshalFunc = shortCaller

	var (
		l      zerolog.Logger
		closer io.Closer = nopCloser{}
	)
	if cfg.File == "" {
		l = console(cfg.Out, level)
	} else {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open log file %s", cfg.File)
		}
		l = withCaller(zerolog.New(f).With().Timestamp(), level)
		closer = f
	}

	zlog.Logger = l
	zerolog.DefaultContextLogger = &zlog.Logger
	return closer, nil
}

// Guild returns a child of the global logger tagged with the guild ID.
func Guild(guildID string) zerolog.Logger {
	return zlog.With().Str("guild", guildID).Logger()
}

func console(out io.Writer, level zerolog.Level) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	if level == zerolog.DebugLevel {
		w.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName}
		w.FormatCaller = func(i any) string {
			s, _ := i.(string)
			return "(" + s + ")"
		}
	}
	return withCaller(zerolog.New(w).With().Timestamp(), level)
}

func withCaller(c zerolog.Context, level zerolog.Level) zerolog.Logger {
	if level == zerolog.DebugLevel {
		c = c.Caller()
	}
	return c.Logger()
}

// shortCaller keeps the last directory and the file name.
func shortCaller(_ uintptr, file string, line int) string {
	dir := filepath.Base(filepath.Dir(file))
	return filepath.Join(dir, filepath.Base(file)) + ":" + strconv.Itoa(line)
}

// parseLevel maps a level name to a zerolog level. Unknown names mean info.
func parseLevel(level string) zerolog.Level {
	if strings.EqualFold(level, "warning") {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel || l < zerolog.DebugLevel || l > zerolog.ErrorLevel {
		return zerolog.InfoLevel
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
