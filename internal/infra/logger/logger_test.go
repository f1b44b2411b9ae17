package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreGlobals puts the global logger back after a test replaces it.
func restoreGlobals(t *testing.T) {
	prev := zlog.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		zlog.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{input: "debug", want: zerolog.DebugLevel},
		{input: "", want: zerolog.InfoLevel},
		{input: "WARNING", want: zerolog.WarnLevel},
		{input: "warn", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "trace", want: zerolog.InfoLevel},
		{input: "panic", want: zerolog.InfoLevel},
		{input: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestShortCaller(t *testing.T) {
	got := shortCaller(0, filepath.Join("root", "module", "internal", "app", "playback", "session.go"), 42)
	assert.Equal(t, filepath.Join("playback", "session.go")+":42", got)
}

func TestGuild(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	zlog.Logger = zerolog.New(&buf)

	l := Guild("g1")
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "g1", entry["guild"])
	assert.Equal(t, "hello", entry["message"])
}

func TestInit_Console(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	closer, err := Init(Config{Level: "warn", Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	zlog.Info().Msg("hidden")
	zlog.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInit_FileOutput(t *testing.T) {
	restoreGlobals(t)

	path := filepath.Join(t.TempDir(), "encore.log")
	closer, err := Init(Config{File: path, Level: "debug"})
	require.NoError(t, err)

	zlog.Debug().Msg("written")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "written", entry["message"])
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestInit_BadFile(t *testing.T) {
	restoreGlobals(t)

	_, err := Init(Config{File: filepath.Join(t.TempDir(), "missing", "encore.log")})
	assert.Error(t, err)
}
