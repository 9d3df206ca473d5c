package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sahabat.log")

	log, closer, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("session created", "session_id", "s1")
	log.Debug("dropped")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"s1"`)
	assert.NotContains(t, string(data), "dropped")
}

func TestNewDefaultsToStderr(t *testing.T) {
	log, closer, err := New(Config{})
	require.NoError(t, err)
	assert.NotNil(t, log)
	assert.NoError(t, closer())
}
