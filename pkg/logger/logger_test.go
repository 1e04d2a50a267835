package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelWarn,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLevelFromEnv(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromEnv(true, true), "debug wins over quiet")
	assert.Equal(t, slog.LevelError, LevelFromEnv(false, true))
	assert.Equal(t, slog.LevelInfo, LevelFromEnv(false, false))
}
