package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{" warn ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		l, err := New(nil)
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("json at info", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Service = "persona"
		l, err := New(cfg)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("file output", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Output = filepath.Join(t.TempDir(), "app.log")
		cfg.Level = "debug"
		l, err := New(cfg)
		require.NoError(t, err)
		l.Debug("written")
		require.NoError(t, l.Sync())
		data, err := os.ReadFile(cfg.Output)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"written"`)
	})

	t.Run("unwritable output", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Output = filepath.Join(t.TempDir(), "missing", "app.log")
		_, err := New(cfg)
		assert.Error(t, err)
	})
}
