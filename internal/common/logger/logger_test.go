package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_LevelsAndFormats(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		for _, format := range []string{"json", "console"} {
			l, err := NewLogger(level, format, "fallwatch")
			require.NoError(t, err)
			require.NotNil(t, l)
		}
	}
}

func TestNewLogger_WritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallwatch.log")

	l, err := NewLogger("info", "json", "fallwatch", WithFile(path), WithRotation(1, 1, 1))
	require.NoError(t, err)

	l.Info("hello file sink")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "hello file sink")
	require.Contains(t, string(raw), `"service_name":"fallwatch"`)
}
