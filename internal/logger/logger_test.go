package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rgkit.log")
	l, err := New(Config{Format: "json", File: path, Debug: true})
	require.NoError(t, err)

	l.Debug("hello")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
}

func TestNew_PlainLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.log")
	l, err := New(Config{File: path, Plain: true})
	require.NoError(t, err)

	l.Info("mounted")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "INFO")
	require.NotContains(t, string(data), "\x1b[")
}
