//go:build linux || freebsd || darwin

package dirty

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/stretchr/testify/require"
)

func Test_Tracker_FlushMappedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img")
	dev, err := gfs.Create(path, 1<<20, 4096)
	require.NoError(t, err)
	defer dev.Close()

	copy(dev.Bytes()[8192:], "flushed")
	tr := NewTracker(dev)
	tr.Add(8192, 7)

	for _, mode := range []FlushMode{FlushDataOnly, FlushAuto, FlushFull} {
		tr.Add(8192, 7)
		require.NoError(t, tr.Flush(context.Background(), mode))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "flushed", string(data[8192:8199]))
}
