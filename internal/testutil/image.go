package testutil

import (
	"testing"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/mkfs"
)

// Small-image defaults: 512-byte blocks keep directory leaves and region
// bitmaps small enough that splits, clumps and wraparound happen within a
// handful of operations.
const (
	DefaultBlockSize  = 512
	DefaultRgrpBlocks = 256
	DefaultImageSize  = 1 << 20
)

// ImageOptions size a test image. Zero fields take the defaults above.
type ImageOptions struct {
	Size       int
	BlockSize  uint32
	RgrpBlocks uint32
}

// NewImage formats an in-memory image.
//
// Example:
//
//	dev, res := testutil.NewImage(t, testutil.ImageOptions{})
//	regions := res.Regions
func NewImage(t testing.TB, opts ImageOptions) (*gfs.Device, mkfs.Result) {
	t.Helper()
	if opts.Size == 0 {
		opts.Size = DefaultImageSize
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.RgrpBlocks == 0 {
		opts.RgrpBlocks = DefaultRgrpBlocks
	}
	table := "test:" + t.Name()
	if len(table) > 63 {
		table = table[:63]
	}
	dev := gfs.NewMem(make([]byte, opts.Size), int(opts.BlockSize))
	res, err := mkfs.Make(dev, mkfs.Options{
		BlockSize:  opts.BlockSize,
		RgrpBlocks: opts.RgrpBlocks,
		LockTable:  table,
	})
	if err != nil {
		t.Fatalf("format test image: %v", err)
	}
	return dev, res
}
