// Package mkfs formats a device: the superblock, the region index file,
// an empty root directory and the regions themselves, with every
// allocatable block free.
package mkfs

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/internal/format"
)

const (
	// DefaultBlockSize is used when Options.BlockSize is zero.
	DefaultBlockSize = 4096
	// DefaultRgrpBlocks is used when Options.RgrpBlocks is zero.
	DefaultRgrpBlocks = 8192
	// LockProto is the lock protocol recorded in the superblock.
	LockProto = "lock_nolock"

	minRgrpData = 4
)

// ErrTooSmall is returned when the device cannot hold a single region.
var ErrTooSmall = errors.New("mkfs: device too small")

// Options control the layout.
type Options struct {
	BlockSize  uint32
	RgrpBlocks uint32 // blocks per region, header and bitmap included
	Journals   uint32
	LockTable  string
	Logger     *zap.Logger
}

// Result describes what Make wrote.
type Result struct {
	Superblock format.Superblock
	Regions    []format.Rindex
	RindexAddr uint64
	RootAddr   uint64
}

// DataBlocks returns the total number of allocatable blocks.
func (r Result) DataBlocks() uint64 {
	var n uint64
	for _, ri := range r.Regions {
		n += uint64(ri.Data)
	}
	return n
}

// Make formats dev. Anything already on the device is overwritten.
func Make(dev *gfs.Device, opts Options) (Result, error) {
	if opts.BlockSize == 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.RgrpBlocks == 0 {
		opts.RgrpBlocks = DefaultRgrpBlocks
	}
	if opts.Journals == 0 {
		opts.Journals = 1
	}
	if opts.LockTable == "" {
		opts.LockTable = "rgkit:" + uuid.NewString()
	}
	if len(opts.LockTable) >= format.LockNameLen {
		return Result{}, fmt.Errorf("mkfs: lock table %q longer than %d bytes", opts.LockTable, format.LockNameLen-1)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	geo, err := gfs.NewGeometry(opts.BlockSize)
	if err != nil {
		return Result{}, err
	}
	dev.SetBlockSize(int(opts.BlockSize))

	l := layout{geo: geo, total: dev.Blocks(), rgrpBlocks: opts.RgrpBlocks}
	if err := l.plan(); err != nil {
		return Result{}, err
	}
	if uint32(len(l.regions)) < opts.Journals {
		log.Warn("fewer regions than journals; nodes will share starting regions",
			zap.Int("regions", len(l.regions)),
			zap.Uint32("journals", opts.Journals))
	}

	w := writer{dev: dev, geo: geo}
	for _, ri := range l.regions {
		if err := w.region(ri); err != nil {
			return Result{}, err
		}
	}
	if err := w.rindex(l.rindexAddr, l.rindexJD, l.regions); err != nil {
		return Result{}, err
	}
	if err := w.root(l.rootAddr); err != nil {
		return Result{}, err
	}

	sb := format.Superblock{
		Header:          format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeSB, Format: format.FormatSB},
		FSFormat:        format.FormatFS,
		MultihostFormat: format.FormatMulti,
		BlockSize:       geo.BlockSize,
		BlockSizeShift:  geo.BlockSizeShift,
		SegSize:         16,
		RindexDi:        format.Inum{Formal: l.rindexAddr, Addr: l.rindexAddr},
		RootDi:          format.Inum{Formal: l.rootAddr, Addr: l.rootAddr},
		LockProto:       LockProto,
		LockTable:       opts.LockTable,
	}
	b, err := w.block(l.sbAddr)
	if err != nil {
		return Result{}, err
	}
	format.EncodeSuperblock(b, sb)

	res := Result{Superblock: sb, Regions: l.regions, RindexAddr: l.rindexAddr, RootAddr: l.rootAddr}
	log.Info("filesystem created",
		zap.Uint32("block_size", geo.BlockSize),
		zap.Int("regions", len(l.regions)),
		zap.Uint64("data_blocks", res.DataBlocks()),
		zap.String("lock_table", opts.LockTable))
	return res, nil
}
