// Package mount assembles a mounted filesystem instance: the device, the
// buffer arena, the transaction manager, the region catalog built from the
// region index, and the placement engine. FS is the entry point the CLI and
// tests work through.
package mount

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/dirty"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/metrics"
	"github.com/joshuapare/rgkit/gfs/place"
	"github.com/joshuapare/rgkit/gfs/quota"
	"github.com/joshuapare/rgkit/gfs/rgrp"
	"github.com/joshuapare/rgkit/gfs/tx"
	"github.com/joshuapare/rgkit/internal/format"
)

// Tunables are the per-mount knobs.
type Tunables struct {
	// ClumpSize is how many free data blocks one conversion to free
	// metadata takes.
	ClumpSize uint32
	// TryThreshold is how many failed try-locks a recently used region
	// tolerates before a reservation blocks on it.
	TryThreshold uint32
	// MaxMHC bounds the cache of freed metadata headers.
	MaxMHC int
	// Journals and JID spread the forward scan of each node over a
	// different stretch of the region list.
	Journals uint32
	JID      uint32
}

// DefaultTunables returns the stock settings.
func DefaultTunables() Tunables {
	return Tunables{
		ClumpSize:    format.DefaultClump,
		TryThreshold: format.DefaultTryLock,
		MaxMHC:       format.DefaultMaxMHC,
		Journals:     1,
	}
}

// Options configure Mount. Zero fields take defaults: DefaultTunables, a
// private LocalLocker, no quota limits, a no-op logger and FlushAuto.
type Options struct {
	Tunables  Tunables
	Locker    glock.Locker
	Quota     quota.Checker
	Logger    *zap.Logger
	FlushMode dirty.FlushMode
}

// FS is a mounted filesystem.
type FS struct {
	dev    *gfs.Device
	sb     format.Superblock
	geo    gfs.Geometry
	arena  *blockio.Arena
	faults *consist.Tracker
	txm    *tx.Manager
	cat    *rgrp.Catalog
	engine *place.Engine
	quota  quota.Checker
	log    *zap.Logger
	tun    Tunables
}

// Mount reads the superblock and region index of dev and builds the
// in-core state needed to allocate from it and to edit its directories.
func Mount(ctx context.Context, dev *gfs.Device, opts Options) (*FS, error) {
	if opts.Tunables == (Tunables{}) {
		opts.Tunables = DefaultTunables()
	}
	if opts.Tunables.Journals == 0 {
		opts.Tunables.Journals = 1
	}
	if opts.Locker == nil {
		opts.Locker = glock.NewLocalLocker()
	}
	if opts.Quota == nil {
		opts.Quota = quota.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	log := opts.Logger

	sb, err := gfs.ReadSuperblock(dev.Bytes())
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	geo, err := gfs.NewGeometry(sb.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	if dev.BlockSize() != int(sb.BlockSize) {
		dev.SetBlockSize(int(sb.BlockSize))
	}

	arena := blockio.NewArena(dev)
	faults := consist.New(log)
	txm := tx.NewManager(arena, dirty.NewTracker(dev), opts.FlushMode, faults)

	entries, err := readRindex(ctx, arena, geo, sb.RindexDi.Addr)
	if err != nil {
		return nil, err
	}

	cat, err := rgrp.NewCatalog(entries, rgrp.Deps{
		Geometry:   geo,
		Arena:      arena,
		Locker:     opts.Locker,
		Marker:     txm,
		Faults:     faults,
		Quota:      opts.Quota,
		Logger:     log,
		Transactor: txm,
		Direct:     txm,
		ClumpSize:  opts.Tunables.ClumpSize,
		MaxMHC:     opts.Tunables.MaxMHC,
	})
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	engine := place.NewEngine(cat, place.Options{
		TryThreshold: opts.Tunables.TryThreshold,
		Journals:     opts.Tunables.Journals,
		JID:          opts.Tunables.JID,
		Quota:        opts.Quota,
		Logger:       log,
	})

	metrics.Register()
	log.Info("mounted",
		zap.Uint32("block_size", sb.BlockSize),
		zap.Int("regions", cat.Len()),
		zap.String("lock_table", sb.LockTable),
		zap.Uint32("jid", opts.Tunables.JID))

	return &FS{
		dev:    dev,
		sb:     sb,
		geo:    geo,
		arena:  arena,
		faults: faults,
		txm:    txm,
		cat:    cat,
		engine: engine,
		quota:  opts.Quota,
		log:    log,
		tun:    opts.Tunables,
	}, nil
}

// readRindex decodes every entry of the region index stream.
func readRindex(ctx context.Context, arena *blockio.Arena, geo gfs.Geometry, addr uint64) ([]format.Rindex, error) {
	ip, err := inode.Load(ctx, arena, geo, addr)
	if err != nil {
		return nil, fmt.Errorf("mount: rindex: %w", err)
	}
	defer ip.Close()

	size := ip.Di.Size
	if size == 0 || size%format.RindexSize != 0 {
		return nil, fmt.Errorf("mount: %w: %d bytes", ErrBadRindex, size)
	}
	data := make([]byte, size)
	if _, err := inode.NewStream(ip, nil, nil).ReadAt(ctx, data, 0); err != nil {
		return nil, fmt.Errorf("mount: rindex: %w", err)
	}

	entries := make([]format.Rindex, 0, size/format.RindexSize)
	for off := 0; off < len(data); off += format.RindexSize {
		ri, err := format.DecodeRindex(data[off:])
		if err != nil {
			return nil, fmt.Errorf("mount: rindex entry %d: %w", off/format.RindexSize, err)
		}
		entries = append(entries, ri)
	}
	return entries, nil
}

// Device returns the mounted device.
func (f *FS) Device() *gfs.Device { return f.dev }

// Superblock returns the superblock read at mount time.
func (f *FS) Superblock() format.Superblock { return f.sb }

// Geometry returns the block size derived constants.
func (f *FS) Geometry() gfs.Geometry { return f.geo }

// Catalog returns the region catalog.
func (f *FS) Catalog() *rgrp.Catalog { return f.cat }

// Engine returns the placement engine.
func (f *FS) Engine() *place.Engine { return f.engine }

// Faults returns the consistency fault tracker.
func (f *FS) Faults() *consist.Tracker { return f.faults }

// Tunables returns the settings the instance was mounted with.
func (f *FS) Tunables() Tunables { return f.tun }

// Unmount checks that no transaction is still open. The device stays open;
// the caller closes it.
func (f *FS) Unmount() error {
	if n := f.txm.Active(); n > 0 {
		return fmt.Errorf("mount: %w: %d open transactions", ErrBusy, n)
	}
	f.log.Info("unmounted", zap.Bool("withdrawn", f.faults.Withdrawn()))
	return nil
}
