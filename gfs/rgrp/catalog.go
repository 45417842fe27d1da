// Package rgrp manages the regions ("resource groups") that hold all
// allocatable space: the in-core catalog built from the region index, the
// region locks, and the two-bit bitmap allocator that hands out data,
// metadata and dinode blocks from a reserved region.
package rgrp

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/quota"
	"github.com/joshuapare/rgkit/internal/format"
)

// Transactor runs fn inside a transaction sized for est buffers, committing
// when fn succeeds and rolling back otherwise.
type Transactor interface {
	Transact(ctx context.Context, est int, fn func(ctx context.Context) error) error
}

// DirectWriter writes a buffer to the device outside any transaction.
type DirectWriter interface {
	WriteThrough(ref blockio.Ref) error
}

// Deps are the collaborators a Catalog works through.
type Deps struct {
	Geometry gfs.Geometry
	Arena    *blockio.Arena
	Locker   glock.Locker
	Marker   inode.Marker
	Faults   *consist.Tracker
	Quota    quota.Checker
	Logger   *zap.Logger

	// Transactor is needed by the operations that open their own
	// transactions (FreeMetaBlocks, Reclaim).
	Transactor Transactor
	// Direct writes the placeholder blocks of a clump straight to the
	// device. When nil they go through the arena unrecorded.
	Direct DirectWriter

	ClumpSize uint32
	MaxMHC    int
}

// Catalog is the ordered set of regions of a mounted filesystem.
type Catalog struct {
	geo     gfs.Geometry
	regions []*Region

	mruMu sync.Mutex
	mru   []*Region

	arena  *blockio.Arena
	locker glock.Locker
	marker inode.Marker
	faults *consist.Tracker
	quota  quota.Checker
	txr    Transactor
	direct DirectWriter
	log    *zap.Logger

	clump uint32
	mhc   *MHC
}

// NewCatalog builds the catalog from the region index entries, in order.
func NewCatalog(entries []format.Rindex, d Deps) (*Catalog, error) {
	if d.Faults == nil {
		d.Faults = consist.New(d.Logger)
	}
	if d.Quota == nil {
		d.Quota = quota.Unlimited{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.ClumpSize == 0 {
		d.ClumpSize = format.DefaultClump
	}
	c := &Catalog{
		geo:    d.Geometry,
		arena:  d.Arena,
		locker: d.Locker,
		marker: d.Marker,
		faults: d.Faults,
		quota:  d.Quota,
		txr:    d.Transactor,
		direct: d.Direct,
		log:    d.Logger,
		clump:  d.ClumpSize,
		mhc:    NewMHC(d.MaxMHC),
	}

	c.regions = make([]*Region, 0, len(entries))
	for i, ri := range entries {
		bits, err := computeBitDescs(ri, d.Geometry.BlockSize)
		if err != nil {
			return nil, c.faults.Fault("rindex", "region %d at %d: %v", i, ri.Addr, err)
		}
		c.regions = append(c.regions, &Region{Index: i, RI: ri, Bits: bits})
	}
	c.mru = append([]*Region(nil), c.regions...)

	c.log.Debug("region catalog built",
		zap.Int("regions", len(c.regions)),
		zap.Uint32("clump", c.clump))
	return c, nil
}

// Len returns the number of regions.
func (c *Catalog) Len() int { return len(c.regions) }

// ByIndex returns the region at position i in index order.
func (c *Catalog) ByIndex(i int) *Region {
	if i < 0 || i >= len(c.regions) {
		return nil
	}
	return c.regions[i]
}

// First returns the first region.
func (c *Catalog) First() *Region { return c.ByIndex(0) }

// Next returns the region after r, or nil at the end.
func (c *Catalog) Next(r *Region) *Region { return c.ByIndex(r.Index + 1) }

// Regions returns the regions in index order.
func (c *Catalog) Regions() []*Region { return c.regions }

// Lookup finds the region whose allocatable range contains blk and moves
// it to the front of the most-recently-used list.
func (c *Catalog) Lookup(blk uint64) *Region {
	c.mruMu.Lock()
	defer c.mruMu.Unlock()
	for i, r := range c.mru {
		if !r.Contains(blk) {
			continue
		}
		if i > 0 {
			copy(c.mru[1:i+1], c.mru[:i])
			c.mru[0] = r
		}
		return r
	}
	return nil
}

// Faults returns the consistency tracker shared by the catalog.
func (c *Catalog) Faults() *consist.Tracker { return c.faults }

// MHC returns the meta-header cache.
func (c *Catalog) MHC() *MHC { return c.mhc }

// ClumpSize returns the number of blocks converted per clump.
func (c *Catalog) ClumpSize() uint32 { return c.clump }

// Lock takes the region lock and loads the region's header and bitmap
// buffers. With glock.FlagTry it fails with glock.ErrTryFailed instead of
// waiting.
func (c *Catalog) Lock(ctx context.Context, r *Region, mode glock.Mode, flags glock.Flags) (*Lease, error) {
	h, err := c.locker.Lock(ctx, glock.RgrpName(r.Addr()), mode, flags)
	if err != nil {
		return nil, err
	}
	l := &Lease{rgd: r, arena: c.arena, holder: h, mode: mode}
	if err := l.readBuffers(ctx); err != nil {
		l.Unlock()
		if errors.Is(err, format.ErrWrongType) || errors.Is(err, format.ErrSignatureMismatch) {
			return nil, c.faults.Fault(r.Where(), "%v", err)
		}
		return nil, err
	}
	if mode == glock.Exclusive {
		r.mu.Lock()
		r.excl = l
		r.mu.Unlock()
	}
	return l, nil
}

// setHeader writes the counters of h into the header buffer and adds it
// to the transaction on ctx.
func (c *Catalog) setHeader(ctx context.Context, l *Lease, h format.RgrpHeader) error {
	if err := c.marker.AddBuffer(ctx, l.bh[0], l.rgd.Where()); err != nil {
		return err
	}
	format.EncodeRgrpCounters(c.arena.Data(l.bh[0]), h)
	return nil
}
