package mount

import (
	"context"

	"github.com/joshuapare/rgkit/gfs/bitmap"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/place"
	"github.com/joshuapare/rgkit/gfs/rgrp"
	"github.com/joshuapare/rgkit/gfs/tx"
)

// LoadInode reads the dinode at blk. The caller closes it.
func (f *FS) LoadInode(ctx context.Context, blk uint64) (*inode.Inode, error) {
	return inode.Load(ctx, f.arena, f.geo, blk)
}

// Begin opens a transaction for at most est buffers.
func (f *FS) Begin(ctx context.Context, est int) (context.Context, *tx.Tx, error) {
	return f.txm.Begin(ctx, est)
}

// Transact runs fn in a transaction for est buffers, committing on success.
func (f *FS) Transact(ctx context.Context, est int, fn func(ctx context.Context) error) error {
	return f.txm.Transact(ctx, est, fn)
}

// Reserve sets a region aside for an operation on ip.
func (f *FS) Reserve(ctx context.Context, ip *inode.Inode, req place.Request) (*place.Reservation, error) {
	return f.engine.Reserve(ctx, ip, req)
}

// Release ends a reservation.
func (f *FS) Release(res *place.Reservation) error {
	return f.engine.Release(res)
}

// AllocData allocates a data block from ip's reservation.
func (f *FS) AllocData(ctx context.Context, ip *inode.Inode) (uint64, error) {
	return f.cat.AllocData(ctx, ip)
}

// AllocMeta allocates a metadata block from ip's reservation.
func (f *FS) AllocMeta(ctx context.Context, ip *inode.Inode) (uint64, error) {
	return f.cat.AllocMeta(ctx, ip)
}

// AllocDinode allocates a dinode block from the reservation of the
// directory dip.
func (f *FS) AllocDinode(ctx context.Context, dip *inode.Inode) (uint64, error) {
	return f.cat.AllocDinode(ctx, dip)
}

// NewMeta returns a held, cleared buffer for a fresh metadata block.
func (f *FS) NewMeta(ctx context.Context, blk uint64) (blockio.Ref, error) {
	return f.cat.NewMeta(ctx, blk)
}

// FreeData frees n data blocks from bstart. The region must be locked.
func (f *FS) FreeData(ctx context.Context, ip *inode.Inode, bstart uint64, n uint32) error {
	return f.cat.FreeData(ctx, ip, bstart, n)
}

// FreeMeta frees n metadata blocks from bstart. The region must be locked.
func (f *FS) FreeMeta(ctx context.Context, ip *inode.Inode, bstart uint64, n uint32) error {
	return f.cat.FreeMeta(ctx, ip, bstart, n)
}

// FreeDinode frees the dinode block of ip. The region must be locked.
func (f *FS) FreeDinode(ctx context.Context, ip *inode.Inode) error {
	return f.cat.FreeDinode(ctx, ip)
}

// Statfs totals the region header counters.
func (f *FS) Statfs(ctx context.Context) (rgrp.Statfs, error) {
	return f.cat.Statfs(ctx)
}

// VerifyAll checks every region's header counters against its bitmap.
func (f *FS) VerifyAll(ctx context.Context) error {
	return f.cat.VerifyAll(ctx)
}

// Reclaim turns free metadata back into free data.
func (f *FS) Reclaim(ctx context.Context) (rgrp.ReclaimStats, error) {
	return f.cat.Reclaim(ctx)
}

// BlockType returns the bitmap state of blk.
func (f *FS) BlockType(ctx context.Context, blk uint64) (bitmap.State, error) {
	return f.cat.BlockType(ctx, blk)
}
