package rgrp

import (
	"context"
	"slices"

	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/inode"
)

// RList collects the regions touched by a multi-block free, kept sorted by
// index so they are always locked in the same order.
type RList struct {
	c       *Catalog
	regions []*Region
}

// NewRList returns an empty region list.
func (c *Catalog) NewRList() *RList { return &RList{c: c} }

// Add records the region holding blk.
func (rl *RList) Add(blk uint64) error {
	r := rl.c.Lookup(blk)
	if r == nil {
		return rl.c.faults.Fault("rindex", "block %d is not in any region", blk)
	}
	i, found := slices.BinarySearchFunc(rl.regions, r.Index, func(x *Region, idx int) int {
		return x.Index - idx
	})
	if !found {
		rl.regions = slices.Insert(rl.regions, i, r)
	}
	return nil
}

// Regions returns the collected regions in index order.
func (rl *RList) Regions() []*Region { return rl.regions }

// Blocks returns the transaction estimate for rewriting every collected
// region's header and bitmap.
func (rl *RList) Blocks() int {
	n := 0
	for _, r := range rl.regions {
		n += int(r.RI.Length)
	}
	return n
}

// LockAll takes every collected region exclusively, in index order. On
// failure nothing stays locked.
func (rl *RList) LockAll(ctx context.Context) ([]*Lease, error) {
	leases := make([]*Lease, 0, len(rl.regions))
	for _, r := range rl.regions {
		l, err := rl.c.Lock(ctx, r, glock.Exclusive, 0)
		if err != nil {
			UnlockAll(leases)
			return nil, err
		}
		leases = append(leases, l)
	}
	return leases, nil
}

// UnlockAll releases every lease.
func UnlockAll(leases []*Lease) {
	for _, l := range leases {
		l.Unlock()
	}
}

// FreeMetaBlocks frees the metadata blocks of ip in one transaction. The
// regions involved are locked first; then the blocks are freed in runs and
// after, if not nil, runs inside the same transaction so the caller can
// update whatever pointed at the blocks. extra is the number of buffers
// after adds to the transaction.
func (c *Catalog) FreeMetaBlocks(ctx context.Context, ip *inode.Inode, blocks []uint64, extra int, after func(ctx context.Context) error) error {
	if len(blocks) == 0 {
		return nil
	}
	rl := c.NewRList()
	for _, b := range blocks {
		if err := rl.Add(b); err != nil {
			return err
		}
	}
	leases, err := rl.LockAll(ctx)
	if err != nil {
		return err
	}
	defer UnlockAll(leases)

	sorted := slices.Clone(blocks)
	slices.Sort(sorted)

	return c.txr.Transact(ctx, rl.Blocks()+extra, func(ctx context.Context) error {
		start, n := sorted[0], uint32(1)
		flush := func() error { return c.FreeMeta(ctx, ip, start, n) }
		for _, b := range sorted[1:] {
			if b == start+uint64(n) && c.Lookup(b) == c.Lookup(start) {
				n++
				continue
			}
			if err := flush(); err != nil {
				return err
			}
			start, n = b, 1
		}
		if err := flush(); err != nil {
			return err
		}
		if after != nil {
			return after(ctx)
		}
		return nil
	})
}
