package rgrp

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/rgkit/gfs/bitmap"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/internal/format"
)

// Statfs is the sum of the region header counters.
type Statfs struct {
	Regions     int
	Total       uint64 // allocatable blocks
	Free        uint64
	FreeMeta    uint64
	UsedMeta    uint64
	UsedDinodes uint64
	FreeDinodes uint64
}

// Used returns the blocks not available for allocation.
func (s Statfs) Used() uint64 { return s.Total - s.Free - s.FreeMeta }

// Statfs reads every region header under a shared lock.
func (c *Catalog) Statfs(ctx context.Context) (Statfs, error) {
	var (
		mu  sync.Mutex
		out = Statfs{Regions: len(c.regions)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyParallelism)
	for _, r := range c.regions {
		r := r
		g.Go(func() error {
			l, err := c.Lock(gctx, r, glock.Shared, 0)
			if err != nil {
				return err
			}
			h := l.Header()
			l.Unlock()

			mu.Lock()
			defer mu.Unlock()
			out.Total += uint64(r.RI.Data)
			out.Free += uint64(h.Free)
			out.FreeMeta += uint64(h.FreeMeta)
			out.UsedMeta += uint64(h.UsedMeta)
			out.UsedDinodes += uint64(h.UsedDinodes)
			out.FreeDinodes += uint64(h.FreeDinodes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Statfs{}, err
	}
	return out, nil
}

// BlockType returns the bitmap state of blk. It takes the region lock
// shared, so it must not be called while this node holds that region
// exclusively.
func (c *Catalog) BlockType(ctx context.Context, blk uint64) (bitmap.State, error) {
	r := c.Lookup(blk)
	if r == nil {
		return 0, ErrNotAllocatable
	}
	l, err := c.Lock(ctx, r, glock.Shared, 0)
	if err != nil {
		return 0, err
	}
	defer l.Unlock()
	rel := uint32(blk - r.RI.Data1)
	buf := r.bitIndex(rel)
	return bitmap.Test(l.bitmap(buf), rel-r.Bits[buf].Start*format.BlocksPerByte), nil
}
