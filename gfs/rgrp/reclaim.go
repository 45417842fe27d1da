package rgrp

import (
	"context"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/bitmap"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/metrics"
	"github.com/joshuapare/rgkit/internal/format"
)

// ReclaimStats counts the blocks Reclaim returned to free data.
type ReclaimStats struct {
	Dinodes  uint64
	Metadata uint64
}

// Reclaim converts every free metadata block, and every dinode on a
// region's legacy unused-dinode chain, back to free data. Regions are
// processed one at a time, each in its own transaction.
func (c *Catalog) Reclaim(ctx context.Context) (ReclaimStats, error) {
	var st ReclaimStats
	for _, r := range c.regions {
		if err := c.reclaimRegion(ctx, r, &st); err != nil {
			return st, err
		}
	}
	c.log.Info("metadata reclaimed",
		zap.Uint64("dinodes", st.Dinodes),
		zap.Uint64("metadata", st.Metadata))
	return st, nil
}

func (c *Catalog) reclaimRegion(ctx context.Context, r *Region, st *ReclaimStats) error {
	l, err := c.Lock(ctx, r, glock.Exclusive, 0)
	if err != nil {
		return err
	}
	defer l.Unlock()

	if err := check(l); err != nil {
		return c.faults.Fault(r.Where(), "%v", err)
	}
	if h := l.Header(); h.FreeDinodes == 0 && h.FreeMeta == 0 {
		return nil
	}
	c.mhc.Zap(r.Index)

	var dinodes, meta uint64
	err = c.txr.Transact(ctx, int(r.RI.Length), func(ctx context.Context) error {
		dinodes, meta = 0, 0
		h := l.Header()

		next := h.FreeDiList
		for x := h.FreeDinodes; x > 0; x-- {
			if next.IsZero() || next.Addr == 0 {
				return c.faults.Fault(r.Where(), "unused dinode chain ends early")
			}
			if _, err := c.setRun(ctx, next.Addr, 1, bitmap.Free); err != nil {
				return err
			}
			ref, err := c.arena.Read(ctx, next.Addr)
			if err != nil {
				return err
			}
			di, derr := format.DecodeDinode(c.arena.Data(ref))
			c.arena.Release(ref)
			if derr != nil || di.Flags&format.DinodeFlagUnused == 0 {
				return c.faults.Fault(r.Where(), "dinode %d on unused chain is in use", next.Addr)
			}
			next = di.NextUnused
			h.FreeDinodes--
			h.Free++
			dinodes++
		}
		if !next.IsZero() || next.Addr != 0 {
			return c.faults.Fault(r.Where(), "unused dinode chain longer than its count")
		}
		h.FreeDiList = next

		var goal uint32
		for x := h.FreeMeta; x > 0; x-- {
			blk, err := c.search(ctx, l, goal, bitmap.FreeMeta, bitmap.Free)
			if err != nil {
				return err
			}
			goal = blk
			h.FreeMeta--
			h.Free++
			meta++
		}
		return c.setHeader(ctx, l, h)
	})
	if err != nil {
		return err
	}

	st.Dinodes += dinodes
	st.Metadata += meta
	metrics.MetaReclaimed.Add(float64(dinodes + meta))
	c.log.Debug("region reclaimed",
		zap.Uint64("rgrp", r.Addr()),
		zap.Uint64("dinodes", dinodes),
		zap.Uint64("metadata", meta))
	return nil
}
