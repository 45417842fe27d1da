package rgrp

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/bitmap"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/metrics"
	"github.com/joshuapare/rgkit/gfs/tx"
	"github.com/joshuapare/rgkit/internal/format"
)

// reserved returns the exclusive lease behind ip's reservation.
func (c *Catalog) reserved(ip *inode.Inode) (*Lease, error) {
	if err := c.faults.Check(); err != nil {
		return nil, err
	}
	if ip.Alloc == nil || ip.Alloc.Region < 0 {
		return nil, fmt.Errorf("%s: %w", ip.Where(), ErrNoReservation)
	}
	r := c.ByIndex(ip.Alloc.Region)
	if r == nil {
		return nil, fmt.Errorf("%s: %w", ip.Where(), ErrNoReservation)
	}
	l := r.Exclusive()
	if l == nil {
		return nil, fmt.Errorf("%s: %w", r.Where(), ErrNotLocked)
	}
	return l, nil
}

// search finds a block in state old at or after goal (region-relative),
// wrapping around the region once, and moves it to state next. Running out
// of blocks here means the counters lied, which is a consistency fault.
func (c *Catalog) search(ctx context.Context, l *Lease, goal uint32, old, next bitmap.State) (uint32, error) {
	rgd := l.rgd
	length := len(rgd.Bits)

	buf := rgd.bitIndex(goal)
	if buf < 0 {
		buf, goal = 0, 0
	}
	goal -= rgd.Bits[buf].Start * format.BlocksPerByte

	for x := 0; x <= length; x++ {
		bm := l.bitmap(buf)
		if blk, ok := bitmap.Fit(bm, goal, old); ok {
			if err := c.marker.AddBuffer(ctx, l.bh[buf], rgd.Where()); err != nil {
				return 0, err
			}
			if err := bitmap.Set(bm, blk, next); err != nil {
				return 0, c.faults.Fault(rgd.Where(), "%v", err)
			}
			return rgd.Bits[buf].Start*format.BlocksPerByte + blk, nil
		}
		buf = (buf + 1) % length
		goal = 0
	}
	return 0, c.faults.Fault(rgd.Where(), "no %s block for %s allocation despite counters", old, next)
}

// setRun moves n blocks starting at bstart to state next and returns the
// lease of their region.
func (c *Catalog) setRun(ctx context.Context, bstart uint64, n uint32, next bitmap.State) (*Lease, error) {
	if err := c.faults.Check(); err != nil {
		return nil, err
	}
	rgd := c.Lookup(bstart)
	if rgd == nil {
		return nil, c.faults.Fault("rindex", "block %d is not in any region", bstart)
	}
	if bstart+uint64(n) > rgd.RI.Data1+uint64(rgd.RI.Data) {
		return nil, fmt.Errorf("%w: %d+%d leaves %s", ErrCrossRegion, bstart, n, rgd.Where())
	}
	l := rgd.Exclusive()
	if l == nil {
		return nil, fmt.Errorf("%s: %w", rgd.Where(), ErrNotLocked)
	}

	rel := uint32(bstart - rgd.RI.Data1)
	for i := uint32(0); i < n; i++ {
		blk := rel + i
		buf := rgd.bitIndex(blk)
		if buf < 0 {
			return nil, c.faults.Fault(rgd.Where(), "block %d past the bitmap", blk)
		}
		if err := c.marker.AddBuffer(ctx, l.bh[buf], rgd.Where()); err != nil {
			return nil, err
		}
		if err := bitmap.Set(l.bitmap(buf), blk-rgd.Bits[buf].Start*format.BlocksPerByte, next); err != nil {
			return nil, c.faults.Fault(rgd.Where(), "freeing block %d: %v", rgd.RI.Data1+uint64(blk), err)
		}
	}
	return l, nil
}

// clumpAlloc converts ClumpSize free data blocks into free metadata. Each block
// gets a placeholder meta header written straight to the device, and its
// header goes into the cache so the first real allocation resumes the
// generation count. It returns the first converted block.
func (c *Catalog) clumpAlloc(ctx context.Context, l *Lease) (uint32, error) {
	rgd := l.rgd
	h := l.Header()
	if h.Free < c.clump {
		return 0, c.faults.Fault(rgd.Where(), "clump needs %d free blocks, header says %d", c.clump, h.Free)
	}

	goal := rgd.lastAllocData
	var first uint32
	for x := uint32(0); x < c.clump; x++ {
		blk, err := c.search(ctx, l, goal, bitmap.Free, bitmap.FreeMeta)
		if err != nil {
			return 0, err
		}
		if x == 0 {
			first = blk
		}
		abs := rgd.RI.Data1 + uint64(blk)
		if err := c.writePlaceholder(rgd, abs); err != nil {
			return 0, err
		}
		goal = blk
	}
	rgd.lastAllocData = goal

	h.Free -= c.clump
	h.FreeMeta += c.clump
	if err := c.setHeader(ctx, l, h); err != nil {
		return 0, err
	}
	metrics.ClumpConversions.Inc()
	c.log.Debug("clump converted",
		zap.Uint64("rgrp", rgd.Addr()),
		zap.Uint32("first", first),
		zap.Uint32("blocks", c.clump))
	return first, nil
}

func (c *Catalog) writePlaceholder(rgd *Region, blk uint64) error {
	ref := c.arena.New(blk)
	defer c.arena.Release(ref)
	b := c.arena.Data(ref)
	mh := format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeNone}
	format.EncodeMetaHeader(b, mh)
	var err error
	if c.direct != nil {
		err = c.direct.WriteThrough(ref)
	} else {
		_, _, err = c.arena.Write(ref)
	}
	if err != nil {
		return fmt.Errorf("%s: clump block %d: %w", rgd.Where(), blk, err)
	}
	c.mhc.Add(rgd.Index, blk, mh)
	return nil
}

// AllocData allocates one data block from ip's reserved region.
func (c *Catalog) AllocData(ctx context.Context, ip *inode.Inode) (uint64, error) {
	l, err := c.reserved(ip)
	if err != nil {
		return 0, err
	}
	rgd, di := l.rgd, &ip.Di

	same := rgd.Addr() == di.GoalRgrp
	goal := rgd.lastAllocData
	if same {
		goal = di.GoalDblk
	}

	blk, err := c.search(ctx, l, goal, bitmap.Free, bitmap.Used)
	if err != nil {
		return 0, err
	}
	rgd.lastAllocData = blk

	if !same {
		di.GoalRgrp = rgd.Addr()
		di.GoalMblk = 0
	}
	di.GoalDblk = blk

	h := l.Header()
	if h.Free == 0 {
		return 0, c.faults.Fault(rgd.Where(), "data allocation with no free blocks")
	}
	h.Free--
	if err := c.setHeader(ctx, l, h); err != nil {
		return 0, err
	}

	ip.Alloc.AllocedData++
	c.charge(ctx, ip, +1)
	metrics.BlocksAllocated.WithLabelValues("data").Inc()
	return rgd.RI.Data1 + uint64(blk), nil
}

// AllocMeta allocates one metadata block from ip's reserved region,
// converting a clump of data blocks first when no free metadata is left.
func (c *Catalog) AllocMeta(ctx context.Context, ip *inode.Inode) (uint64, error) {
	l, err := c.reserved(ip)
	if err != nil {
		return 0, err
	}
	rgd, di := l.rgd, &ip.Di

	same := rgd.Addr() == di.GoalRgrp
	var goal uint32
	if l.Header().FreeMeta == 0 {
		if goal, err = c.clumpAlloc(ctx, l); err != nil {
			return 0, err
		}
		ip.Alloc.AllocedData += c.clump
	} else if same {
		goal = di.GoalMblk
	} else {
		goal = rgd.lastAllocMeta
	}

	blk, err := c.search(ctx, l, goal, bitmap.FreeMeta, bitmap.UsedMeta)
	if err != nil {
		return 0, err
	}
	rgd.lastAllocMeta = blk

	if !same {
		di.GoalRgrp = rgd.Addr()
		di.GoalDblk = 0
	}
	di.GoalMblk = blk

	h := l.Header()
	if h.FreeMeta == 0 {
		return 0, c.faults.Fault(rgd.Where(), "metadata allocation with no free metadata")
	}
	h.FreeMeta--
	h.UsedMeta++
	if err := c.setHeader(ctx, l, h); err != nil {
		return 0, err
	}

	ip.Alloc.AllocedMeta++
	c.charge(ctx, ip, +1)
	metrics.BlocksAllocated.WithLabelValues("meta").Inc()
	return rgd.RI.Data1 + uint64(blk), nil
}

// AllocDinode allocates a block for a new dinode on behalf of the
// directory dip. Dinodes are charged to their own owner when they are
// initialized, not to the directory.
func (c *Catalog) AllocDinode(ctx context.Context, dip *inode.Inode) (uint64, error) {
	l, err := c.reserved(dip)
	if err != nil {
		return 0, err
	}
	rgd := l.rgd

	var goal uint32
	if l.Header().FreeMeta > 0 {
		goal = rgd.lastAllocMeta
	} else {
		if goal, err = c.clumpAlloc(ctx, l); err != nil {
			return 0, err
		}
		dip.Alloc.AllocedData += c.clump
	}

	blk, err := c.search(ctx, l, goal, bitmap.FreeMeta, bitmap.UsedMeta)
	if err != nil {
		return 0, err
	}
	rgd.lastAllocMeta = blk

	h := l.Header()
	if h.FreeMeta == 0 {
		return 0, c.faults.Fault(rgd.Where(), "dinode allocation with no free metadata")
	}
	h.FreeMeta--
	h.UsedDinodes++
	if err := c.setHeader(ctx, l, h); err != nil {
		return 0, err
	}

	dip.Alloc.AllocedDinodes++
	dip.Alloc.AllocedMeta++
	metrics.BlocksAllocated.WithLabelValues("dinode").Inc()
	return rgd.RI.Data1 + uint64(blk), nil
}

// NewMeta returns a held, cleared buffer for a freshly allocated metadata
// block. The meta header is restored from the cache, or kept from disk,
// so the block's generation number keeps counting up. The caller stamps
// the type, adds the buffer to its transaction and releases it.
func (c *Catalog) NewMeta(ctx context.Context, blk uint64) (blockio.Ref, error) {
	ref, err := c.arena.Read(ctx, blk)
	if err != nil {
		return blockio.NoRef, err
	}
	b := c.arena.Data(ref)
	old, _ := format.DecodeMetaHeader(b)
	clear(b)

	mh, ok := c.mhc.Fish(blk)
	if !ok {
		mh = format.MetaHeader{Magic: format.Magic, Generation: old.Generation}
		if old.Magic != format.Magic {
			mh.Generation = 0
		}
	}
	format.EncodeMetaHeader(b, mh)
	return ref, nil
}

// FreeData returns a run of data blocks to the free pool.
func (c *Catalog) FreeData(ctx context.Context, ip *inode.Inode, bstart uint64, n uint32) error {
	l, err := c.setRun(ctx, bstart, n, bitmap.Free)
	if err != nil {
		return err
	}
	h := l.Header()
	h.Free += n
	if err := c.setHeader(ctx, l, h); err != nil {
		return err
	}
	c.charge(ctx, ip, -int64(n))
	metrics.BlocksFreed.WithLabelValues("data").Add(float64(n))
	return nil
}

// FreeMeta returns a run of metadata blocks to the free metadata pool.
func (c *Catalog) FreeMeta(ctx context.Context, ip *inode.Inode, bstart uint64, n uint32) error {
	l, err := c.setRun(ctx, bstart, n, bitmap.FreeMeta)
	if err != nil {
		return err
	}
	rgd := l.rgd
	h := l.Header()
	if h.UsedMeta < n {
		return c.faults.Fault(rgd.Where(), "freeing %d metadata blocks, only %d in use", n, h.UsedMeta)
	}
	h.UsedMeta -= n
	h.FreeMeta += n
	if err := c.setHeader(ctx, l, h); err != nil {
		return err
	}
	c.charge(ctx, ip, -int64(n))
	c.wipe(ctx, rgd, bstart, n)
	metrics.BlocksFreed.WithLabelValues("meta").Add(float64(n))
	return nil
}

// FreeDinode returns the block of the dinode ip to the free metadata pool.
func (c *Catalog) FreeDinode(ctx context.Context, ip *inode.Inode) error {
	l, err := c.setRun(ctx, ip.Addr, 1, bitmap.FreeMeta)
	if err != nil {
		return err
	}
	rgd := l.rgd
	h := l.Header()
	if h.UsedDinodes == 0 {
		return c.faults.Fault(rgd.Where(), "freeing dinode %d with no dinodes in use", ip.Addr)
	}
	h.UsedDinodes--
	h.FreeMeta++
	if err := c.setHeader(ctx, l, h); err != nil {
		return err
	}
	c.charge(ctx, ip, -1)
	c.wipe(ctx, rgd, ip.Addr, 1)
	metrics.BlocksFreed.WithLabelValues("dinode").Inc()
	return nil
}

// charge applies a quota change for ip once the current transaction
// commits, so a rollback leaves the ledger alone.
func (c *Catalog) charge(ctx context.Context, ip *inode.Inode, delta int64) {
	uid, gid := ip.Di.UID, ip.Di.GID
	tx.AfterCommit(ctx, func() { c.quota.Change(uid, gid, delta) })
}

// wipe remembers the meta headers of freed metadata blocks.
func (c *Catalog) wipe(ctx context.Context, rgd *Region, bstart uint64, n uint32) {
	for blk := bstart; blk < bstart+uint64(n); blk++ {
		ref, err := c.arena.Read(ctx, blk)
		if err != nil {
			continue
		}
		if mh, err := format.DecodeMetaHeader(c.arena.Data(ref)); err == nil {
			c.mhc.Add(rgd.Index, blk, mh)
		}
		c.arena.Release(ref)
	}
}
