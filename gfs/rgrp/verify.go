package rgrp

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/rgkit/gfs/bitmap"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/internal/format"
)

// VerifyError reports a region whose header counters disagree with its
// bitmap.
type VerifyError struct {
	Type    string
	Message string
	Block   int64 // region header address, -1 if N/A
	Details map[string]interface{}
}

func (e *VerifyError) Error() string {
	if e.Block >= 0 {
		return fmt.Sprintf("%s at block %d: %s", e.Type, e.Block, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Count returns the number of blocks in each bitmap state, summed over all
// of the region's bitmap blocks.
func (l *Lease) Count() [4]uint32 {
	var total [4]uint32
	for i := range l.rgd.Bits {
		c := bitmap.Count(l.bitmap(i))
		for s := range total {
			total[s] += c[s]
		}
	}
	return total
}

// check compares the bitmap against the header counters.
func check(l *Lease) error {
	ri := l.rgd.RI
	h := l.Header()
	count := l.Count()

	mismatch := func(what string, got, want uint32) error {
		return &VerifyError{
			Type:    "RgrpCounters",
			Message: fmt.Sprintf("%s mismatch: bitmap %d, header %d", what, got, want),
			Block:   int64(ri.Addr),
			Details: map[string]interface{}{"bitmap": got, "header": want},
		}
	}

	if count[bitmap.Free] != h.Free {
		return mismatch("free data", count[bitmap.Free], h.Free)
	}
	used := ri.Data - (h.UsedMeta + h.FreeMeta) - (h.UsedDinodes + h.FreeDinodes) - h.Free
	if count[bitmap.Used] != used {
		return mismatch("used data", count[bitmap.Used], used)
	}
	if count[bitmap.FreeMeta] != h.FreeMeta {
		return mismatch("free metadata", count[bitmap.FreeMeta], h.FreeMeta)
	}
	usedMeta := h.UsedMeta + h.UsedDinodes + h.FreeDinodes
	if count[bitmap.UsedMeta] != usedMeta {
		return mismatch("used metadata", count[bitmap.UsedMeta], usedMeta)
	}
	return nil
}

// Verify locks r shared and checks its bitmap against its header. A
// mismatch is returned as a *VerifyError and does not withdraw the
// filesystem; callers that find one mid-operation raise the fault.
func (c *Catalog) Verify(ctx context.Context, r *Region) error {
	l, err := c.Lock(ctx, r, glock.Shared, 0)
	if err != nil {
		return err
	}
	defer l.Unlock()
	if _, err := format.DecodeRgrpHeader(c.arena.Data(l.bh[0])); err != nil {
		return &VerifyError{Type: "RgrpHeader", Message: err.Error(), Block: int64(r.Addr())}
	}
	return check(l)
}

// VerifyAll verifies every region, a few at a time, and returns the first
// failure.
func (c *Catalog) VerifyAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyParallelism)
	for _, r := range c.regions {
		r := r
		g.Go(func() error {
			return c.Verify(gctx, r)
		})
	}
	return g.Wait()
}

const verifyParallelism = 4
