package place

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/dirty"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/mkfs"
	"github.com/joshuapare/rgkit/gfs/quota"
	"github.com/joshuapare/rgkit/gfs/rgrp"
	"github.com/joshuapare/rgkit/gfs/tx"
	"github.com/joshuapare/rgkit/internal/format"
	"github.com/joshuapare/rgkit/internal/testutil"
)

// node is one mount of the shared test device.
type node struct {
	arena *blockio.Arena
	txm   *tx.Manager
	cat   *rgrp.Catalog
	eng   *Engine
	geo   gfs.Geometry
	res   mkfs.Result
}

func newNode(t *testing.T, dev *gfs.Device, res mkfs.Result, locker glock.Locker, opts Options) *node {
	t.Helper()
	geo, err := gfs.NewGeometry(res.Superblock.BlockSize)
	require.NoError(t, err)
	arena := blockio.NewArena(dev)
	faults := consist.New(zap.NewNop())
	txm := tx.NewManager(arena, dirty.NewTracker(dev), dirty.FlushAuto, faults)
	cat, err := rgrp.NewCatalog(res.Regions, rgrp.Deps{
		Geometry:   geo,
		Arena:      arena,
		Locker:     locker,
		Marker:     txm,
		Faults:     faults,
		Quota:      opts.Quota,
		Transactor: txm,
		Direct:     txm,
		ClumpSize:  16,
		MaxMHC:     64,
	})
	require.NoError(t, err)
	return &node{arena: arena, txm: txm, cat: cat, eng: NewEngine(cat, opts), geo: geo, res: res}
}

func newSingle(t *testing.T, opts Options) *node {
	t.Helper()
	dev, res := testutil.NewImage(t, testutil.ImageOptions{RgrpBlocks: 65})
	return newNode(t, dev, res, glock.NewLocalLocker(), opts)
}

func (n *node) inode(t *testing.T) *inode.Inode {
	t.Helper()
	ip, err := inode.Load(context.Background(), n.arena, n.geo, n.res.RootAddr)
	require.NoError(t, err)
	t.Cleanup(ip.Close)
	return ip
}

func Test_TryFit(t *testing.T) {
	tests := []struct {
		name     string
		h        format.RgrpHeader
		req      Request
		fits     bool
		wantMeta uint32
		wantData uint32
	}{
		{"data only", format.RgrpHeader{Free: 64}, Request{Data: 64}, true, 0, 64},
		{"too much data", format.RgrpHeader{Free: 64}, Request{Data: 65}, false, 0, 0},
		{"meta pays for a clump", format.RgrpHeader{Free: 64}, Request{Meta: 1, Data: 48}, true, 1, 64},
		{"clump does not fit", format.RgrpHeader{Free: 64}, Request{Meta: 1, Data: 49}, false, 0, 0},
		{"free meta covers request", format.RgrpHeader{Free: 4, FreeMeta: 3}, Request{Meta: 2, Dinodes: 1}, true, 3, 0},
		{"two clumps", format.RgrpHeader{Free: 40, FreeMeta: 1}, Request{Meta: 20}, true, 20, 32},
		{"dinodes count as meta", format.RgrpHeader{Free: 15, FreeMeta: 1}, Request{Dinodes: 2}, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			al := inode.NewAlloc(tt.req.Dinodes, tt.req.Meta, tt.req.Data)
			require.Equal(t, tt.fits, tryFit(tt.h, 16, al))
			assert.Equal(t, tt.wantMeta, al.ReservedMeta)
			assert.Equal(t, tt.wantData, al.ReservedData)
		})
	}
}

func Test_Reserve_ForwardThenRecent(t *testing.T) {
	n := newSingle(t, Options{})
	ip := n.inode(t)
	ctx := context.Background()

	res, err := n.eng.Reserve(ctx, ip, Request{Data: 1})
	require.NoError(t, err)
	assert.Equal(t, "forward", res.Source())
	assert.Same(t, n.cat.First(), res.Region())
	assert.Equal(t, n.cat.First().Addr(), ip.LastRgAlloc)
	assert.Same(t, res.Alloc(), ip.Alloc)
	assert.Same(t, n.cat.ByIndex(1), n.eng.State().Forward())
	assert.Equal(t, []*rgrp.Region{n.cat.First()}, n.eng.State().Recent())
	require.NoError(t, n.eng.Release(res))
	assert.Nil(t, ip.Alloc)
	assert.Nil(t, n.cat.First().Exclusive())

	res, err = n.eng.Reserve(ctx, ip, Request{Meta: 2})
	require.NoError(t, err)
	assert.Equal(t, "recent", res.Source())
	assert.Same(t, n.cat.First(), res.Region())
	assert.Equal(t, uint32(2), res.Alloc().ReservedMeta)
	assert.Equal(t, uint32(16), res.Alloc().ReservedData)
	require.NoError(t, n.eng.Release(res))
	require.NoError(t, n.eng.Release(res), "second release is a no-op")
}

func Test_Reserve_FullRegionLeavesRecentList(t *testing.T) {
	n := newSingle(t, Options{})
	ip := n.inode(t)
	ctx := context.Background()

	res, err := n.eng.Reserve(ctx, ip, Request{Data: 64})
	require.NoError(t, err)
	require.NoError(t, n.txm.Transact(ctx, 4, func(ctx context.Context) error {
		for i := 0; i < 64; i++ {
			if _, err := n.cat.AllocData(ctx, ip); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, n.eng.Release(res))

	res, err = n.eng.Reserve(ctx, ip, Request{Data: 1})
	require.NoError(t, err)
	assert.Equal(t, "forward", res.Source())
	assert.Same(t, n.cat.ByIndex(1), res.Region())
	assert.Equal(t, []*rgrp.Region{n.cat.ByIndex(1)}, n.eng.State().Recent())
	require.NoError(t, n.eng.Release(res))
}

func Test_Reserve_NoSpace(t *testing.T) {
	n := newSingle(t, Options{})
	ip := n.inode(t)

	_, err := n.eng.Reserve(context.Background(), ip, Request{Data: 65})
	require.ErrorIs(t, err, ErrNoSpace)
	assert.Nil(t, ip.Alloc)
	for _, r := range n.cat.Regions() {
		assert.Nil(t, r.Exclusive(), "region %d left locked", r.Index)
	}
}

func Test_Reserve_BadRequests(t *testing.T) {
	n := newSingle(t, Options{})
	ip := n.inode(t)
	ctx := context.Background()

	_, err := n.eng.Reserve(ctx, ip, Request{})
	require.ErrorIs(t, err, ErrEmptyRequest)

	res, err := n.eng.Reserve(ctx, ip, Request{Data: 1})
	require.NoError(t, err)
	_, err = n.eng.Reserve(ctx, ip, Request{Data: 1})
	require.ErrorIs(t, err, ErrReserved)
	require.NoError(t, n.eng.Release(res))
}

func Test_Reserve_Quota(t *testing.T) {
	q := quota.NewLedger()
	q.LimitUser(0, 2)
	n := newSingle(t, Options{Quota: q})
	ip := n.inode(t)

	_, err := n.eng.Reserve(context.Background(), ip, Request{Data: 3})
	require.ErrorIs(t, err, quota.ErrOverLimit)

	res, err := n.eng.Reserve(context.Background(), ip, Request{Dinodes: 5})
	require.NoError(t, err, "dinodes are not charged")
	require.NoError(t, n.eng.Release(res))
}

func Test_Release_ReportsOverrun(t *testing.T) {
	n := newSingle(t, Options{})
	ip := n.inode(t)
	ctx := context.Background()

	res, err := n.eng.Reserve(ctx, ip, Request{Data: 1})
	require.NoError(t, err)
	require.NoError(t, n.txm.Transact(ctx, 4, func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			if _, err := n.cat.AllocData(ctx, ip); err != nil {
				return err
			}
		}
		return nil
	}))

	err = n.eng.Release(res)
	require.ErrorIs(t, err, consist.ErrConsistency)
	assert.Nil(t, res.Region().Exclusive(), "released even on overrun")
	assert.Nil(t, ip.Alloc)
}

func Test_Reserve_JournalsSpreadStartingRegion(t *testing.T) {
	n := newSingle(t, Options{Journals: 2, JID: 1})
	ip := n.inode(t)

	res, err := n.eng.Reserve(context.Background(), ip, Request{Data: 1})
	require.NoError(t, err)
	assert.Equal(t, n.cat.Len()/2, res.Region().Index)
	require.NoError(t, n.eng.Release(res))
}

func Test_Reserve_TwoNodesSkipBusyRegions(t *testing.T) {
	dev, res := testutil.NewImage(t, testutil.ImageOptions{RgrpBlocks: 65})
	locker := glock.NewLocalLocker()
	a := newNode(t, dev, res, locker, Options{})
	b := newNode(t, dev, res, locker, Options{})
	ipA, ipB := a.inode(t), b.inode(t)
	ctx := context.Background()

	// b learns region 0 as recent, then a takes it.
	rb, err := b.eng.Reserve(ctx, ipB, Request{Data: 1})
	require.NoError(t, err)
	require.Equal(t, 0, rb.Region().Index)
	require.NoError(t, b.eng.Release(rb))

	ra, err := a.eng.Reserve(ctx, ipA, Request{Data: 1})
	require.NoError(t, err)
	require.Equal(t, 0, ra.Region().Index)

	rb, err = b.eng.Reserve(ctx, ipB, Request{Data: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, rb.Region().Index, "busy region skipped")
	assert.Equal(t, "forward", rb.Source())
	assert.Equal(t, uint32(1), b.eng.State().tryCount(b.cat.First()))
	assert.Equal(t, []*rgrp.Region{b.cat.ByIndex(0), b.cat.ByIndex(1)}, b.eng.State().Recent())

	require.NoError(t, b.eng.Release(rb))
	require.NoError(t, a.eng.Release(ra))
}

func Test_Reserve_Cancelled(t *testing.T) {
	n := newSingle(t, Options{})
	ip := n.inode(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.eng.Reserve(ctx, ip, Request{Data: 1})
	require.ErrorIs(t, err, context.Canceled)
}
