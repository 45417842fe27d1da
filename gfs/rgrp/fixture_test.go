package rgrp

import (
	"context"
	"testing"

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
	"github.com/joshuapare/rgkit/gfs/tx"
	"github.com/joshuapare/rgkit/internal/format"
	"github.com/joshuapare/rgkit/internal/testutil"
)

// smallRegions gives 64 allocatable blocks per region.
var smallRegions = testutil.ImageOptions{RgrpBlocks: 65}

type fixture struct {
	dev    *gfs.Device
	res    mkfs.Result
	geo    gfs.Geometry
	arena  *blockio.Arena
	faults *consist.Tracker
	txm    *tx.Manager
	quota  *quota.Ledger
	cat    *Catalog
}

func newFixture(t *testing.T, clump uint32, opts testutil.ImageOptions) *fixture {
	t.Helper()
	dev, res := testutil.NewImage(t, opts)
	geo, err := gfs.NewGeometry(res.Superblock.BlockSize)
	require.NoError(t, err)

	arena := blockio.NewArena(dev)
	faults := consist.New(zap.NewNop())
	txm := tx.NewManager(arena, dirty.NewTracker(dev), dirty.FlushAuto, faults)
	q := quota.NewLedger()

	cat, err := NewCatalog(res.Regions, Deps{
		Geometry:   geo,
		Arena:      arena,
		Locker:     glock.NewLocalLocker(),
		Marker:     txm,
		Faults:     faults,
		Quota:      q,
		Transactor: txm,
		Direct:     txm,
		ClumpSize:  clump,
		MaxMHC:     128,
	})
	require.NoError(t, err)
	return &fixture{dev: dev, res: res, geo: geo, arena: arena, faults: faults, txm: txm, quota: q, cat: cat}
}

// inode loads the root directory to allocate on behalf of.
func (f *fixture) inode(t *testing.T) *inode.Inode {
	t.Helper()
	ip, err := inode.Load(context.Background(), f.arena, f.geo, f.res.RootAddr)
	require.NoError(t, err)
	t.Cleanup(ip.Close)
	return ip
}

// reserve locks region idx exclusively and attaches it to ip, the way the
// placement engine does.
func (f *fixture) reserve(t *testing.T, ip *inode.Inode, idx int) *Lease {
	t.Helper()
	l, err := f.cat.Lock(context.Background(), f.cat.ByIndex(idx), glock.Exclusive, 0)
	require.NoError(t, err)
	t.Cleanup(l.Unlock)
	ip.Alloc = inode.NewAlloc(0, 0, 0)
	ip.Alloc.Region = idx
	return l
}

func (f *fixture) transact(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	require.NoError(t, f.txm.Transact(context.Background(), 16, fn))
}

func (f *fixture) diskHeader(t *testing.T, idx int) format.RgrpHeader {
	t.Helper()
	b, err := f.dev.Block(f.res.Regions[idx].Addr)
	require.NoError(t, err)
	h, err := format.DecodeRgrpHeader(b)
	require.NoError(t, err)
	return h
}
