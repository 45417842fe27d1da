package dir

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/dirty"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/mkfs"
	"github.com/joshuapare/rgkit/gfs/tx"
	"github.com/joshuapare/rgkit/internal/format"
	"github.com/joshuapare/rgkit/internal/testutil"
)

// fakeAlloc hands out blocks from every region but the first, which holds
// the root dinode and the region index. It also stands in for the region
// catalog when leaves are freed.
type fakeAlloc struct {
	arena *blockio.Arena
	txm   *tx.Manager
	free  []uint64
	used  int
	freed []uint64
}

func newFakeAlloc(arena *blockio.Arena, txm *tx.Manager, regions []format.Rindex) *fakeAlloc {
	a := &fakeAlloc{arena: arena, txm: txm}
	for _, ri := range regions[1:] {
		for b := ri.Data1; b < ri.Data1+uint64(ri.Data); b++ {
			a.free = append(a.free, b)
		}
	}
	return a
}

func (a *fakeAlloc) AllocMeta(_ context.Context, _ *inode.Inode) (uint64, error) {
	if a.used == len(a.free) {
		return 0, errors.New("fake allocator exhausted")
	}
	blk := a.free[a.used]
	a.used++
	return blk, nil
}

func (a *fakeAlloc) NewMeta(_ context.Context, blk uint64) (blockio.Ref, error) {
	return a.arena.New(blk), nil
}

func (a *fakeAlloc) FreeMetaBlocks(ctx context.Context, _ *inode.Inode, blocks []uint64, extra int, after func(ctx context.Context) error) error {
	return a.txm.Transact(ctx, len(blocks)+extra, func(ctx context.Context) error {
		a.freed = append(a.freed, blocks...)
		if after != nil {
			return after(ctx)
		}
		return nil
	})
}

type fixture struct {
	dev    *gfs.Device
	res    mkfs.Result
	arena  *blockio.Arena
	faults *consist.Tracker
	txm    *tx.Manager
	alloc  *fakeAlloc
	ip     *inode.Inode
	d      *Dir
}

// newFixture opens the root directory of a fresh 512-byte-block image.
// maxDepth zero leaves the depth limit at its natural value.
func newFixture(t *testing.T, maxDepth uint16) *fixture {
	t.Helper()
	dev, res := testutil.NewImage(t, testutil.ImageOptions{})
	geo, err := gfs.NewGeometry(res.Superblock.BlockSize)
	require.NoError(t, err)

	arena := blockio.NewArena(dev)
	faults := consist.New(zap.NewNop())
	txm := tx.NewManager(arena, dirty.NewTracker(dev), dirty.FlushAuto, faults)
	alloc := newFakeAlloc(arena, txm, res.Regions)

	ip, err := inode.Load(context.Background(), arena, geo, res.RootAddr)
	require.NoError(t, err)
	t.Cleanup(ip.Close)

	d, err := Open(ip, Deps{
		Marker:     txm,
		Alloc:      alloc,
		Freer:      alloc,
		Transactor: txm,
		Faults:     faults,
		Logger:     zap.NewNop(),
		MaxDepth:   maxDepth,
	})
	require.NoError(t, err)
	return &fixture{dev: dev, res: res, arena: arena, faults: faults, txm: txm, alloc: alloc, ip: ip, d: d}
}

const txEstimate = 256

func (f *fixture) transact(fn func(ctx context.Context) error) error {
	return f.txm.Transact(context.Background(), txEstimate, fn)
}

func inum(i int) format.Inum {
	n := uint64(1000 + i)
	return format.Inum{Formal: n, Addr: n}
}

func name(i int) string { return fmt.Sprintf("file-%04d", i) }

func (f *fixture) add(t *testing.T, i int) {
	t.Helper()
	require.NoError(t, f.transact(func(ctx context.Context) error {
		return f.d.Add(ctx, name(i), inum(i), format.FileReg)
	}))
}

func (f *fixture) addN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.add(t, i)
	}
}

func (f *fixture) del(t *testing.T, i int) {
	t.Helper()
	require.NoError(t, f.transact(func(ctx context.Context) error {
		return f.d.Delete(ctx, name(i))
	}))
}

// names returns the entry names ReadAll reports, checking that they come
// in cursor order.
func (f *fixture) names(t *testing.T) []string {
	t.Helper()
	ents, err := f.d.ReadAll(context.Background())
	require.NoError(t, err)
	out := make([]string, 0, len(ents))
	var last uint64
	for _, e := range ents {
		require.GreaterOrEqual(t, e.Cursor(), last, "entry %q out of order", e.Name)
		last = e.Cursor()
		out = append(out, e.Name)
	}
	return out
}

func expectNames(n int) []string {
	out := []string{".", ".."}
	for i := 0; i < n; i++ {
		out = append(out, name(i))
	}
	return out
}
