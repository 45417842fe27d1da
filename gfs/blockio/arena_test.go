package blockio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memDev struct {
	bsize  int
	data   []byte
	failRd bool
	reads  int
	writes int
}

func newMemDev(blocks, bsize int) *memDev {
	return &memDev{bsize: bsize, data: make([]byte, blocks*bsize)}
}

func (m *memDev) ReadBlock(n uint64, p []byte) error {
	if m.failRd {
		return errors.New("io")
	}
	m.reads++
	copy(p, m.data[int(n)*m.bsize:])
	return nil
}

func (m *memDev) WriteBlock(n uint64, p []byte) error {
	m.writes++
	copy(m.data[int(n)*m.bsize:], p)
	return nil
}

func (m *memDev) BlockSize() int             { return m.bsize }
func (m *memDev) BlockOffset(n uint64) int64 { return int64(n) * int64(m.bsize) }

func TestArena_ReadSharesCachedBuffer(t *testing.T) {
	dev := newMemDev(4, 512)
	dev.data[512] = 0xAB
	a := NewArena(dev)
	ctx := context.Background()

	r1, err := a.Read(ctx, 1)
	require.NoError(t, err)
	r2, err := a.Read(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, r1, r2)
	require.Equal(t, 1, dev.reads)
	require.Equal(t, byte(0xAB), a.Data(r1)[0])

	a.Release(r1)
	require.True(t, a.Cached(1))
	a.Release(r2)
	require.False(t, a.Cached(1))
}

func TestArena_NewSkipsRead(t *testing.T) {
	dev := newMemDev(4, 512)
	dev.data[1024] = 0xFF
	a := NewArena(dev)

	r := a.New(2)
	require.Zero(t, dev.reads)
	require.Equal(t, byte(0), a.Data(r)[0])
	require.Equal(t, uint64(2), a.Blkno(r))
}

func TestArena_DirtySurvivesRelease(t *testing.T) {
	dev := newMemDev(4, 512)
	a := NewArena(dev)

	r := a.New(3)
	a.Data(r)[0] = 7
	require.NoError(t, a.MarkDirty(r))
	a.Release(r)
	require.True(t, a.Cached(3))

	off, n, err := a.Write(r)
	require.NoError(t, err)
	require.Equal(t, int64(1536), off)
	require.Equal(t, 512, n)
	require.Equal(t, byte(7), dev.data[1536])
	require.False(t, a.Cached(3))
}

func TestArena_ForgetReloadsHeldBuffer(t *testing.T) {
	dev := newMemDev(4, 512)
	dev.data[0] = 1
	a := NewArena(dev)
	ctx := context.Background()

	r, err := a.Read(ctx, 0)
	require.NoError(t, err)
	a.Data(r)[0] = 9
	require.NoError(t, a.MarkDirty(r))

	require.NoError(t, a.Forget(r))
	require.Equal(t, byte(1), a.Data(r)[0])
	require.False(t, a.Dirty(r))
}

func TestArena_ReadErrorLeavesNoBuffer(t *testing.T) {
	dev := newMemDev(4, 512)
	dev.failRd = true
	a := NewArena(dev)

	_, err := a.Read(context.Background(), 1)
	require.Error(t, err)
	require.Zero(t, a.Len())
}

func TestArena_BadRef(t *testing.T) {
	a := NewArena(newMemDev(1, 512))
	require.ErrorIs(t, a.Hold(42), ErrBadRef)
	require.Nil(t, a.Data(NoRef))
}

func TestGuard_ReleasesEverything(t *testing.T) {
	dev := newMemDev(8, 512)
	a := NewArena(dev)
	g := a.Guard()

	for blk := uint64(0); blk < 4; blk++ {
		_, err := g.Read(context.Background(), blk)
		require.NoError(t, err)
	}
	g.New(5)
	require.Equal(t, 5, a.Len())

	g.Release()
	g.Release()
	require.Zero(t, a.Len())
}
