package rgrp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/internal/format"
)

func mustGeometry(t *testing.T, bsize uint32) gfs.Geometry {
	t.Helper()
	g, err := gfs.NewGeometry(bsize)
	require.NoError(t, err)
	return g
}

func Test_VerifyAll_FreshImage(t *testing.T) {
	f := newFixture(t, 16, smallRegions)
	require.NoError(t, f.cat.VerifyAll(context.Background()))
}

func Test_Verify_CounterMismatch(t *testing.T) {
	f := newFixture(t, 16, smallRegions)
	r := f.cat.ByIndex(1)

	b, err := f.dev.Block(r.Addr())
	require.NoError(t, err)
	h, err := format.DecodeRgrpHeader(b)
	require.NoError(t, err)
	h.Free--
	h.UsedMeta++
	format.EncodeRgrpCounters(b, h)

	err = f.cat.Verify(context.Background(), r)
	var verr *VerifyError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "RgrpCounters", verr.Type)
	assert.Equal(t, int64(r.Addr()), verr.Block)
	assert.Contains(t, verr.Error(), "free data mismatch")

	require.Error(t, f.cat.VerifyAll(context.Background()))
	assert.False(t, f.faults.Withdrawn(), "verification alone does not withdraw")
}

func Test_Reclaim_ReturnsFreeMetadata(t *testing.T) {
	f := newFixture(t, 16, smallRegions)
	ip := f.inode(t)
	l := f.reserve(t, ip, 0)

	var blk uint64
	f.transact(t, func(ctx context.Context) error {
		var err error
		blk, err = f.cat.AllocMeta(ctx, ip)
		return err
	})
	f.transact(t, func(ctx context.Context) error {
		return f.cat.FreeMeta(ctx, ip, blk, 1)
	})
	l.Unlock()
	require.Equal(t, 16, f.cat.MHC().Len())

	st, err := f.cat.Reclaim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), st.Metadata)
	assert.Zero(t, st.Dinodes)
	assert.Zero(t, f.cat.MHC().Len())

	h := f.diskHeader(t, 0)
	assert.Equal(t, uint32(64), h.Free)
	assert.Zero(t, h.FreeMeta)
	require.NoError(t, f.cat.VerifyAll(context.Background()))

	st, err = f.cat.Reclaim(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Metadata, "nothing left to reclaim")
}

func Test_Reclaim_UnusedDinodeChain(t *testing.T) {
	f := newFixture(t, 16, smallRegions)
	ip := f.inode(t)
	l := f.reserve(t, ip, 0)

	var a, b uint64
	f.transact(t, func(ctx context.Context) error {
		var err error
		if a, err = f.cat.AllocDinode(ctx, ip); err != nil {
			return err
		}
		b, err = f.cat.AllocDinode(ctx, ip)
		return err
	})
	l.Unlock()

	// Park both dinodes on the legacy chain: a -> b -> end.
	writeUnused := func(addr uint64, next format.Inum) {
		blk, err := f.dev.Block(addr)
		require.NoError(t, err)
		clear(blk)
		format.EncodeDinode(blk, format.Dinode{
			Header:     format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeDI, Format: format.FormatDI},
			Num:        format.Inum{Formal: addr, Addr: addr},
			Flags:      format.DinodeFlagUnused,
			NextUnused: next,
		})
	}
	writeUnused(a, format.Inum{Formal: b, Addr: b})
	writeUnused(b, format.Inum{})

	hb, err := f.dev.Block(f.res.Regions[0].Addr)
	require.NoError(t, err)
	h, err := format.DecodeRgrpHeader(hb)
	require.NoError(t, err)
	h.UsedDinodes = 0
	h.FreeDinodes = 2
	h.FreeDiList = format.Inum{Formal: a, Addr: a}
	format.EncodeRgrpCounters(hb, h)

	st, err := f.cat.Reclaim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Dinodes)
	assert.Equal(t, uint64(14), st.Metadata)

	h = f.diskHeader(t, 0)
	assert.Equal(t, uint32(64), h.Free)
	assert.Zero(t, h.FreeDinodes)
	assert.True(t, h.FreeDiList.IsZero())
}
