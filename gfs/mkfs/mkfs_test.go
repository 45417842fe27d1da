package mkfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/internal/format"
)

func Test_Make_SmallImage(t *testing.T) {
	dev := gfs.NewMem(make([]byte, 1<<20), 512)
	res, err := Make(dev, Options{BlockSize: 512, RgrpBlocks: 256, LockTable: "test:fs"})
	require.NoError(t, err)

	sb, err := gfs.ReadSuperblock(dev.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(512), sb.BlockSize)
	assert.Equal(t, uint32(9), sb.BlockSizeShift)
	assert.Equal(t, "test:fs", sb.LockTable)
	assert.Equal(t, LockProto, sb.LockProto)
	assert.Equal(t, uint64(129), sb.RindexDi.Addr)
	assert.Equal(t, uint64(130), sb.RootDi.Addr)

	require.NotEmpty(t, res.Regions)
	prevEnd := res.RootAddr + 1 + 0
	for i, ri := range res.Regions {
		assert.GreaterOrEqual(t, ri.Addr, prevEnd, "region %d overlaps", i)
		assert.Zero(t, ri.Data%format.BlocksPerByte)
		assert.Equal(t, ri.Data/format.BlocksPerByte, ri.BitBytes)
		assert.Equal(t, ri.Addr+uint64(ri.Length), ri.Data1)

		b, err := dev.Block(ri.Addr)
		require.NoError(t, err)
		h, err := format.DecodeRgrpHeader(b)
		require.NoError(t, err)
		assert.Equal(t, ri.Data, h.Free)
		assert.Zero(t, h.FreeMeta)
		assert.Zero(t, h.UsedMeta)
		for x := uint32(1); x < ri.Length; x++ {
			b, err := dev.Block(ri.Addr + uint64(x))
			require.NoError(t, err)
			assert.NoError(t, format.CheckMetaType(b, format.MetaTypeRB))
		}
		prevEnd = ri.Data1 + uint64(ri.Data)
	}
	assert.LessOrEqual(t, prevEnd, dev.Blocks())
}

func Test_Make_RootDirectory(t *testing.T) {
	dev := gfs.NewMem(make([]byte, 1<<20), 512)
	res, err := Make(dev, Options{BlockSize: 512, RgrpBlocks: 256})
	require.NoError(t, err)

	b, err := dev.Block(res.RootAddr)
	require.NoError(t, err)
	di, err := format.DecodeDinode(b)
	require.NoError(t, err)
	assert.Equal(t, format.FileDir, di.Type)
	assert.Equal(t, uint32(2), di.Entries)
	assert.Equal(t, uint64(512-format.DinodeSize), di.Size)
	assert.NotZero(t, di.Flags&format.DinodeFlagJData)
	assert.Zero(t, di.Flags&format.DinodeFlagExHash)

	tail := b[format.DinodeSize:]
	dot, err := format.DecodeDirent(tail)
	require.NoError(t, err)
	assert.Equal(t, uint16(48), dot.RecLen)
	assert.Equal(t, ".", string(tail[format.DirentHeaderSize:format.DirentHeaderSize+1]))

	dotdot, err := format.DecodeDirent(tail[48:])
	require.NoError(t, err)
	assert.Equal(t, uint16(len(tail)-48), dotdot.RecLen)
	assert.Equal(t, format.Hash([]byte("..")), dotdot.Hash)
	assert.Equal(t, res.RootAddr, dotdot.Inum.Addr)
	assert.True(t, sb(t, dev).LockTable != "", "default lock table is generated")
}

func Test_Make_RindexSpillsToDataBlocks(t *testing.T) {
	// 4 MiB of 512-byte blocks in 64-block regions gives far more index
	// entries than fit after the dinode.
	dev := gfs.NewMem(make([]byte, 4<<20), 512)
	res, err := Make(dev, Options{BlockSize: 512, RgrpBlocks: 64})
	require.NoError(t, err)

	b, err := dev.Block(res.RindexAddr)
	require.NoError(t, err)
	di, err := format.DecodeDinode(b)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), di.Height)
	assert.Equal(t, uint64(len(res.Regions)*format.RindexSize), di.Size)

	first := format.ReadU64(b[format.DinodeSize:], 0)
	assert.Equal(t, res.RootAddr+1, first)
	jd, err := dev.Block(first)
	require.NoError(t, err)
	require.NoError(t, format.CheckMetaType(jd, format.MetaTypeJD))
	ri, err := format.DecodeRindex(jd[format.MetaHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, res.Regions[0], ri)
	assert.Greater(t, res.Regions[0].Addr, first)
}

func Test_Make_TooSmall(t *testing.T) {
	dev := gfs.NewMem(make([]byte, 66*1024), 512)
	_, err := Make(dev, Options{BlockSize: 512, RgrpBlocks: 64})
	require.ErrorIs(t, err, ErrTooSmall)
}

func Test_RegionGeometry(t *testing.T) {
	tests := []struct {
		name   string
		span   uint32
		bsize  uint32
		length uint32
		data   uint32
	}{
		{"one bitmap block", 256, 512, 1, 252},
		{"rounds data to bitmap bytes", 258, 512, 1, 256},
		{"needs a second block", 2048, 512, 2, 2044},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ri, ok := regionGeometry(1000, tt.span, tt.bsize)
			require.True(t, ok)
			assert.Equal(t, tt.length, ri.Length)
			assert.Equal(t, tt.data, ri.Data)
			assert.Equal(t, uint64(1000+tt.length), ri.Data1)
		})
	}
}

func sb(t *testing.T, dev *gfs.Device) format.Superblock {
	t.Helper()
	s, err := gfs.ReadSuperblock(dev.Bytes())
	require.NoError(t, err)
	return s
}
