package gfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rgkit/internal/format"
)

func TestGeometry_4K(t *testing.T) {
	g, err := NewGeometry(4096)
	require.NoError(t, err)
	require.Equal(t, uint32(12), g.BlockSizeShift)
	require.Equal(t, uint32(2048), g.HashBlockSize)
	require.Equal(t, uint32(256), g.HashPtrs)
	require.Equal(t, uint16(8), g.InitialDepth())
	require.Equal(t, uint32(483), g.DiPtrs)
	require.Equal(t, uint32(4072), g.JBlockSize)
}

func TestGeometry_512(t *testing.T) {
	g, err := NewGeometry(512)
	require.NoError(t, err)
	require.Equal(t, uint32(32), g.HashPtrs)
	require.Equal(t, uint16(5), g.InitialDepth())
	require.Equal(t, uint32(280), g.StuffedCapacity())
}

func TestGeometry_RejectsOddSizes(t *testing.T) {
	_, err := NewGeometry(1000)
	require.True(t, errors.Is(err, format.ErrBadGeometry))
	_, err = NewGeometry(256)
	require.Error(t, err)
}

func TestDevice_BlockAccess(t *testing.T) {
	dev := NewMem(make([]byte, 4*512), 512)
	require.Equal(t, uint64(4), dev.Blocks())
	require.Equal(t, -1, dev.FD())

	p := make([]byte, 512)
	p[0], p[511] = 0xAA, 0xBB
	require.NoError(t, dev.WriteBlock(2, p))

	got := make([]byte, 512)
	require.NoError(t, dev.ReadBlock(2, got))
	require.Equal(t, p, got)
	require.Equal(t, byte(0xAA), dev.Bytes()[1024])

	_, err := dev.Block(4)
	require.ErrorIs(t, err, ErrBlockRange)

	require.NoError(t, dev.Close())
	_, err = dev.Block(0)
	require.ErrorIs(t, err, ErrClosed)
}
