package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Bitmap_SetAndTest(t *testing.T) {
	buf := make([]byte, 4)
	require.NoError(t, Set(buf, 0, Used))
	require.NoError(t, Set(buf, 5, FreeMeta))
	require.NoError(t, Set(buf, 5, UsedMeta))

	assert.Equal(t, Used, Test(buf, 0))
	assert.Equal(t, Free, Test(buf, 1))
	assert.Equal(t, UsedMeta, Test(buf, 5))
	// block 5 lives in byte 1, bits 2-3
	assert.Equal(t, byte(0x0C), buf[1])
}

func Test_Bitmap_InvalidChange(t *testing.T) {
	buf := make([]byte, 1)
	require.ErrorIs(t, Set(buf, 0, UsedMeta), ErrInvalidChange)
	require.NoError(t, Set(buf, 0, Used))
	require.ErrorIs(t, Set(buf, 0, Used), ErrInvalidChange)
	require.ErrorIs(t, Set(buf, 0, FreeMeta), ErrInvalidChange)
	require.ErrorIs(t, Set(buf, 4, Used), ErrRange)
}

func Test_Bitmap_RoundTripRestoresBits(t *testing.T) {
	buf := []byte{0x00, 0x9C, 0x00, 0xFF}
	for blk := uint32(0); blk < 16; blk++ {
		orig := Test(buf, blk)
		snapshot := append([]byte(nil), buf...)

		var next State
		switch orig {
		case Free:
			next = Used
		case FreeMeta:
			next = UsedMeta
		default:
			continue
		}
		require.NoError(t, Set(buf, blk, next))
		require.NoError(t, Set(buf, blk, orig))
		require.Equal(t, snapshot, buf, "block %d", blk)
	}
}

func Test_Bitmap_Fit(t *testing.T) {
	buf := make([]byte, 4)
	for blk := uint32(0); blk < 10; blk++ {
		require.NoError(t, Set(buf, blk, Used))
	}
	got, ok := Fit(buf, 0, Free)
	require.True(t, ok)
	assert.Equal(t, uint32(10), got)

	got, ok = Fit(buf, 13, Free)
	require.True(t, ok)
	assert.Equal(t, uint32(13), got)

	_, ok = Fit(buf, 0, FreeMeta)
	assert.False(t, ok)

	_, ok = Fit(buf, 16, Free)
	assert.False(t, ok, "goal past the end finds nothing")
}

func Test_Bitmap_Count(t *testing.T) {
	buf := make([]byte, 2)
	require.NoError(t, Set(buf, 1, Used))
	require.NoError(t, Set(buf, 2, FreeMeta))
	require.NoError(t, Set(buf, 3, FreeMeta))
	require.NoError(t, Set(buf, 3, UsedMeta))
	c := Count(buf)
	assert.Equal(t, [4]uint32{5, 1, 1, 1}, c)
}
