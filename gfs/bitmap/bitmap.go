// Package bitmap encodes and searches the region allocation bitmap: two bits
// per block, four blocks per byte, lowest bits first.
package bitmap

import (
	"errors"
	"fmt"

	"github.com/joshuapare/rgkit/internal/format"
)

// State is the allocation state of one block.
type State uint8

const (
	Free     State = 0
	Used     State = 1
	FreeMeta State = 2
	UsedMeta State = 3
)

var stateNames = [4]string{"free", "used", "free-meta", "used-meta"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

var (
	// ErrRange indicates a block index past the end of the bitmap buffer.
	ErrRange = errors.New("bitmap: block out of range")
	// ErrInvalidChange indicates a state transition the allocator never makes.
	ErrInvalidChange = errors.New("bitmap: invalid state change")
)

// validChange[new*4+cur] lists the transitions the allocator performs:
// anything may be freed back to data, data is only ever allocated from free,
// free-meta comes from free data (clump) or used metadata (free), and used
// metadata comes only from free-meta.
var validChange = [16]bool{
	/* to Free     */ false, true, true, true,
	/* to Used     */ true, false, false, false,
	/* to FreeMeta */ true, false, false, true,
	/* to UsedMeta */ false, false, true, false,
}

// ValidChange reports whether a block may move from cur to next.
func ValidChange(cur, next State) bool {
	return validChange[int(next&format.BitMask)*4+int(cur&format.BitMask)]
}

// Test returns the state of block blk.
func Test(buf []byte, blk uint32) State {
	byteIdx := blk / format.BlocksPerByte
	if int(byteIdx) >= len(buf) {
		return Free
	}
	bit := (blk % format.BlocksPerByte) * format.BitsPerBlock
	return State((buf[byteIdx] >> bit) & format.BitMask)
}

// Set moves block blk to state next. The old state must allow the change.
func Set(buf []byte, blk uint32, next State) error {
	byteIdx := blk / format.BlocksPerByte
	if int(byteIdx) >= len(buf) {
		return fmt.Errorf("%w: block %d, bitmap covers %d", ErrRange, blk, len(buf)*format.BlocksPerByte)
	}
	bit := (blk % format.BlocksPerByte) * format.BitsPerBlock
	cur := State((buf[byteIdx] >> bit) & format.BitMask)
	if !ValidChange(cur, next) {
		return fmt.Errorf("%w: block %d %s -> %s", ErrInvalidChange, blk, cur, next)
	}
	buf[byteIdx] &^= format.BitMask << bit
	buf[byteIdx] |= byte(next) << bit
	return nil
}

// Fit returns the first block at or after goal whose state is st. It does
// not wrap; callers that want wraparound restart at zero themselves.
func Fit(buf []byte, goal uint32, st State) (uint32, bool) {
	byteIdx := goal / format.BlocksPerByte
	bit := (goal % format.BlocksPerByte) * format.BitsPerBlock
	blk := goal - goal%format.BlocksPerByte

	for ; int(byteIdx) < len(buf); byteIdx++ {
		b := buf[byteIdx]
		for ; bit < 8; bit += format.BitsPerBlock {
			if State((b>>bit)&format.BitMask) == st {
				return blk + bit/format.BitsPerBlock, true
			}
		}
		bit = 0
		blk += format.BlocksPerByte
	}
	return 0, false
}

// Count returns the number of blocks in each state.
func Count(buf []byte) [4]uint32 {
	var counts [4]uint32
	for _, b := range buf {
		counts[b&format.BitMask]++
		counts[(b>>2)&format.BitMask]++
		counts[(b>>4)&format.BitMask]++
		counts[(b>>6)&format.BitMask]++
	}
	return counts
}
