package gfs

import (
	"fmt"

	"github.com/joshuapare/rgkit/internal/format"
)

// Geometry holds the sizes derived from the block size that the allocator
// and the directory code share.
type Geometry struct {
	BlockSize      uint32
	BlockSizeShift uint32
	// HashBlockSize is the unit the directory hash table is read and
	// doubled in: half a filesystem block.
	HashBlockSize uint32
	// HashPtrs is the number of table pointers in one hash block; its log2
	// is the depth a directory starts at when it becomes hashed.
	HashPtrs uint32
	// DiPtrs is the number of block pointers that fit after a dinode.
	DiPtrs uint32
	// JBlockSize is the payload of a journaled-data block.
	JBlockSize uint32
}

// NewGeometry derives the geometry for a block size.
func NewGeometry(bsize uint32) (Geometry, error) {
	if bsize < format.BasicBlockSize || bsize&(bsize-1) != 0 {
		return Geometry{}, fmt.Errorf("%w: block size %d", format.ErrBadGeometry, bsize)
	}
	var shift uint32
	for 1<<shift < bsize {
		shift++
	}
	g := Geometry{
		BlockSize:      bsize,
		BlockSizeShift: shift,
		HashBlockSize:  bsize / 2,
		HashPtrs:       bsize / 2 / 8,
		DiPtrs:         (bsize - format.DinodeSize) / 8,
		JBlockSize:     bsize - format.MetaHeaderSize,
	}
	return g, nil
}

// InitialDepth returns log2(HashPtrs), the depth of a freshly hashed directory.
func (g Geometry) InitialDepth() uint16 {
	var d uint16
	for x := g.HashPtrs; x > 1; x >>= 1 {
		d++
	}
	return d
}

// StuffedCapacity is how many bytes of file content fit in the dinode block.
func (g Geometry) StuffedCapacity() uint32 {
	return g.BlockSize - format.DinodeSize
}
