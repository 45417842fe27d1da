package format

import "fmt"

// Rindex describes one region in the region index file:
//
//	Offset  Size  Field
//	0x00    8     Addr      first block (the region header)
//	0x08    4     Length    header + bitmap blocks
//	0x0C    4     (pad)
//	0x10    8     Data1     first allocatable block
//	0x18    4     Data      number of allocatable blocks
//	0x1C    4     BitBytes  bitmap length in bytes
//	0x20    64    (reserved)
type Rindex struct {
	Addr     uint64
	Length   uint32
	Data1    uint64
	Data     uint32
	BitBytes uint32
}

const (
	riAddrOffset     = 0x00
	riLengthOffset   = 0x08
	riData1Offset    = 0x10
	riDataOffset     = 0x18
	riBitBytesOffset = 0x1C
)

// DecodeRindex decodes a region index entry.
func DecodeRindex(b []byte) (Rindex, error) {
	if len(b) < RindexSize {
		return Rindex{}, fmt.Errorf("rindex: %w (have %d, need %d)", ErrTruncated, len(b), RindexSize)
	}
	return Rindex{
		Addr:     ReadU64(b, riAddrOffset),
		Length:   ReadU32(b, riLengthOffset),
		Data1:    ReadU64(b, riData1Offset),
		Data:     ReadU32(b, riDataOffset),
		BitBytes: ReadU32(b, riBitBytesOffset),
	}, nil
}

// EncodeRindex writes ri into b, clearing the padding and reserved bytes.
func EncodeRindex(b []byte, ri Rindex) {
	clear(b[:RindexSize])
	PutU64(b, riAddrOffset, ri.Addr)
	PutU32(b, riLengthOffset, ri.Length)
	PutU64(b, riData1Offset, ri.Data1)
	PutU32(b, riDataOffset, ri.Data)
	PutU32(b, riBitBytesOffset, ri.BitBytes)
}

// Contains reports whether blk is one of the region's allocatable blocks.
func (ri Rindex) Contains(blk uint64) bool {
	return blk >= ri.Data1 && blk < ri.Data1+uint64(ri.Data)
}
