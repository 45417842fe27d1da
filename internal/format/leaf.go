package format

import "fmt"

// Leaf is the header of a directory leaf block:
//
//	Offset  Size  Field
//	0x00    24    MetaHeader (type LF, format 600)
//	0x18    2     Depth         bits of hash this leaf is responsible for
//	0x1A    2     Entries       live directory entries
//	0x1C    4     DirentFormat  FormatDE
//	0x20    8     Next          next leaf in the overflow chain, 0 if none
//	0x28    64    (reserved)
type Leaf struct {
	Depth        uint16
	Entries      uint16
	DirentFormat uint32
	Next         uint64
}

const (
	LeafDepthOffset        = 0x18
	LeafEntriesOffset      = 0x1A
	LeafDirentFormatOffset = 0x1C
	LeafNextOffset         = 0x20
)

// DecodeLeaf decodes a leaf header, checking the metadata type.
func DecodeLeaf(b []byte) (Leaf, error) {
	if len(b) < LeafHeaderSize {
		return Leaf{}, fmt.Errorf("leaf: %w (have %d, need %d)", ErrTruncated, len(b), LeafHeaderSize)
	}
	if err := CheckMetaType(b, MetaTypeLF); err != nil {
		return Leaf{}, fmt.Errorf("leaf: %w", err)
	}
	return Leaf{
		Depth:        ReadU16(b, LeafDepthOffset),
		Entries:      ReadU16(b, LeafEntriesOffset),
		DirentFormat: ReadU32(b, LeafDirentFormatOffset),
		Next:         ReadU64(b, LeafNextOffset),
	}, nil
}

// EncodeLeaf writes the leaf header fields of lf into b without touching the
// meta header or the entries that follow.
func EncodeLeaf(b []byte, lf Leaf) {
	PutU16(b, LeafDepthOffset, lf.Depth)
	PutU16(b, LeafEntriesOffset, lf.Entries)
	PutU32(b, LeafDirentFormatOffset, lf.DirentFormat)
	PutU64(b, LeafNextOffset, lf.Next)
}

// InitLeaf turns b into an empty leaf block: meta header stamped, everything
// after it zeroed, dirent format set.
func InitLeaf(b []byte, depth uint16) {
	SetMetaType(b, MetaTypeLF, FormatLF)
	clear(b[MetaHeaderSize:])
	EncodeLeaf(b, Leaf{Depth: depth, DirentFormat: FormatDE})
}
