package format

import "fmt"

// Dinode is the on-disk inode. Only the fields the space manager and the
// directory index use are interpreted; the rest are carried through.
//
//	Offset  Size  Field
//	0x00    24    MetaHeader (type DI, format 400)
//	0x18    16    Num
//	0x28    4     Mode
//	0x2C    4     UID
//	0x30    4     GID
//	0x34    4     Nlink
//	0x38    8     Size
//	0x40    8     Blocks
//	0x48    8     Atime
//	0x50    8     Mtime
//	0x58    8     Ctime
//	0x60    4     Major
//	0x64    4     Minor
//	0x68    8     Rgrp          region holding the dinode
//	0x70    8     GoalRgrp      region to allocate from next
//	0x78    4     GoalDblk      data goal, relative to GoalRgrp
//	0x7C    4     GoalMblk      metadata goal, relative to GoalRgrp
//	0x80    4     Flags
//	0x84    4     PayloadFormat
//	0x88    2     Type
//	0x8A    2     Height        0 = stuffed
//	0x8C    4     Incarn
//	0x90    2     (pad)
//	0x92    2     Depth         directory hash table depth
//	0x94    4     Entries       directory entry count
//	0x98    16    NextUnused
//	0xA8    8     EAttr
//	0xB0    56    (reserved)
type Dinode struct {
	Header        MetaHeader
	Num           Inum
	Mode          uint32
	UID           uint32
	GID           uint32
	Nlink         uint32
	Size          uint64
	Blocks        uint64
	Atime         int64
	Mtime         int64
	Ctime         int64
	Major         uint32
	Minor         uint32
	Rgrp          uint64
	GoalRgrp      uint64
	GoalDblk      uint32
	GoalMblk      uint32
	Flags         uint32
	PayloadFormat uint32
	Type          uint16
	Height        uint16
	Incarn        uint32
	Depth         uint16
	Entries       uint32
	NextUnused    Inum
	EAttr         uint64
}

const (
	diNumOffset           = 0x18
	diModeOffset          = 0x28
	diUIDOffset           = 0x2C
	diGIDOffset           = 0x30
	diNlinkOffset         = 0x34
	diSizeOffset          = 0x38
	diBlocksOffset        = 0x40
	diAtimeOffset         = 0x48
	diMtimeOffset         = 0x50
	diCtimeOffset         = 0x58
	diMajorOffset         = 0x60
	diMinorOffset         = 0x64
	diRgrpOffset          = 0x68
	diGoalRgrpOffset      = 0x70
	diGoalDblkOffset      = 0x78
	diGoalMblkOffset      = 0x7C
	diFlagsOffset         = 0x80
	diPayloadFormatOffset = 0x84
	diTypeOffset          = 0x88
	diHeightOffset        = 0x8A
	diIncarnOffset        = 0x8C
	diDepthOffset         = 0x92
	diEntriesOffset       = 0x94
	diNextUnusedOffset    = 0x98
	diEAttrOffset         = 0xA8
)

// DecodeDinode decodes a dinode block.
func DecodeDinode(b []byte) (Dinode, error) {
	if len(b) < DinodeSize {
		return Dinode{}, fmt.Errorf("dinode: %w (have %d, need %d)", ErrTruncated, len(b), DinodeSize)
	}
	if err := CheckMetaType(b, MetaTypeDI); err != nil {
		return Dinode{}, fmt.Errorf("dinode: %w", err)
	}
	mh, _ := DecodeMetaHeader(b)
	return Dinode{
		Header:        mh,
		Num:           DecodeInum(b[diNumOffset:]),
		Mode:          ReadU32(b, diModeOffset),
		UID:           ReadU32(b, diUIDOffset),
		GID:           ReadU32(b, diGIDOffset),
		Nlink:         ReadU32(b, diNlinkOffset),
		Size:          ReadU64(b, diSizeOffset),
		Blocks:        ReadU64(b, diBlocksOffset),
		Atime:         ReadI64(b, diAtimeOffset),
		Mtime:         ReadI64(b, diMtimeOffset),
		Ctime:         ReadI64(b, diCtimeOffset),
		Major:         ReadU32(b, diMajorOffset),
		Minor:         ReadU32(b, diMinorOffset),
		Rgrp:          ReadU64(b, diRgrpOffset),
		GoalRgrp:      ReadU64(b, diGoalRgrpOffset),
		GoalDblk:      ReadU32(b, diGoalDblkOffset),
		GoalMblk:      ReadU32(b, diGoalMblkOffset),
		Flags:         ReadU32(b, diFlagsOffset),
		PayloadFormat: ReadU32(b, diPayloadFormatOffset),
		Type:          ReadU16(b, diTypeOffset),
		Height:        ReadU16(b, diHeightOffset),
		Incarn:        ReadU32(b, diIncarnOffset),
		Depth:         ReadU16(b, diDepthOffset),
		Entries:       ReadU32(b, diEntriesOffset),
		NextUnused:    DecodeInum(b[diNextUnusedOffset:]),
		EAttr:         ReadU64(b, diEAttrOffset),
	}, nil
}

// EncodeDinode writes di into the first DinodeSize bytes of b. Bytes after
// the dinode (stuffed data or block pointers) are not touched.
func EncodeDinode(b []byte, di Dinode) {
	clear(b[:DinodeSize])
	EncodeMetaHeader(b, di.Header)
	EncodeInum(b[diNumOffset:], di.Num)
	PutU32(b, diModeOffset, di.Mode)
	PutU32(b, diUIDOffset, di.UID)
	PutU32(b, diGIDOffset, di.GID)
	PutU32(b, diNlinkOffset, di.Nlink)
	PutU64(b, diSizeOffset, di.Size)
	PutU64(b, diBlocksOffset, di.Blocks)
	PutI64(b, diAtimeOffset, di.Atime)
	PutI64(b, diMtimeOffset, di.Mtime)
	PutI64(b, diCtimeOffset, di.Ctime)
	PutU32(b, diMajorOffset, di.Major)
	PutU32(b, diMinorOffset, di.Minor)
	PutU64(b, diRgrpOffset, di.Rgrp)
	PutU64(b, diGoalRgrpOffset, di.GoalRgrp)
	PutU32(b, diGoalDblkOffset, di.GoalDblk)
	PutU32(b, diGoalMblkOffset, di.GoalMblk)
	PutU32(b, diFlagsOffset, di.Flags)
	PutU32(b, diPayloadFormatOffset, di.PayloadFormat)
	PutU16(b, diTypeOffset, di.Type)
	PutU16(b, diHeightOffset, di.Height)
	PutU32(b, diIncarnOffset, di.Incarn)
	PutU16(b, diDepthOffset, di.Depth)
	PutU32(b, diEntriesOffset, di.Entries)
	EncodeInum(b[diNextUnusedOffset:], di.NextUnused)
	PutU64(b, diEAttrOffset, di.EAttr)
}

// DinodeEntries reads the directory entry count straight from a dinode block.
func DinodeEntries(b []byte) uint32 {
	return ReadU32(b, diEntriesOffset)
}

// SetDinodeType overwrites the file type of a dinode block in place.
func SetDinodeType(b []byte, typ uint16) {
	PutU16(b, diTypeOffset, typ)
}
