package format

import (
	"bytes"
	"fmt"
)

// Superblock is the filesystem superblock, stored at SuperblockAddr basic
// blocks from the start of the device:
//
//	Offset  Size  Field
//	0x00    24    MetaHeader (type SB, format 100)
//	0x18    4     FSFormat
//	0x1C    4     MultihostFormat
//	0x20    4     Flags
//	0x24    4     BlockSize
//	0x28    4     BlockSizeShift
//	0x2C    4     SegSize
//	0x30    16    JindexDi
//	0x40    16    RindexDi
//	0x50    16    RootDi
//	0x60    64    LockProto
//	0xA0    64    LockTable
//	0xE0    16    QuotaDi
//	0xF0    16    LicenseDi
//	0x100   96    (reserved)
type Superblock struct {
	Header          MetaHeader
	FSFormat        uint32
	MultihostFormat uint32
	Flags           uint32
	BlockSize       uint32
	BlockSizeShift  uint32
	SegSize         uint32
	JindexDi        Inum
	RindexDi        Inum
	RootDi          Inum
	LockProto       string
	LockTable       string
	QuotaDi         Inum
	LicenseDi       Inum
}

const (
	sbFSFormatOffset   = 0x18
	sbMultihostOffset  = 0x1C
	sbFlagsOffset      = 0x20
	sbBsizeOffset      = 0x24
	sbBsizeShiftOffset = 0x28
	sbSegSizeOffset    = 0x2C
	sbJindexOffset     = 0x30
	sbRindexOffset     = 0x40
	sbRootOffset       = 0x50
	sbLockProtoOffset  = 0x60
	sbLockTableOffset  = 0xA0
	sbQuotaOffset      = 0xE0
	sbLicenseOffset    = 0xF0
)

// DecodeSuperblock decodes and sanity-checks a superblock.
func DecodeSuperblock(b []byte) (Superblock, error) {
	if len(b) < SuperblockSize {
		return Superblock{}, fmt.Errorf("superblock: %w (have %d, need %d)", ErrTruncated, len(b), SuperblockSize)
	}
	if err := CheckMetaType(b, MetaTypeSB); err != nil {
		return Superblock{}, fmt.Errorf("superblock: %w", err)
	}
	mh, _ := DecodeMetaHeader(b)
	sb := Superblock{
		Header:          mh,
		FSFormat:        ReadU32(b, sbFSFormatOffset),
		MultihostFormat: ReadU32(b, sbMultihostOffset),
		Flags:           ReadU32(b, sbFlagsOffset),
		BlockSize:       ReadU32(b, sbBsizeOffset),
		BlockSizeShift:  ReadU32(b, sbBsizeShiftOffset),
		SegSize:         ReadU32(b, sbSegSizeOffset),
		JindexDi:        DecodeInum(b[sbJindexOffset:]),
		RindexDi:        DecodeInum(b[sbRindexOffset:]),
		RootDi:          DecodeInum(b[sbRootOffset:]),
		LockProto:       cString(b[sbLockProtoOffset : sbLockProtoOffset+LockNameLen]),
		LockTable:       cString(b[sbLockTableOffset : sbLockTableOffset+LockNameLen]),
		QuotaDi:         DecodeInum(b[sbQuotaOffset:]),
		LicenseDi:       DecodeInum(b[sbLicenseOffset:]),
	}
	if sb.BlockSize < BasicBlockSize || sb.BlockSize&(sb.BlockSize-1) != 0 {
		return Superblock{}, fmt.Errorf("superblock: %w: block size %d", ErrBadGeometry, sb.BlockSize)
	}
	if 1<<sb.BlockSizeShift != sb.BlockSize {
		return Superblock{}, fmt.Errorf("superblock: %w: shift %d for block size %d",
			ErrBadGeometry, sb.BlockSizeShift, sb.BlockSize)
	}
	return sb, nil
}

// EncodeSuperblock writes sb into b.
func EncodeSuperblock(b []byte, sb Superblock) {
	clear(b[:SuperblockSize])
	EncodeMetaHeader(b, sb.Header)
	PutU32(b, sbFSFormatOffset, sb.FSFormat)
	PutU32(b, sbMultihostOffset, sb.MultihostFormat)
	PutU32(b, sbFlagsOffset, sb.Flags)
	PutU32(b, sbBsizeOffset, sb.BlockSize)
	PutU32(b, sbBsizeShiftOffset, sb.BlockSizeShift)
	PutU32(b, sbSegSizeOffset, sb.SegSize)
	EncodeInum(b[sbJindexOffset:], sb.JindexDi)
	EncodeInum(b[sbRindexOffset:], sb.RindexDi)
	EncodeInum(b[sbRootOffset:], sb.RootDi)
	copy(b[sbLockProtoOffset:sbLockProtoOffset+LockNameLen-1], sb.LockProto)
	copy(b[sbLockTableOffset:sbLockTableOffset+LockNameLen-1], sb.LockTable)
	EncodeInum(b[sbQuotaOffset:], sb.QuotaDi)
	EncodeInum(b[sbLicenseOffset:], sb.LicenseDi)
}

// SuperblockBlock returns the filesystem block number holding the superblock
// for the given block size.
func SuperblockBlock(bsize uint32) uint64 {
	return uint64(SuperblockAddr*BasicBlockSize) / uint64(bsize)
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
