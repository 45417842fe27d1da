package format

import "fmt"

// RgrpHeader is the region header, stored in the first block of every region
// right before the start of the allocation bitmap:
//
//	Offset  Size  Field
//	0x00    24    MetaHeader (type RG, format 200)
//	0x18    4     Flags
//	0x1C    4     Free          free data blocks
//	0x20    4     UsedDinodes   dinodes in use
//	0x24    4     FreeDinodes   unused dinodes (legacy chain)
//	0x28    16    FreeDiList    head of the legacy unused-dinode chain
//	0x38    4     UsedMeta      metadata blocks in use
//	0x3C    4     FreeMeta      metadata blocks free
//	0x40    64    (reserved)
type RgrpHeader struct {
	Header      MetaHeader
	Flags       uint32
	Free        uint32
	UsedDinodes uint32
	FreeDinodes uint32
	FreeDiList  Inum
	UsedMeta    uint32
	FreeMeta    uint32
}

const (
	rgFlagsOffset      = 0x18
	rgFreeOffset       = 0x1C
	rgUsedDiOffset     = 0x20
	rgFreeDiOffset     = 0x24
	rgFreeDiListOffset = 0x28
	rgUsedMetaOffset   = 0x38
	rgFreeMetaOffset   = 0x3C
)

// DecodeRgrpHeader decodes a region header block.
func DecodeRgrpHeader(b []byte) (RgrpHeader, error) {
	if len(b) < RgrpHeaderSize {
		return RgrpHeader{}, fmt.Errorf("rgrp: %w (have %d, need %d)", ErrTruncated, len(b), RgrpHeaderSize)
	}
	if err := CheckMetaType(b, MetaTypeRG); err != nil {
		return RgrpHeader{}, fmt.Errorf("rgrp: %w", err)
	}
	mh, _ := DecodeMetaHeader(b)
	return RgrpHeader{
		Header:      mh,
		Flags:       ReadU32(b, rgFlagsOffset),
		Free:        ReadU32(b, rgFreeOffset),
		UsedDinodes: ReadU32(b, rgUsedDiOffset),
		FreeDinodes: ReadU32(b, rgFreeDiOffset),
		FreeDiList:  DecodeInum(b[rgFreeDiListOffset:]),
		UsedMeta:    ReadU32(b, rgUsedMetaOffset),
		FreeMeta:    ReadU32(b, rgFreeMetaOffset),
	}, nil
}

// EncodeRgrpCounters writes the counter fields of h into b, leaving the meta
// header untouched.
func EncodeRgrpCounters(b []byte, h RgrpHeader) {
	PutU32(b, rgFlagsOffset, h.Flags)
	PutU32(b, rgFreeOffset, h.Free)
	PutU32(b, rgUsedDiOffset, h.UsedDinodes)
	PutU32(b, rgFreeDiOffset, h.FreeDinodes)
	EncodeInum(b[rgFreeDiListOffset:], h.FreeDiList)
	PutU32(b, rgUsedMetaOffset, h.UsedMeta)
	PutU32(b, rgFreeMetaOffset, h.FreeMeta)
}

// EncodeRgrpHeader writes the full header, including its meta header.
func EncodeRgrpHeader(b []byte, h RgrpHeader) {
	clear(b[:RgrpHeaderSize])
	EncodeMetaHeader(b, h.Header)
	EncodeRgrpCounters(b, h)
}
