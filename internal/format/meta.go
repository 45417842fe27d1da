package format

import "fmt"

// MetaHeader prefixes every metadata block:
//
//	Offset  Size  Field
//	0x00    4     Magic (0x01161970)
//	0x04    4     Type (MetaType*)
//	0x08    8     Generation
//	0x10    4     Format (Format*)
//	0x14    4     Incarnation
type MetaHeader struct {
	Magic      uint32
	Type       uint32
	Generation uint64
	Format     uint32
	Incarn     uint32
}

const (
	mhMagicOffset      = 0x00
	mhTypeOffset       = 0x04
	mhGenerationOffset = 0x08
	mhFormatOffset     = 0x10
	mhIncarnOffset     = 0x14
)

// DecodeMetaHeader decodes the header at the start of b.
func DecodeMetaHeader(b []byte) (MetaHeader, error) {
	if len(b) < MetaHeaderSize {
		return MetaHeader{}, fmt.Errorf("meta header: %w (have %d, need %d)", ErrTruncated, len(b), MetaHeaderSize)
	}
	return MetaHeader{
		Magic:      ReadU32(b, mhMagicOffset),
		Type:       ReadU32(b, mhTypeOffset),
		Generation: ReadU64(b, mhGenerationOffset),
		Format:     ReadU32(b, mhFormatOffset),
		Incarn:     ReadU32(b, mhIncarnOffset),
	}, nil
}

// EncodeMetaHeader writes h at the start of b. b must be at least MetaHeaderSize long.
func EncodeMetaHeader(b []byte, h MetaHeader) {
	PutU32(b, mhMagicOffset, h.Magic)
	PutU32(b, mhTypeOffset, h.Type)
	PutU64(b, mhGenerationOffset, h.Generation)
	PutU32(b, mhFormatOffset, h.Format)
	PutU32(b, mhIncarnOffset, h.Incarn)
}

// SetMetaType stamps the magic, type and format of a metadata block without
// touching its generation number.
func SetMetaType(b []byte, typ, fmtTag uint32) {
	PutU32(b, mhMagicOffset, Magic)
	PutU32(b, mhTypeOffset, typ)
	PutU32(b, mhFormatOffset, fmtTag)
}

// MetaGeneration returns the generation number of a metadata block.
func MetaGeneration(b []byte) uint64 {
	return ReadU64(b, mhGenerationOffset)
}

// SetMetaGeneration overwrites the generation number of a metadata block.
func SetMetaGeneration(b []byte, gen uint64) {
	PutU64(b, mhGenerationOffset, gen)
}

// CheckMeta verifies that b starts with the magic number.
func CheckMeta(b []byte) error {
	if len(b) < MetaHeaderSize {
		return fmt.Errorf("meta header: %w", ErrTruncated)
	}
	if m := ReadU32(b, mhMagicOffset); m != Magic {
		return fmt.Errorf("meta header: %w (magic 0x%08x)", ErrSignatureMismatch, m)
	}
	return nil
}

// CheckMetaType verifies the magic number and the metadata type of b.
func CheckMetaType(b []byte, typ uint32) error {
	if err := CheckMeta(b); err != nil {
		return err
	}
	if got := ReadU32(b, mhTypeOffset); got != typ {
		return fmt.Errorf("meta header: %w (got %d, want %d)", ErrWrongType, got, typ)
	}
	return nil
}

// MetaType returns the metadata type of b, or MetaTypeNone if b is too short.
func MetaType(b []byte) uint32 {
	if len(b) < MetaHeaderSize {
		return MetaTypeNone
	}
	return ReadU32(b, mhTypeOffset)
}
