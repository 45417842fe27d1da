// Package format houses the encoders and decoders for the on-disk structures
// of the filesystem image: meta headers, the region index, region headers,
// dinodes, directory leaves and directory entries. All integers are stored
// big-endian. Sizes and field offsets are fixed by the format and must not
// change.
package format

// Magic is stored at the start of every metadata block.
const Magic uint32 = 0x01161970

// BasicBlockSize is the sector size used to locate the superblock.
const BasicBlockSize = 512

// SuperblockAddr is the superblock location in basic (512-byte) blocks.
const SuperblockAddr = 128

// Metadata block types (MetaHeader.Type).
const (
	MetaTypeNone uint32 = 0
	MetaTypeSB   uint32 = 1
	MetaTypeRG   uint32 = 2
	MetaTypeRB   uint32 = 3
	MetaTypeDI   uint32 = 4
	MetaTypeIN   uint32 = 5
	MetaTypeLF   uint32 = 6
	MetaTypeJD   uint32 = 7
)

// Metadata formats (MetaHeader.Format and payload format tags).
const (
	FormatSB    uint32 = 100
	FormatRG    uint32 = 200
	FormatRB    uint32 = 300
	FormatDI    uint32 = 400
	FormatIN    uint32 = 500
	FormatLF    uint32 = 600
	FormatJD    uint32 = 700
	FormatRI    uint32 = 1100
	FormatDE    uint32 = 1200
	FormatFS    uint32 = 1309
	FormatMulti uint32 = 1401
)

// Structure sizes in bytes.
const (
	MetaHeaderSize   = 24
	InumSize         = 16
	RindexSize       = 96
	RgrpHeaderSize   = 128
	DinodeSize       = 232
	LeafHeaderSize   = 104
	DirentHeaderSize = 40
	SuperblockSize   = 352
	LockNameLen      = 64
)

// Bitmap geometry: two bits per block, four blocks per byte.
const (
	BitsPerBlock   = 2
	BlocksPerByte  = 4
	BitMask        = 0x3
	DefaultClump   = 64
	DirMaxDepth    = 17
	MaxNameLen     = 255
	MaxMetaHeight  = 1
	DefaultMaxMHC  = 10000
	DefaultTryLock = 100
)

// File types stored in dinodes and directory entries.
const (
	FileNone uint16 = 0
	FileReg  uint16 = 1
	FileDir  uint16 = 2
	FileLnk  uint16 = 5
	FileBlk  uint16 = 7
	FileChr  uint16 = 8
	FileFIFO uint16 = 101
	FileSock uint16 = 102
)

// Dinode flags.
const (
	DinodeFlagJData  uint32 = 0x00000001
	DinodeFlagExHash uint32 = 0x00000002
	DinodeFlagUnused uint32 = 0x00000004
)

// Permission and type bits written into Dinode.Mode for new inodes.
const (
	ModeDir uint32 = 0o40755
	ModeReg uint32 = 0o100600
)
