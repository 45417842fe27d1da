package format

import "fmt"

// Dirent is the fixed header of a directory entry; the name bytes follow it.
//
//	Offset  Size  Field
//	0x00    16    Inum      zero formal number marks a deleted entry
//	0x10    4     Hash      FNV-1a of the name
//	0x14    2     RecLen    bytes to the next entry, 8-byte aligned
//	0x16    2     NameLen
//	0x18    2     Type      File* constant
//	0x1A    14    (reserved)
type Dirent struct {
	Inum    Inum
	Hash    uint32
	RecLen  uint16
	NameLen uint16
	Type    uint16
}

const (
	DirentInumOffset    = 0x00
	DirentHashOffset    = 0x10
	DirentRecLenOffset  = 0x14
	DirentNameLenOffset = 0x16
	DirentTypeOffset    = 0x18
)

// DecodeDirent decodes the entry header at the start of b.
func DecodeDirent(b []byte) (Dirent, error) {
	if len(b) < DirentHeaderSize {
		return Dirent{}, fmt.Errorf("dirent: %w (have %d, need %d)", ErrTruncated, len(b), DirentHeaderSize)
	}
	return Dirent{
		Inum:    DecodeInum(b[DirentInumOffset:]),
		Hash:    ReadU32(b, DirentHashOffset),
		RecLen:  ReadU16(b, DirentRecLenOffset),
		NameLen: ReadU16(b, DirentNameLenOffset),
		Type:    ReadU16(b, DirentTypeOffset),
	}, nil
}

// EncodeDirent writes the header fields of d at the start of b and clears
// the reserved bytes.
func EncodeDirent(b []byte, d Dirent) {
	clear(b[:DirentHeaderSize])
	EncodeInum(b[DirentInumOffset:], d.Inum)
	PutU32(b, DirentHashOffset, d.Hash)
	PutU16(b, DirentRecLenOffset, d.RecLen)
	PutU16(b, DirentNameLenOffset, d.NameLen)
	PutU16(b, DirentTypeOffset, d.Type)
}

// InitDirTail lays out the entries of an empty linear directory in tail:
// "." pointing at self and ".." at parent, the latter spanning the rest.
func InitDirTail(tail []byte, self, parent Inum) {
	dot := DirentSize(1)
	EncodeDirent(tail, Dirent{
		Inum: self, Hash: Hash([]byte(".")), RecLen: uint16(dot), NameLen: 1, Type: FileDir,
	})
	copy(tail[DirentHeaderSize:], ".")
	EncodeDirent(tail[dot:], Dirent{
		Inum: parent, Hash: Hash([]byte("..")), RecLen: uint16(len(tail) - dot), NameLen: 2, Type: FileDir,
	})
	copy(tail[dot+DirentHeaderSize:], "..")
}
