package format

// Inum is an inode reference: the formal inode number plus the block address
// of the dinode. A zero formal number marks a deleted directory entry.
type Inum struct {
	Formal uint64
	Addr   uint64
}

// IsZero reports whether the reference is empty.
func (n Inum) IsZero() bool { return n.Formal == 0 }

// DecodeInum reads an inum from the first 16 bytes of b.
func DecodeInum(b []byte) Inum {
	return Inum{Formal: ReadU64(b, 0), Addr: ReadU64(b, 8)}
}

// EncodeInum writes n into the first 16 bytes of b.
func EncodeInum(b []byte, n Inum) {
	PutU64(b, 0, n.Formal)
	PutU64(b, 8, n.Addr)
}
