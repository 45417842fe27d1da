package format

import "hash/fnv"

// Hash returns the 32-bit FNV-1a hash of a directory entry name.
func Hash(name []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(name)
	return h.Sum32()
}

// HashToOffset converts a name hash into a directory read cursor. The low bit
// of the hash is dropped so the cursor fits the same space as a signed file
// offset; entries whose hashes differ only in that bit share a cursor.
func HashToOffset(h uint32) uint64 {
	return uint64(h >> 1)
}

// OffsetToHash is the inverse of HashToOffset, with the low bit cleared.
func OffsetToHash(off uint64) uint32 {
	return uint32(off << 1)
}
