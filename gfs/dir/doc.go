// Package dir implements the directory index: the mapping from entry names
// to inode references stored inside a directory's own blocks.
//
// # Overview
//
// A directory is in one of two states, recorded by the ExHash dinode flag:
//   - Linear: entries are packed directly into the dinode block after the
//     dinode header. New directories start here.
//   - Hashed: the dinode's content is a table of 2^depth leaf pointers,
//     indexed by the top depth bits of each name's hash. Leaves hold the
//     packed entries.
//
// The first insertion that does not fit a linear directory converts it to
// hashed. The conversion never runs backwards.
//
// # Entries
//
// Every entry is a 40-byte header followed by the name, padded so that the
// record length is a multiple of 8:
//
//	Inum (16) | Hash (4) | RecLen (2) | NameLen (2) | Type (2) | reserved (14) | name...
//
// Entries fill their block exactly: the last record length reaches the end
// of the block. A deleted entry is folded into its predecessor's record
// length; the first entry of a block has no predecessor and is left behind
// as a tombstone (zero formal inode number) that later insertions reuse.
//
// # Growth
//
// When a leaf has no room for a new entry:
//   - a leaf referenced by more than one table slot is split in two;
//   - otherwise the table is doubled, if it is below the maximum depth;
//   - otherwise a new leaf is appended to the leaf's overflow chain.
//
// After making room the insertion is retried from the top.
//
// # Reading
//
// Read presents entries in (hash, name length, name) order, resuming at a
// cursor equal to hash>>1 of the next entry to return. Entries whose cursors
// collide are returned together or not at all, so a cursor always names the
// start of a group. All leaves of an overflow chain are gathered and sorted
// as one unit.
//
// # Locking and transactions
//
// Callers hold the directory's inode lock exclusively for mutations and
// open a transaction on the context. Operations that grow the directory
// also need a reservation on the directory inode covering the metadata
// blocks they may allocate; AddAllocRequired and MaxAddBlocks size it.
package dir
