// Package gfs provides access to a filesystem image: the block device it
// lives on, the superblock, and the geometry derived from the block size.
//
// # Overview
//
// The image is a flat array of fixed-size blocks. Block 0 onwards is free for
// the formatter; the superblock lives at byte offset 64 KiB (128 basic
// 512-byte sectors), followed by the special inodes (region index and root
// directory) and then the resource groups ("regions") that hold all
// allocatable space.
//
// A Device is either a memory-mapped file (Open) or a plain byte slice
// (NewMem). Higher layers never touch the bytes directly; they go through the
// blockio arena, which copies blocks in and out with ReadBlock and WriteBlock
// and marks them dirty through the transaction manager.
//
// # Sub-packages
//
//   - bitmap: the 2-bit-per-block allocation bitmap codec
//   - blockio: the block buffer arena
//   - dirty, tx: dirty range tracking and transactions
//   - glock: the cluster lock collaborator
//   - quota: the quota collaborator
//   - consist: the filesystem-wide consistency fault state
//   - rgrp: the region catalog and the bitmap allocator
//   - place: the placement and reservation engine
//   - inode: in-core inodes and their byte streams
//   - dir: the extendible-hash directory index
//   - mount: the filesystem instance tying everything together
//   - mkfs: the formatter
package gfs
