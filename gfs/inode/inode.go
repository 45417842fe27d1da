// Package inode holds the in-core form of a dinode: the decoded on-disk
// fields, the buffer they live in, the allocation goals and the running
// reservation of the operation that currently owns the inode.
package inode

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/internal/format"
)

var (
	// ErrFileTooBig is returned when a stream would need more blocks than
	// the dinode has pointers for.
	ErrFileTooBig = errors.New("inode: stream too large")
	// ErrNotDir is returned when a directory operation is attempted on a
	// dinode of another type.
	ErrNotDir = errors.New("inode: not a directory")
)

// Marker registers a modified buffer with the open transaction.
type Marker interface {
	AddBuffer(ctx context.Context, ref blockio.Ref, where string) error
}

// Alloc is the in-place reservation attached to an inode while an
// operation allocates on its behalf.
type Alloc struct {
	RequestedDinodes uint32
	RequestedMeta    uint32
	RequestedData    uint32

	// Reserved counts include the clump conversions the request implies.
	ReservedMeta uint32
	ReservedData uint32

	AllocedDinodes uint32
	AllocedMeta    uint32
	AllocedData    uint32

	// Region is the catalog index of the locked region, or -1.
	Region int
}

// NewAlloc returns an empty reservation record.
func NewAlloc(dinodes, meta, data uint32) *Alloc {
	return &Alloc{RequestedDinodes: dinodes, RequestedMeta: meta, RequestedData: data, Region: -1}
}

// Inode is an open dinode. Its buffer stays held until Close.
type Inode struct {
	Addr uint64
	Di   format.Dinode

	// LastRgAlloc is the header address of the region the last
	// reservation for this inode was satisfied from.
	LastRgAlloc uint64
	Alloc       *Alloc

	ref   blockio.Ref
	arena *blockio.Arena
	geo   gfs.Geometry
}

// Load reads and decodes the dinode at blk.
func Load(ctx context.Context, arena *blockio.Arena, geo gfs.Geometry, blk uint64) (*Inode, error) {
	ref, err := arena.Read(ctx, blk)
	if err != nil {
		return nil, err
	}
	di, err := format.DecodeDinode(arena.Data(ref))
	if err != nil {
		arena.Release(ref)
		return nil, fmt.Errorf("inode %d: %w", blk, err)
	}
	return &Inode{Addr: blk, Di: di, ref: ref, arena: arena, geo: geo}, nil
}

// Close releases the dinode buffer.
func (ip *Inode) Close() {
	if ip.ref != blockio.NoRef {
		ip.arena.Release(ip.ref)
		ip.ref = blockio.NoRef
	}
}

// Ref returns the handle of the dinode buffer.
func (ip *Inode) Ref() blockio.Ref { return ip.ref }

// Block returns the raw dinode block.
func (ip *Inode) Block() []byte { return ip.arena.Data(ip.ref) }

// Tail returns the bytes after the dinode header: stuffed content or block
// pointers.
func (ip *Inode) Tail() []byte { return ip.Block()[format.DinodeSize:] }

// Geometry returns the filesystem geometry the inode was loaded with.
func (ip *Inode) Geometry() gfs.Geometry { return ip.geo }

// Arena returns the buffer arena the inode lives in.
func (ip *Inode) Arena() *blockio.Arena { return ip.arena }

// Where names the inode in fault messages.
func (ip *Inode) Where() string { return fmt.Sprintf("inode %d", ip.Addr) }

// IsDir reports whether the dinode is a directory.
func (ip *Inode) IsDir() bool { return ip.Di.Type == format.FileDir }

// IsHashed reports whether a directory uses a hash table.
func (ip *Inode) IsHashed() bool { return ip.Di.Flags&format.DinodeFlagExHash != 0 }

// Sync encodes Di into the dinode buffer and adds it to the transaction.
func (ip *Inode) Sync(ctx context.Context, m Marker) error {
	format.EncodeDinode(ip.Block(), ip.Di)
	return m.AddBuffer(ctx, ip.ref, ip.Where())
}

// Refresh re-decodes Di from the buffer, e.g. after a rollback reloaded it.
func (ip *Inode) Refresh() error {
	di, err := format.DecodeDinode(ip.Block())
	if err != nil {
		return fmt.Errorf("%s: %w", ip.Where(), err)
	}
	ip.Di = di
	return nil
}
