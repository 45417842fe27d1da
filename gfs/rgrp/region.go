package rgrp

import (
	"context"
	"fmt"
	"sync"

	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/internal/format"
)

// BitDesc locates one block's share of a region bitmap.
type BitDesc struct {
	Offset uint32 // byte offset of the bitmap within the block
	Start  uint32 // first bitmap byte held by this block
	Len    uint32 // bitmap bytes held by this block
}

// Region is the in-core descriptor of one region.
type Region struct {
	Index int
	RI    format.Rindex
	Bits  []BitDesc

	// Allocation goals, relative to RI.Data1. Only touched under the
	// region's exclusive lock.
	lastAllocData uint32
	lastAllocMeta uint32

	mu   sync.Mutex
	excl *Lease
}

// Addr returns the block number of the region header.
func (r *Region) Addr() uint64 { return r.RI.Addr }

// Where names the region in fault messages.
func (r *Region) Where() string { return fmt.Sprintf("rgrp %d", r.RI.Addr) }

// Contains reports whether blk is one of the region's allocatable blocks.
func (r *Region) Contains(blk uint64) bool { return r.RI.Contains(blk) }

// Exclusive returns the lease this node holds exclusively, or nil.
func (r *Region) Exclusive() *Lease {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.excl
}

// LastAlloc returns the data and metadata allocation goals.
func (r *Region) LastAlloc() (data, meta uint32) {
	return r.lastAllocData, r.lastAllocMeta
}

// bitIndex returns the bitmap block holding rel, a region-relative block.
func (r *Region) bitIndex(rel uint32) int {
	for i, b := range r.Bits {
		if rel < (b.Start+b.Len)*format.BlocksPerByte {
			return i
		}
	}
	return -1
}

// computeBitDescs lays the bitmap of ri out over its header and bitmap
// blocks. The header block holds the bitmap after the region header; the
// others after a meta header.
func computeBitDescs(ri format.Rindex, bsize uint32) ([]BitDesc, error) {
	length := ri.Length
	if length == 0 {
		return nil, fmt.Errorf("zero-length region")
	}
	bits := make([]BitDesc, length)
	left := ri.BitBytes

	for x := uint32(0); x < length; x++ {
		var n uint32
		switch {
		case length == 1:
			n = left
			bits[x] = BitDesc{Offset: format.RgrpHeaderSize, Start: 0, Len: n}
		case x == 0:
			n = bsize - format.RgrpHeaderSize
			bits[x] = BitDesc{Offset: format.RgrpHeaderSize, Start: 0, Len: n}
		case x+1 == length:
			n = left
			bits[x] = BitDesc{Offset: format.MetaHeaderSize, Start: ri.BitBytes - left, Len: n}
		default:
			n = bsize - format.MetaHeaderSize
			bits[x] = BitDesc{Offset: format.MetaHeaderSize, Start: ri.BitBytes - left, Len: n}
		}
		if n > left {
			return nil, fmt.Errorf("bitmap of %d bytes does not fill %d blocks", ri.BitBytes, length)
		}
		if bits[x].Offset+n > bsize {
			return nil, fmt.Errorf("bitmap block %d overflows: %d bytes at %d", x, n, bits[x].Offset)
		}
		left -= n
	}

	last := bits[length-1]
	if (last.Start+last.Len)*format.BlocksPerByte != ri.Data {
		return nil, fmt.Errorf("bitmap covers %d blocks, region has %d (start=%d len=%d offset=%d)",
			(last.Start+last.Len)*format.BlocksPerByte, ri.Data, last.Start, last.Len, last.Offset)
	}
	return bits, nil
}

// Lease is a held region lock together with the region's header and
// bitmap buffers. Unlock releases both and is safe to call more than once.
type Lease struct {
	rgd    *Region
	arena  *blockio.Arena
	holder *glock.Holder
	mode   glock.Mode
	bh     []blockio.Ref
	once   sync.Once
}

// Region returns the leased region.
func (l *Lease) Region() *Region { return l.rgd }

// Mode returns the lock mode the lease was granted in.
func (l *Lease) Mode() glock.Mode { return l.mode }

// Header decodes the region header from the leased buffer. The buffer is
// the only copy of the counters, so a transaction rollback that reloads it
// is reflected here.
func (l *Lease) Header() format.RgrpHeader {
	h, _ := format.DecodeRgrpHeader(l.arena.Data(l.bh[0]))
	return h
}

// HeaderRef returns the handle of the header buffer.
func (l *Lease) HeaderRef() blockio.Ref { return l.bh[0] }

func (l *Lease) bitmap(i int) []byte {
	b := l.rgd.Bits[i]
	return l.arena.Data(l.bh[i])[b.Offset : b.Offset+b.Len]
}

// Unlock drops the buffers and the lock.
func (l *Lease) Unlock() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if l.mode == glock.Exclusive {
			l.rgd.mu.Lock()
			if l.rgd.excl == l {
				l.rgd.excl = nil
			}
			l.rgd.mu.Unlock()
		}
		for _, r := range l.bh {
			l.arena.Release(r)
		}
		l.holder.Unlock()
	})
}

// readBuffers loads the header and bitmap blocks of the leased region.
func (l *Lease) readBuffers(ctx context.Context) error {
	ri := l.rgd.RI
	l.bh = make([]blockio.Ref, 0, ri.Length)
	for x := uint32(0); x < ri.Length; x++ {
		ref, err := l.arena.Read(ctx, ri.Addr+uint64(x))
		if err != nil {
			return err
		}
		l.bh = append(l.bh, ref)
		want := format.MetaTypeRB
		if x == 0 {
			want = format.MetaTypeRG
		}
		if err := format.CheckMetaType(l.arena.Data(ref), want); err != nil {
			return fmt.Errorf("block %d: %w", ri.Addr+uint64(x), err)
		}
	}
	return nil
}
