package inode

import (
	"context"
	"fmt"
	"io"

	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/internal/format"
)

// MetaAllocator hands out metadata blocks for stream growth.
type MetaAllocator interface {
	AllocMeta(ctx context.Context, ip *Inode) (uint64, error)
	NewMeta(ctx context.Context, blk uint64) (blockio.Ref, error)
}

// Stream is the byte content of a dinode. While it fits, content is stuffed
// into the dinode block after the header. Past that, the dinode holds direct
// pointers to journaled-data blocks, each carrying JBlockSize bytes after
// its meta header. Unwritten ranges read as zeros.
type Stream struct {
	ip     *Inode
	marker Marker
	alloc  MetaAllocator
}

// NewStream opens the content of ip. alloc may be nil for read-only use.
func NewStream(ip *Inode, m Marker, alloc MetaAllocator) *Stream {
	return &Stream{ip: ip, marker: m, alloc: alloc}
}

// Size returns the stream length in bytes.
func (s *Stream) Size() uint64 { return s.ip.Di.Size }

// MaxSize returns the largest size the stream can reach.
func (s *Stream) MaxSize() uint64 {
	g := s.ip.geo
	return uint64(g.DiPtrs) * uint64(g.JBlockSize)
}

// GrowthBlocks returns how many blocks writing up to size would allocate.
func (s *Stream) GrowthBlocks(size uint64) uint32 {
	g := s.ip.geo
	if s.ip.Di.Height == 0 {
		if size <= uint64(g.StuffedCapacity()) {
			return 0
		}
		return uint32(format.DivRoundUp(size, uint64(g.JBlockSize)))
	}
	n := uint32(0)
	want := format.DivRoundUp(size, uint64(g.JBlockSize))
	for i := uint64(0); i < want && i < uint64(g.DiPtrs); i++ {
		if s.ptr(i) == 0 {
			n++
		}
	}
	return n
}

func (s *Stream) ptr(i uint64) uint64 {
	return format.ReadU64(s.ip.Tail(), int(i*8))
}

func (s *Stream) setPtr(i, blk uint64) {
	format.PutU64(s.ip.Tail(), int(i*8), blk)
}

// ReadAt reads len(p) bytes at off. It returns io.EOF when the stream ends
// before p is filled.
func (s *Stream) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	size := int64(s.ip.Di.Size)
	if off >= size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), size-off)

	var n int
	if s.ip.Di.Height == 0 {
		n = copy(p[:want], s.ip.Tail()[off:])
	} else {
		jb := int64(s.ip.geo.JBlockSize)
		for int64(n) < want {
			pos := off + int64(n)
			idx, boff := uint64(pos/jb), pos%jb
			chunk := min(want-int64(n), jb-boff)
			dst := p[n : int64(n)+chunk]
			blk := s.ptr(idx)
			if blk == 0 {
				clear(dst)
			} else if err := s.readBlock(ctx, blk, boff, dst); err != nil {
				return n, err
			}
			n += int(chunk)
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Stream) readBlock(ctx context.Context, blk uint64, boff int64, dst []byte) error {
	a := s.ip.arena
	ref, err := a.Read(ctx, blk)
	if err != nil {
		return err
	}
	defer a.Release(ref)
	b := a.Data(ref)
	if err := format.CheckMetaType(b, format.MetaTypeJD); err != nil {
		return fmt.Errorf("%s: data block %d: %w", s.ip.Where(), blk, err)
	}
	copy(dst, b[format.MetaHeaderSize+boff:])
	return nil
}

// WriteAt writes p at off, growing the stream as needed. Every buffer it
// touches, the dinode included, is added to the transaction on ctx.
func (s *Stream) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	end := uint64(off) + uint64(len(p))
	if end > s.MaxSize() {
		return 0, fmt.Errorf("%w: %s needs %d bytes, limit %d", ErrFileTooBig, s.ip.Where(), end, s.MaxSize())
	}

	g := s.ip.geo
	if s.ip.Di.Height == 0 && end > uint64(g.StuffedCapacity()) {
		if err := s.unstuff(ctx); err != nil {
			return 0, err
		}
	}

	var n int
	if s.ip.Di.Height == 0 {
		n = copy(s.ip.Tail()[off:], p)
	} else {
		jb := int64(g.JBlockSize)
		for n < len(p) {
			pos := off + int64(n)
			idx, boff := uint64(pos/jb), pos%jb
			chunk := min(int64(len(p)-n), jb-boff)
			if err := s.writeBlock(ctx, idx, boff, p[n:int64(n)+chunk]); err != nil {
				return n, err
			}
			n += int(chunk)
		}
	}

	if end > s.ip.Di.Size {
		s.ip.Di.Size = end
	}
	return n, s.ip.Sync(ctx, s.marker)
}

func (s *Stream) writeBlock(ctx context.Context, idx uint64, boff int64, src []byte) error {
	a := s.ip.arena
	blk := s.ptr(idx)
	var ref blockio.Ref
	if blk == 0 {
		var err error
		if blk, ref, err = s.newBlock(ctx); err != nil {
			return err
		}
		s.setPtr(idx, blk)
	} else {
		var err error
		if ref, err = a.Read(ctx, blk); err != nil {
			return err
		}
		if err := format.CheckMetaType(a.Data(ref), format.MetaTypeJD); err != nil {
			a.Release(ref)
			return fmt.Errorf("%s: data block %d: %w", s.ip.Where(), blk, err)
		}
	}
	defer a.Release(ref)

	copy(a.Data(ref)[format.MetaHeaderSize+boff:], src)
	return s.marker.AddBuffer(ctx, ref, s.ip.Where())
}

func (s *Stream) newBlock(ctx context.Context) (uint64, blockio.Ref, error) {
	if s.alloc == nil {
		return 0, blockio.NoRef, fmt.Errorf("%s: stream is read-only", s.ip.Where())
	}
	blk, err := s.alloc.AllocMeta(ctx, s.ip)
	if err != nil {
		return 0, blockio.NoRef, err
	}
	ref, err := s.alloc.NewMeta(ctx, blk)
	if err != nil {
		return 0, blockio.NoRef, err
	}
	b := s.ip.arena.Data(ref)
	format.SetMetaType(b, format.MetaTypeJD, format.FormatJD)
	clear(b[format.MetaHeaderSize:])
	s.ip.Di.Blocks++
	return blk, ref, nil
}

// unstuff moves stuffed content into a journaled-data block and switches
// the dinode to direct pointers.
func (s *Stream) unstuff(ctx context.Context) error {
	tail := s.ip.Tail()
	size := s.ip.Di.Size
	var first uint64
	if size > 0 {
		blk, ref, err := s.newBlock(ctx)
		if err != nil {
			return err
		}
		a := s.ip.arena
		copy(a.Data(ref)[format.MetaHeaderSize:], tail[:size])
		err = s.marker.AddBuffer(ctx, ref, s.ip.Where())
		a.Release(ref)
		if err != nil {
			return err
		}
		first = blk
	}
	clear(tail)
	s.ip.Di.Height = 1
	if first != 0 {
		s.setPtr(0, first)
	}
	return nil
}

// Blocks returns the addresses of the stream's data blocks in order,
// skipping holes.
func (s *Stream) Blocks() []uint64 {
	if s.ip.Di.Height == 0 {
		return nil
	}
	var out []uint64
	for i := uint64(0); i < uint64(s.ip.geo.DiPtrs); i++ {
		if blk := s.ptr(i); blk != 0 {
			out = append(out, blk)
		}
	}
	return out
}
