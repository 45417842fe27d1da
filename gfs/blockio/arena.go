// Package blockio caches filesystem blocks for the duration of the
// operations that use them.
//
// Buffers live in an Arena and are addressed by Ref, a small integer handle.
// Regions, inodes and transactions hold Refs rather than pointers. A buffer
// stays cached while it is held or dirty; once both drop to zero it is
// evicted, so the next Read observes whatever another node committed.
package blockio

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Ref is a handle to a cached buffer.
type Ref int32

// NoRef is the zero handle value callers use for "no buffer".
const NoRef Ref = -1

var (
	// ErrBadRef is returned for a handle that does not name a live buffer.
	ErrBadRef = errors.New("blockio: invalid buffer reference")
)

// Device is the block store behind an Arena.
type Device interface {
	ReadBlock(n uint64, p []byte) error
	WriteBlock(n uint64, p []byte) error
	BlockSize() int
	BlockOffset(n uint64) int64
}

type buffer struct {
	blkno uint64
	data  []byte
	refs  int
	dirty bool
	live  bool
}

// Arena owns the cached buffers of one filesystem instance.
type Arena struct {
	mu    sync.Mutex
	dev   Device
	bufs  []buffer
	byBlk map[uint64]Ref
	free  []Ref
}

// NewArena creates an empty arena over dev.
func NewArena(dev Device) *Arena {
	return &Arena{dev: dev, byBlk: make(map[uint64]Ref)}
}

// Read returns a held buffer with the contents of block blk, reading it from
// the device unless it is already cached.
func (a *Arena) Read(ctx context.Context, blk uint64) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return NoRef, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.byBlk[blk]; ok {
		a.bufs[r].refs++
		return r, nil
	}
	r := a.slot(blk)
	if err := a.dev.ReadBlock(blk, a.bufs[r].data); err != nil {
		a.drop(r)
		return NoRef, fmt.Errorf("read block %d: %w", blk, err)
	}
	return r, nil
}

// New returns a held, zero-filled buffer for blk without reading the device.
// A cached copy of blk is cleared in place.
func (a *Arena) New(blk uint64) Ref {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.byBlk[blk]; ok {
		clear(a.bufs[r].data)
		a.bufs[r].refs++
		return r
	}
	return a.slot(blk)
}

// slot allocates a held buffer for blk. Caller holds a.mu.
func (a *Arena) slot(blk uint64) Ref {
	var r Ref
	if n := len(a.free); n > 0 {
		r = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.bufs = append(a.bufs, buffer{})
		r = Ref(len(a.bufs) - 1)
	}
	b := &a.bufs[r]
	if cap(b.data) >= a.dev.BlockSize() {
		b.data = b.data[:a.dev.BlockSize()]
		clear(b.data)
	} else {
		b.data = make([]byte, a.dev.BlockSize())
	}
	b.blkno = blk
	b.refs = 1
	b.dirty = false
	b.live = true
	a.byBlk[blk] = r
	return r
}

// drop evicts r. Caller holds a.mu.
func (a *Arena) drop(r Ref) {
	b := &a.bufs[r]
	delete(a.byBlk, b.blkno)
	b.live = false
	b.refs = 0
	b.dirty = false
	a.free = append(a.free, r)
}

func (a *Arena) get(r Ref) (*buffer, error) {
	if r < 0 || int(r) >= len(a.bufs) || !a.bufs[r].live {
		return nil, fmt.Errorf("%w: %d", ErrBadRef, r)
	}
	return &a.bufs[r], nil
}

// Data returns the contents of r. The slice stays valid while r is held.
func (a *Arena) Data(r Ref) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil {
		return nil
	}
	return b.data
}

// Blkno returns the block number r caches.
func (a *Arena) Blkno(r Ref) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil {
		return 0
	}
	return b.blkno
}

// Hold takes another reference on r.
func (a *Arena) Hold(r Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil {
		return err
	}
	b.refs++
	return nil
}

// Release drops a reference on r. Clean buffers are evicted when the last
// reference goes away; dirty ones wait for Write or Forget.
func (a *Arena) Release(r Ref) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil || b.refs == 0 {
		return
	}
	b.refs--
	if b.refs == 0 && !b.dirty {
		a.drop(r)
	}
}

// MarkDirty flags r as modified so it survives its last Release.
func (a *Arena) MarkDirty(r Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil {
		return err
	}
	b.dirty = true
	return nil
}

// Dirty reports whether r has unwritten changes.
func (a *Arena) Dirty(r Ref) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	return err == nil && b.dirty
}

// Write copies r to the device and clears its dirty flag. It returns the
// byte range written so callers can record it.
func (a *Arena) Write(r Ref) (off int64, n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil {
		return 0, 0, err
	}
	if err := a.dev.WriteBlock(b.blkno, b.data); err != nil {
		return 0, 0, fmt.Errorf("write block %d: %w", b.blkno, err)
	}
	b.dirty = false
	off = a.dev.BlockOffset(b.blkno)
	n = len(b.data)
	if b.refs == 0 {
		a.drop(r)
	}
	return off, n, nil
}

// Forget discards unwritten changes to r. A held buffer is reloaded from the
// device so its holders see the committed contents; an unheld one is evicted.
func (a *Arena) Forget(r Ref) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, err := a.get(r)
	if err != nil {
		return err
	}
	b.dirty = false
	if b.refs == 0 {
		a.drop(r)
		return nil
	}
	if err := a.dev.ReadBlock(b.blkno, b.data); err != nil {
		return fmt.Errorf("reload block %d: %w", b.blkno, err)
	}
	return nil
}

// Cached reports whether blk currently has a buffer.
func (a *Arena) Cached(blk uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.byBlk[blk]
	return ok
}

// Len returns the number of live buffers.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byBlk)
}
