package dir

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/metrics"
	"github.com/joshuapare/rgkit/internal/format"
)

// leaf is a held leaf block.
type leaf struct {
	blk uint64
	ref blockio.Ref
	b   []byte
	hdr format.Leaf
}

func (l *leaf) block(d *Dir) block {
	return block{b: l.b, start: format.LeafHeaderSize, where: d.ip.Where(), faults: d.faults}
}

func (l *leaf) setEntries(n uint16) {
	l.hdr.Entries = n
	format.PutU16(l.b, format.LeafEntriesOffset, n)
}

func (l *leaf) setDepth(n uint16) {
	l.hdr.Depth = n
	format.PutU16(l.b, format.LeafDepthOffset, n)
}

func (l *leaf) setNext(blk uint64) {
	l.hdr.Next = blk
	format.PutU64(l.b, format.LeafNextOffset, blk)
}

func (d *Dir) getLeaf(ctx context.Context, blk uint64) (*leaf, error) {
	if blk == 0 {
		return nil, d.fault("hash table points at block 0")
	}
	a := d.ip.Arena()
	ref, err := a.Read(ctx, blk)
	if err != nil {
		return nil, err
	}
	b := a.Data(ref)
	hdr, err := format.DecodeLeaf(b)
	if err != nil {
		a.Release(ref)
		return nil, d.fault("leaf %d: %v", blk, err)
	}
	return &leaf{blk: blk, ref: ref, b: b, hdr: hdr}, nil
}

// newLeaf allocates an empty leaf of the given depth and adds it to the
// transaction.
func (d *Dir) newLeaf(ctx context.Context, depth uint16) (*leaf, error) {
	blk, err := d.alloc.AllocMeta(ctx, d.ip)
	if err != nil {
		return nil, err
	}
	ref, err := d.alloc.NewMeta(ctx, blk)
	if err != nil {
		return nil, err
	}
	a := d.ip.Arena()
	b := a.Data(ref)
	format.InitLeaf(b, depth)
	if err := d.pin(ctx, ref); err != nil {
		a.Release(ref)
		return nil, err
	}
	return &leaf{blk: blk, ref: ref, b: b, hdr: format.Leaf{Depth: depth, DirentFormat: format.FormatDE}}, nil
}

func (d *Dir) release(l *leaf) {
	if l != nil {
		d.ip.Arena().Release(l.ref)
	}
}

// walkChain calls fn for the leaf at blk and every leaf chained after it.
// fn returns errStop to end the walk early.
func (d *Dir) walkChain(ctx context.Context, blk uint64, fn func(l *leaf) error) error {
	seen := make(map[uint64]struct{})
	for blk != 0 {
		if _, ok := seen[blk]; ok {
			return d.fault("leaf chain loops back to %d", blk)
		}
		seen[blk] = struct{}{}
		l, err := d.getLeaf(ctx, blk)
		if err != nil {
			return err
		}
		err = fn(l)
		next := l.hdr.Next
		d.release(l)
		if err == errStop {
			return nil
		}
		if err != nil {
			return err
		}
		blk = next
	}
	return nil
}

// hsize returns the number of table slots, checking it against the size of
// the table stream.
func (d *Dir) hsize() (uint32, error) {
	depth := d.ip.Di.Depth
	if depth == 0 || depth > format.DirMaxDepth || uint64(8)<<depth != d.ip.Di.Size {
		return 0, d.fault("hash table of %d bytes does not match depth %d", d.ip.Di.Size, depth)
	}
	return 1 << depth, nil
}

func (d *Dir) index(hash uint32) uint32 {
	return hash >> (32 - d.ip.Di.Depth)
}

func (d *Dir) leafNr(ctx context.Context, index uint32) (uint64, error) {
	var p [8]byte
	n, err := d.table.ReadAt(ctx, p[:], int64(index)*8)
	if n != len(p) {
		if err == nil || errors.Is(err, io.EOF) {
			return 0, d.fault("hash table slot %d is past the end of the table", index)
		}
		return 0, err
	}
	return format.ReadU64(p[:], 0), nil
}

// found is a located entry; its leaf stays held until released.
type found struct {
	l    *leaf
	cur  int
	prev int
}

// lookup finds name in the leaf chain its hash selects.
func (d *Dir) lookup(ctx context.Context, name []byte) (found, error) {
	if _, err := d.hsize(); err != nil {
		return found{}, err
	}
	hash := format.Hash(name)
	first, err := d.leafNr(ctx, d.index(hash))
	if err != nil {
		return found{}, err
	}

	var f found
	err = d.walkChain(ctx, first, func(l *leaf) error {
		cur, prev, err := l.block(d).search(name, hash, int(l.hdr.Entries))
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := d.ip.Arena().Hold(l.ref); err != nil {
			return err
		}
		f = found{l: l, cur: cur, prev: prev}
		return errStop
	})
	if err != nil {
		return found{}, err
	}
	if f.l == nil {
		return found{}, ErrNotFound
	}
	return f, nil
}

func (d *Dir) hashedSearch(ctx context.Context, name string) (Entry, error) {
	f, err := d.lookup(ctx, []byte(name))
	if err != nil {
		return Entry{}, err
	}
	defer d.release(f.l)
	return f.l.block(d).entry(f.cur), nil
}

func (d *Dir) hashedDelete(ctx context.Context, name string) error {
	f, err := d.lookup(ctx, []byte(name))
	if err != nil {
		return err
	}
	defer d.release(f.l)

	if err := d.pin(ctx, f.l.ref); err != nil {
		return err
	}
	if err := f.l.block(d).del(f.prev, f.cur); err != nil {
		return err
	}
	if f.l.hdr.Entries == 0 {
		return d.fault("leaf %d counts no entries", f.l.blk)
	}
	f.l.setEntries(f.l.hdr.Entries - 1)

	if d.ip.Di.Entries == 0 {
		return d.fault("deleting from a directory with no entries")
	}
	d.ip.Di.Entries--
	d.touch()
	return d.ip.Sync(ctx, d.marker)
}

func (d *Dir) hashedMove(ctx context.Context, name string, inum format.Inum, typ uint16) error {
	f, err := d.lookup(ctx, []byte(name))
	if err != nil {
		return err
	}
	defer d.release(f.l)

	if err := d.pin(ctx, f.l.ref); err != nil {
		return err
	}
	f.l.block(d).retarget(f.cur, inum, typ)
	d.touch()
	return d.ip.Sync(ctx, d.marker)
}

// hashedAdd places the entry in the leaf its hash selects, making room by
// splitting the leaf, doubling the table or extending the leaf's chain.
func (d *Dir) hashedAdd(ctx context.Context, name []byte, inum format.Inum, typ uint16) error {
	hash := format.Hash(name)
	for {
		if _, err := d.hsize(); err != nil {
			return err
		}
		index := d.index(hash)
		leafNo, err := d.leafNr(ctx, index)
		if err != nil {
			return err
		}

		retry, err := d.addToChain(ctx, index, leafNo, name, hash, inum, typ)
		if err != nil || !retry {
			return err
		}
	}
}

// addToChain tries the chain starting at leafNo. It reports retry when it
// split the leaf or doubled the table, after which the slot must be looked
// up again.
func (d *Dir) addToChain(ctx context.Context, index uint32, leafNo uint64, name []byte, hash uint32, inum format.Inum, typ uint16) (bool, error) {
	for {
		l, err := d.getLeaf(ctx, leafNo)
		if err != nil {
			return false, err
		}
		k := l.block(d)
		count := int(l.hdr.Entries)

		off, err := k.slot(len(name), count)
		if err == nil {
			err = d.place(ctx, l, off, name, hash, inum, typ)
			d.release(l)
			return false, err
		}
		if err != errNoRoom {
			d.release(l)
			return false, err
		}

		switch {
		case l.hdr.Depth < d.ip.Di.Depth:
			d.release(l)
			return true, d.splitLeaf(ctx, index, leafNo)

		case d.ip.Di.Depth < d.maxDepth:
			d.release(l)
			return true, d.doubleTable(ctx)

		case l.hdr.Next != 0:
			leafNo = l.hdr.Next
			d.release(l)

		default:
			err := d.extendChain(ctx, l, name, hash, inum, typ)
			d.release(l)
			return false, err
		}
	}
}

// place writes the entry into room slot found in l.
func (d *Dir) place(ctx context.Context, l *leaf, off int, name []byte, hash uint32, inum format.Inum, typ uint16) error {
	if err := d.pin(ctx, l.ref); err != nil {
		return err
	}
	k := l.block(d)
	off = k.carve(off, len(name), int(l.hdr.Entries))
	k.fill(off, name, hash, inum, typ)
	l.setEntries(l.hdr.Entries + 1)

	d.ip.Di.Entries++
	d.touch()
	return d.ip.Sync(ctx, d.marker)
}

// extendChain appends a new leaf after l, which is full and last in its
// chain, and puts the entry there.
func (d *Dir) extendChain(ctx context.Context, l *leaf, name []byte, hash uint32, inum format.Inum, typ uint16) error {
	nl, err := d.newLeaf(ctx, l.hdr.Depth)
	if err != nil {
		return err
	}
	defer d.release(nl)

	if err := d.pin(ctx, l.ref); err != nil {
		return err
	}
	l.setNext(nl.blk)
	d.ip.Di.Blocks++

	metrics.DirChainExtensions.Inc()
	d.log.Info("directory leaf chain extended",
		zap.Uint64("dir", d.ip.Addr),
		zap.Uint64("leaf", l.blk),
		zap.Uint64("next", nl.blk))

	off, err := nl.block(d).slot(len(name), 0)
	if err != nil {
		return d.fault("name of %d bytes does not fit an empty leaf", len(name))
	}
	return d.place(ctx, nl, off, name, hash, inum, typ)
}

// splitLeaf gives half of the table slots that point at leafNo to a new
// leaf and moves the entries hashing into that half over to it. The new
// leaf takes the lower half of the range.
func (d *Dir) splitLeaf(ctx context.Context, index uint32, leafNo uint64) error {
	nl, err := d.newLeaf(ctx, 0)
	if err != nil {
		return err
	}
	defer d.release(nl)

	ol, err := d.getLeaf(ctx, leafNo)
	if err != nil {
		return err
	}
	defer d.release(ol)
	if err := d.pin(ctx, ol.ref); err != nil {
		return err
	}

	depth := d.ip.Di.Depth
	if ol.hdr.Depth >= depth {
		return d.fault("leaf %d of depth %d cannot split in a table of depth %d", leafNo, ol.hdr.Depth, depth)
	}
	length := uint32(1) << (depth - ol.hdr.Depth)
	half := length >> 1
	start := index &^ (length - 1)

	ptrs := make([]byte, half*8)
	for x := uint32(0); x < half; x++ {
		format.PutU64(ptrs, int(x*8), nl.blk)
	}
	if _, err := d.table.WriteAt(ctx, ptrs, int64(start)*8); err != nil {
		return err
	}

	divider := (start + half) << (32 - depth)
	ob, nk := ol.block(d), nl.block(d)
	moved := false
	prev := -1
	off, err := ob.first()
	if err != nil {
		return err
	}
	for off >= 0 {
		next, err := ob.next(off)
		switch {
		case err == errEnd:
			next = -1
		case err != nil:
			return err
		}

		if ob.live(off) && ob.hash(off) < divider {
			e := ob.entry(off)
			n, err := nk.slot(len(e.Name), int(nl.hdr.Entries))
			if err != nil {
				return d.fault("entries of leaf %d do not fit a new leaf", leafNo)
			}
			n = nk.carve(n, len(e.Name), int(nl.hdr.Entries))
			nk.fill(n, []byte(e.Name), e.Hash, e.Inum, e.Type)
			nl.setEntries(nl.hdr.Entries + 1)

			if err := ob.del(prev, off); err != nil {
				return err
			}
			if ol.hdr.Entries == 0 {
				return d.fault("leaf %d counts no entries", leafNo)
			}
			ol.setEntries(ol.hdr.Entries - 1)
			if prev < 0 {
				prev = off
			}
			moved = true
		} else {
			prev = off
		}
		off = next
	}

	if !moved {
		nk.carve(nk.start, 0, 0)
	}

	ol.setDepth(ol.hdr.Depth + 1)
	nl.setDepth(ol.hdr.Depth)

	d.ip.Di.Blocks++
	if err := d.ip.Sync(ctx, d.marker); err != nil {
		return err
	}

	metrics.DirLeafSplits.Inc()
	d.log.Info("directory leaf split",
		zap.Uint64("dir", d.ip.Addr),
		zap.Uint64("leaf", leafNo),
		zap.Uint64("new", nl.blk),
		zap.Uint16("depth", ol.hdr.Depth),
		zap.Uint16("moved", nl.hdr.Entries))
	return nil
}

// doubleTable duplicates every slot of the table into two adjacent slots.
// The table is rewritten one hash block at a time, from the last block
// back, so every block is read before anything overwrites it.
func (d *Dir) doubleTable(ctx context.Context) error {
	if _, err := d.hsize(); err != nil {
		return err
	}
	geo := d.ip.Geometry()
	hb := int64(geo.HashBlockSize)
	if 2*d.ip.Di.Size > d.table.MaxSize() {
		return d.fault("hash table of %d bytes cannot double", d.ip.Di.Size)
	}

	buf := make([]byte, 3*hb)
	from, to := buf[:hb], buf[hb:]
	for blk := int64(d.ip.Di.Size) / hb; blk > 0; {
		blk--
		n, err := d.table.ReadAt(ctx, from, blk*hb)
		if n != len(from) {
			if err == nil || errors.Is(err, io.EOF) {
				return d.fault("short hash table read at block %d", blk)
			}
			return err
		}
		for x := 0; x < int(geo.HashPtrs); x++ {
			p := from[x*8 : x*8+8]
			copy(to[2*x*8:], p)
			copy(to[(2*x+1)*8:], p)
		}
		if _, err := d.table.WriteAt(ctx, to, blk*2*hb); err != nil {
			return err
		}
	}

	d.ip.Di.Depth++
	if err := d.ip.Sync(ctx, d.marker); err != nil {
		return err
	}

	metrics.DirTableDoublings.Inc()
	d.log.Info("directory hash table doubled",
		zap.Uint64("dir", d.ip.Addr),
		zap.Uint16("depth", d.ip.Di.Depth),
		zap.Uint64("bytes", d.ip.Di.Size))
	return nil
}

func (d *Dir) hashedAllocRequired(ctx context.Context, name string) (bool, error) {
	if _, err := d.hsize(); err != nil {
		return false, err
	}
	first, err := d.leafNr(ctx, d.index(format.Hash([]byte(name))))
	if err != nil {
		return false, err
	}
	required := true
	err = d.walkChain(ctx, first, func(l *leaf) error {
		switch _, err := l.block(d).slot(len(name), int(l.hdr.Entries)); err {
		case nil:
			required = false
			return errStop
		case errNoRoom:
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return false, err
	}
	return required, nil
}
