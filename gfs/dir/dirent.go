package dir

import (
	"bytes"

	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/internal/buf"
	"github.com/joshuapare/rgkit/internal/format"
)

// Entry is one directory entry.
type Entry struct {
	Name string
	Inum format.Inum
	Type uint16
	Hash uint32
}

// Cursor is the Read position at which this entry is returned.
func (e Entry) Cursor() uint64 { return format.HashToOffset(e.Hash) }

// block is a packed run of entries from start to the end of b: the tail of
// a linear directory's dinode, or everything after a leaf header.
type block struct {
	b      []byte
	start  int
	where  string
	faults *consist.Tracker
}

func (k block) fault(msg string, args ...any) error {
	return k.faults.Fault(k.where, msg, args...)
}

func (k block) recLen(off int) int {
	return int(format.ReadU16(k.b, off+format.DirentRecLenOffset))
}

func (k block) nameLen(off int) int {
	return int(format.ReadU16(k.b, off+format.DirentNameLenOffset))
}

func (k block) hash(off int) uint32 {
	return format.ReadU32(k.b, off+format.DirentHashOffset)
}

func (k block) live(off int) bool {
	return format.ReadU64(k.b, off+format.DirentInumOffset) != 0
}

func (k block) name(off int) []byte {
	p := off + format.DirentHeaderSize
	return k.b[p : p+k.nameLen(off)]
}

func (k block) entry(off int) Entry {
	d, _ := format.DecodeDirent(k.b[off:])
	return Entry{Name: string(k.name(off)), Inum: d.Inum, Type: d.Type, Hash: d.Hash}
}

// check verifies that the entry at off lies inside the block.
func (k block) check(off int) error {
	if !buf.Has(k.b, off, format.DirentHeaderSize) {
		return k.fault("entry at %d overruns the block", off)
	}
	rl := k.recLen(off)
	if _, err := buf.CheckRecord(len(k.b), off, rl, format.DirentHeaderSize); err != nil {
		return k.fault("entry at %d has bad record length %d: %v", off, rl, err)
	}
	if nl := k.nameLen(off); format.DirentSize(nl) > rl {
		return k.fault("entry at %d: name length %d exceeds record length %d", off, nl, rl)
	}
	return nil
}

func (k block) first() (int, error) {
	return k.start, k.check(k.start)
}

// next returns the entry after off, or errEnd if off is the last one.
// Only the first entry of a block may be a tombstone.
func (k block) next(off int) (int, error) {
	n := off + k.recLen(off)
	if n >= len(k.b) {
		if n > len(k.b) {
			return 0, k.fault("entry at %d runs past the end of the block", off)
		}
		return 0, errEnd
	}
	if err := k.check(n); err != nil {
		return 0, err
	}
	if !k.live(n) {
		return 0, k.fault("empty entry at %d is not first in the block", n)
	}
	return n, nil
}

// slot finds room for a name of nameLen bytes in a block holding count
// live entries. It returns the offset of the entry whose space will be
// used, or errNoRoom. Nothing is modified.
func (k block) slot(nameLen, count int) (int, error) {
	need := format.DirentSize(nameLen)
	if count == 0 {
		if len(k.b)-k.start < need {
			return 0, errNoRoom
		}
		if k.live(k.start) {
			return 0, k.fault("first entry is in use but the block counts no entries")
		}
		return k.start, nil
	}

	off, err := k.first()
	if err != nil {
		return 0, err
	}
	for {
		rl := k.recLen(off)
		if !k.live(off) && rl >= need {
			return off, nil
		}
		if rl >= format.DirentSize(k.nameLen(off))+need {
			return off, nil
		}
		if off, err = k.next(off); err != nil {
			if err == errEnd {
				return 0, errNoRoom
			}
			return 0, err
		}
	}
}

// carve turns the room slot found at off into a new entry for a name of
// nameLen bytes and returns the new entry's offset. The caller fills in
// inum, hash, type and name.
func (k block) carve(off, nameLen, count int) int {
	if count == 0 {
		clear(k.b[k.start : k.start+format.DirentHeaderSize])
		format.PutU16(k.b, k.start+format.DirentRecLenOffset, uint16(len(k.b)-k.start))
		format.PutU16(k.b, k.start+format.DirentNameLenOffset, uint16(nameLen))
		return k.start
	}
	if !k.live(off) {
		format.PutU16(k.b, off+format.DirentNameLenOffset, uint16(nameLen))
		return off
	}

	rl := k.recLen(off)
	used := format.DirentSize(k.nameLen(off))
	n := off + used
	clear(k.b[n : n+format.DirentHeaderSize])
	format.PutU16(k.b, n+format.DirentRecLenOffset, uint16(rl-used))
	format.PutU16(k.b, n+format.DirentNameLenOffset, uint16(nameLen))
	format.PutU16(k.b, off+format.DirentRecLenOffset, uint16(used))
	return n
}

// fill writes the fields of a freshly carved entry, keeping its record
// length.
func (k block) fill(off int, name []byte, hash uint32, inum format.Inum, typ uint16) {
	format.EncodeDirent(k.b[off:], format.Dirent{
		Inum:    inum,
		Hash:    hash,
		RecLen:  uint16(k.recLen(off)),
		NameLen: uint16(len(name)),
		Type:    typ,
	})
	copy(k.b[off+format.DirentHeaderSize:], name)
}

// retarget points the entry at off at a different inode.
func (k block) retarget(off int, inum format.Inum, typ uint16) {
	format.EncodeInum(k.b[off+format.DirentInumOffset:], inum)
	format.PutU16(k.b, off+format.DirentTypeOffset, typ)
}

// del removes the entry at cur. prev is the entry before it, or -1 when cur
// is first in the block.
func (k block) del(prev, cur int) error {
	if !k.live(cur) {
		return k.fault("deleting empty entry at %d", cur)
	}
	if prev < 0 {
		format.PutU64(k.b, cur+format.DirentInumOffset, 0)
		return nil
	}
	if prev+k.recLen(prev) != cur {
		return k.fault("entry at %d does not precede entry at %d", prev, cur)
	}
	if cur+k.recLen(cur) > len(k.b) {
		return k.fault("entry at %d runs past the end of the block", cur)
	}
	format.PutU16(k.b, prev+format.DirentRecLenOffset, uint16(k.recLen(prev)+k.recLen(cur)))
	return nil
}

// search finds the live entry called name, returning its offset and that
// of the entry before it (-1 if none).
func (k block) search(name []byte, hash uint32, count int) (cur, prev int, err error) {
	if count == 0 {
		return -1, -1, ErrNotFound
	}
	off, err := k.first()
	if err != nil {
		return -1, -1, err
	}
	prev = -1
	for {
		if k.live(off) && k.hash(off) == hash && bytes.Equal(k.name(off), name) {
			return off, prev, nil
		}
		prev = off
		if off, err = k.next(off); err != nil {
			if err == errEnd {
				return -1, -1, ErrNotFound
			}
			return -1, -1, err
		}
	}
}

// collect returns the live entries in block order, checking that there are
// exactly count of them.
func (k block) collect(count int) ([]Entry, error) {
	if count == 0 {
		return nil, nil
	}
	out := make([]Entry, 0, count)
	off, err := k.first()
	if err != nil {
		return nil, err
	}
	for {
		if k.live(off) {
			if len(out) == count {
				return nil, k.fault("more live entries than the count of %d", count)
			}
			out = append(out, k.entry(off))
		}
		if off, err = k.next(off); err != nil {
			if err == errEnd {
				break
			}
			return nil, err
		}
	}
	if len(out) != count {
		return nil, k.fault("found %d live entries, count says %d", len(out), count)
	}
	return out, nil
}

// lastLive returns the offset of the count'th live entry.
func (k block) lastLive(count int) (int, error) {
	off, err := k.first()
	if err != nil {
		return 0, err
	}
	seen := 0
	for {
		if k.live(off) {
			if seen++; seen == count {
				return off, nil
			}
		}
		if off, err = k.next(off); err != nil {
			if err == errEnd {
				return 0, k.fault("found %d live entries, count says %d", seen, count)
			}
			return 0, err
		}
	}
}
