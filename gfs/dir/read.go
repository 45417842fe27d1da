package dir

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/joshuapare/rgkit/internal/format"
)

// EndCursor is past every cursor an entry can have. Read returns it once a
// directory has nothing more to give.
const EndCursor = uint64(1) << 31

// FillFunc receives entries from Read. It returns false when it cannot take
// e; Read then stops and the cursor it returns resumes at e.
type FillFunc func(e Entry) bool

// Read passes entries to fill in cursor order, starting at cursor (0 for
// the beginning), and returns the cursor to resume from.
func (d *Dir) Read(ctx context.Context, cursor uint64, fill FillFunc) (uint64, error) {
	if cursor >= EndCursor {
		return cursor, nil
	}
	switch d.Kind() {
	case Hashed:
		return d.hashedRead(ctx, cursor, fill)
	default:
		return d.linearRead(cursor, fill)
	}
}

// ReadAll returns every entry in cursor order. A single Read can stop
// early to keep entries sharing a cursor together, so it reads until the
// directory is exhausted.
func (d *Dir) ReadAll(ctx context.Context) ([]Entry, error) {
	var (
		out    []Entry
		cursor uint64
	)
	for cursor < EndCursor {
		n := 0
		next, err := d.Read(ctx, cursor, func(e Entry) bool {
			out = append(out, e)
			n++
			return true
		})
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func (d *Dir) linearRead(cursor uint64, fill FillFunc) (uint64, error) {
	k, err := d.linear()
	if err != nil {
		return cursor, err
	}
	ents, err := k.collect(int(d.ip.Di.Entries))
	if err != nil {
		return cursor, err
	}
	var copied bool
	if !emit(ents, &cursor, &copied, fill) {
		return EndCursor, nil
	}
	return cursor, nil
}

func (d *Dir) hashedRead(ctx context.Context, cursor uint64, fill FillFunc) (uint64, error) {
	hsize, err := d.hsize()
	if err != nil {
		return cursor, err
	}
	depth := d.ip.Di.Depth
	index := d.index(format.OffsetToHash(cursor))
	var copied bool

	for index < hsize {
		leafNo, err := d.leafNr(ctx, index)
		if err != nil {
			return cursor, err
		}
		ents, ldepth, err := d.gather(ctx, leafNo)
		if err != nil {
			return cursor, err
		}
		if emit(ents, &cursor, &copied, fill) {
			return cursor, nil
		}
		if ldepth > depth {
			return cursor, d.fault("leaf %d is deeper than the table (%d > %d)", leafNo, ldepth, depth)
		}
		length := uint32(1) << (depth - ldepth)
		index = index&^(length-1) + length
	}
	return EndCursor, nil
}

// gather collects the live entries of the leaf at blk, and of every leaf
// chained after it.
func (d *Dir) gather(ctx context.Context, blk uint64) ([]Entry, uint16, error) {
	var (
		out   []Entry
		depth uint16
		first = true
	)
	err := d.walkChain(ctx, blk, func(l *leaf) error {
		if first {
			depth, first = l.hdr.Depth, false
		}
		ents, err := l.block(d).collect(int(l.hdr.Entries))
		if err != nil {
			return err
		}
		out = append(out, ents...)
		return nil
	})
	return out, depth, err
}

func compareEntries(a, b Entry) int {
	if c := cmp.Compare(a.Hash, b.Hash); c != 0 {
		return c
	}
	if c := cmp.Compare(len(a.Name), len(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// emit sorts ents and passes those at or after *cursor to fill. It reports
// whether reading should stop: fill refused an entry, or a group of
// entries sharing a cursor would straddle two calls. In both cases *cursor
// is left on the entry that was not returned. Otherwise *cursor ends one
// past the last entry.
func emit(ents []Entry, cursor *uint64, copied *bool, fill FillFunc) bool {
	if len(ents) == 0 {
		return false
	}
	slices.SortFunc(ents, compareEntries)

	run := false
	for i, e := range ents {
		off := e.Cursor()
		if off < *cursor {
			continue
		}
		*cursor = off

		if i+1 < len(ents) {
			if ents[i+1].Cursor() == off {
				if *copied && !run {
					return true
				}
				run = true
			} else {
				run = false
			}
		}

		if !fill(e) {
			return true
		}
		*copied = true
	}
	*cursor++
	return false
}
