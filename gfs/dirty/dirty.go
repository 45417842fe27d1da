// Package dirty tracks the byte ranges of a filesystem image touched by a
// transaction and flushes them to stable storage.
//
// Ranges are recorded as they are written, then page-aligned and coalesced
// at flush time. Memory images have nothing to flush; the tracker still
// records ranges so callers can inspect what a commit touched.
package dirty

import (
	"context"
	"os"
	"sort"
)

const defaultRangeCapacity = 64

// FlushMode controls durability guarantees for transaction commits.
type FlushMode int

const (
	// FlushAuto msyncs dirty pages and then fdatasyncs the file.
	FlushAuto FlushMode = iota

	// FlushDataOnly msyncs dirty pages only. The caller is responsible for
	// syncing the file descriptor later, e.g. when batching commits.
	FlushDataOnly

	// FlushFull msyncs dirty pages and fully syncs the file, using
	// F_FULLFSYNC on macOS.
	FlushFull
)

// ParseFlushMode maps the config spellings onto a FlushMode.
func ParseFlushMode(s string) FlushMode {
	switch s {
	case "data":
		return FlushDataOnly
	case "full":
		return FlushFull
	default:
		return FlushAuto
	}
}

// Range represents a dirty byte range (absolute image offsets).
type Range struct {
	Off int64
	Len int64
}

// Image is the part of a device the tracker needs.
type Image interface {
	Bytes() []byte
	FD() int
	Mapped() bool
}

// Tracker accumulates dirty ranges and flushes them.
//
// NOT thread-safe. The transaction manager serializes access.
type Tracker struct {
	img      Image
	ranges   []Range
	pageSize int64
}

// NewTracker creates a dirty tracker for img.
func NewTracker(img Image) *Tracker {
	return &Tracker{
		img:      img,
		ranges:   make([]Range, 0, defaultRangeCapacity),
		pageSize: int64(os.Getpagesize()),
	}
}

// Add records a dirty range.
func (t *Tracker) Add(off, length int) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, Range{Off: int64(off), Len: int64(length)})
}

// Flush writes every recorded range back to the file and clears the list.
// In FlushAuto and FlushFull modes the file descriptor is synced as well.
//
// The context is checked before each step; a cancelled flush may have
// written some ranges but not others, and leaves the ranges recorded.
func (t *Tracker) Flush(ctx context.Context, mode FlushMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(t.ranges) == 0 {
		return nil
	}
	if !t.img.Mapped() {
		t.Reset()
		return nil
	}

	data := t.img.Bytes()
	if len(data) == 0 {
		t.Reset()
		return nil
	}
	if err := t.flushRanges(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if mode != FlushDataOnly {
		if fd := t.img.FD(); fd >= 0 {
			if err := fdatasync(fd, mode == FlushFull); err != nil {
				return err
			}
		}
	}

	t.Reset()
	return nil
}

// Reset clears all tracked ranges.
func (t *Tracker) Reset() {
	t.ranges = t.ranges[:0]
}

// Ranges returns a copy of the raw, uncoalesced ranges.
func (t *Tracker) Ranges() []Range {
	result := make([]Range, len(t.ranges))
	copy(result, t.ranges)
	return result
}

// CoalescedRanges returns the page-aligned, sorted and merged ranges a
// flush would write.
func (t *Tracker) CoalescedRanges() []Range {
	return t.coalesce()
}

func (t *Tracker) coalesce() []Range {
	if len(t.ranges) == 0 {
		return nil
	}

	aligned := make([]Range, len(t.ranges))
	for i, r := range t.ranges {
		start := (r.Off / t.pageSize) * t.pageSize
		end := r.Off + r.Len
		if end%t.pageSize != 0 {
			end = ((end / t.pageSize) + 1) * t.pageSize
		}
		aligned[i] = Range{Off: start, Len: end - start}
	}

	sort.Slice(aligned, func(i, j int) bool {
		return aligned[i].Off < aligned[j].Off
	})

	merged := make([]Range, 0, len(aligned))
	current := aligned[0]
	for _, next := range aligned[1:] {
		if next.Off <= current.Off+current.Len {
			end := max(current.Off+current.Len, next.Off+next.Len)
			current.Len = end - current.Off
			continue
		}
		merged = append(merged, current)
		current = next
	}
	return append(merged, current)
}
