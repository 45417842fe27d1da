//go:build linux || freebsd

package dirty

import (
	"golang.org/x/sys/unix"
)

// flushRanges msyncs each coalesced range. Linux and FreeBSD accept
// page-aligned sub-slices of the mapping.
func (t *Tracker) flushRanges(data []byte) error {
	for _, r := range t.coalesce() {
		start := int(r.Off)
		end := min(int(r.Off+r.Len), len(data))
		if start >= end {
			continue
		}
		if err := unix.Msync(data[start:end], unix.MS_SYNC); err != nil {
			return err
		}
	}
	return nil
}

func fdatasync(fd int, _ bool) error {
	return unix.Fdatasync(fd)
}
