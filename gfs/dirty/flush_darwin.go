//go:build darwin

package dirty

import (
	"golang.org/x/sys/unix"
)

// flushRanges syncs the whole mapping. macOS msync wants the address the
// region was mapped at; the kernel only writes dirty pages anyway.
func (t *Tracker) flushRanges(data []byte) error {
	return unix.Msync(data, unix.MS_SYNC)
}

func fdatasync(fd int, fullfsync bool) error {
	if fullfsync {
		_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
		return err
	}
	return unix.Fsync(fd)
}
