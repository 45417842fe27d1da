//go:build unix

package gfs

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps the image at path read-write so blocks can be updated in place.
// The block size is taken from the superblock.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s", ErrEmptyImage, path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(sz), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	sb, err := ReadSuperblock(data)
	if err != nil {
		_ = unix.Munmap(data)
		_ = f.Close()
		return nil, err
	}

	return &Device{
		f:      f,
		data:   data,
		size:   sz,
		bsize:  int(sb.BlockSize),
		mapped: true,
		unmap:  unix.Munmap,
	}, nil
}

// Create makes a zero-filled image of size bytes at path and maps it. The
// caller formats it with mkfs before opening it with Open.
func Create(path string, size int64, bsize int) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("size image: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return &Device{f: f, data: data, size: size, bsize: bsize, mapped: true, unmap: unix.Munmap}, nil
}
