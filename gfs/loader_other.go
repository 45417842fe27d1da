//go:build !unix

package gfs

import (
	"fmt"
	"os"
)

// Open loads the image into memory on platforms without mmap. Writes are
// persisted by Close.
func Open(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyImage, path)
	}
	sb, err := ReadSuperblock(data)
	if err != nil {
		return nil, err
	}
	d := &Device{data: data, size: int64(len(data)), bsize: int(sb.BlockSize)}
	d.unmap = func(b []byte) error { return os.WriteFile(path, b, 0o644) }
	return d, nil
}

// Create makes a zero-filled in-memory image that is written to path on Close.
func Create(path string, size int64, bsize int) (*Device, error) {
	d := &Device{data: make([]byte, size), size: size, bsize: bsize}
	d.unmap = func(b []byte) error { return os.WriteFile(path, b, 0o644) }
	return d, nil
}
