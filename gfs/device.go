package gfs

import (
	"fmt"
	"os"
	"sync"

	"github.com/joshuapare/rgkit/internal/format"
	"github.com/joshuapare/rgkit/internal/mmfile"
)

// Device is a block-addressed filesystem image.
//
// Reads and writes of distinct blocks may run concurrently; callers
// serialize access to the same block through the cluster lock that covers it.
type Device struct {
	mu     sync.RWMutex
	f      *os.File
	data   []byte
	size   int64
	bsize  int
	mapped bool
	unmap  func([]byte) error
}

// NewMem wraps an in-memory image. bsize is the filesystem block size; it is
// usually learned from the superblock with ReadSuperblock first.
func NewMem(data []byte, bsize int) *Device {
	return &Device{data: data, size: int64(len(data)), bsize: bsize}
}

// OpenSnapshot maps the image at path copy-on-write. It can be mounted and
// even edited, but nothing reaches the file; Close drops the mapping.
func OpenSnapshot(path string) (*Device, error) {
	data, release, err := mmfile.Map(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		_ = release()
		return nil, fmt.Errorf("%w: %s", ErrEmptyImage, path)
	}
	sb, err := ReadSuperblock(data)
	if err != nil {
		_ = release()
		return nil, err
	}
	return &Device{
		data:  data,
		size:  int64(len(data)),
		bsize: int(sb.BlockSize),
		unmap: func([]byte) error { return release() },
	}, nil
}

// Bytes returns the raw image.
func (d *Device) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data
}

// Size returns the image size in bytes.
func (d *Device) Size() int64 { return d.size }

// FD returns the file descriptor backing the image, or -1 for memory images.
func (d *Device) FD() int {
	if d.f == nil {
		return -1
	}
	return int(d.f.Fd())
}

// Mapped reports whether the image is a live memory mapping of a file.
func (d *Device) Mapped() bool { return d.mapped }

// BlockSize returns the filesystem block size in bytes.
func (d *Device) BlockSize() int { return d.bsize }

// SetBlockSize changes the block size used for block addressing.
func (d *Device) SetBlockSize(bsize int) { d.bsize = bsize }

// Blocks returns the number of whole blocks on the device.
func (d *Device) Blocks() uint64 {
	if d.bsize == 0 {
		return 0
	}
	return uint64(d.size) / uint64(d.bsize)
}

// Block returns the bytes of block n without copying. The slice aliases the
// image; writes through it bypass transactions and are only appropriate for
// the formatter and read-only inspection.
func (d *Device) Block(n uint64) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.data == nil {
		return nil, ErrClosed
	}
	off := int64(n) * int64(d.bsize)
	if n >= d.Blocks() || off+int64(d.bsize) > int64(len(d.data)) {
		return nil, fmt.Errorf("%w: %d (device has %d)", ErrBlockRange, n, d.Blocks())
	}
	return d.data[off : off+int64(d.bsize)], nil
}

// ReadBlock copies block n into p.
func (d *Device) ReadBlock(n uint64, p []byte) error {
	b, err := d.Block(n)
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// WriteBlock copies p into block n.
func (d *Device) WriteBlock(n uint64, p []byte) error {
	b, err := d.Block(n)
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// BlockOffset returns the byte offset of block n.
func (d *Device) BlockOffset(n uint64) int64 {
	return int64(n) * int64(d.bsize)
}

// Close releases the mapping and the file.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.data != nil && d.unmap != nil {
		err = d.unmap(d.data)
	}
	d.data = nil
	if d.f != nil {
		if cerr := d.f.Close(); err == nil {
			err = cerr
		}
		d.f = nil
	}
	return err
}

// ReadSuperblock decodes the superblock of an image. The block size is not
// known until the superblock has been read, so it is located by byte offset.
func ReadSuperblock(data []byte) (format.Superblock, error) {
	off := format.SuperblockAddr * format.BasicBlockSize
	if len(data) < off+format.SuperblockSize {
		return format.Superblock{}, fmt.Errorf("superblock: %w (image is %d bytes)", format.ErrTruncated, len(data))
	}
	return format.DecodeSuperblock(data[off:])
}
