package gfs

import "errors"

var (
	// ErrClosed is returned when a device is used after Close.
	ErrClosed = errors.New("gfs: device closed")
	// ErrBlockRange indicates a block number beyond the end of the device.
	ErrBlockRange = errors.New("gfs: block out of range")
	// ErrEmptyImage is returned when opening a zero-length image.
	ErrEmptyImage = errors.New("gfs: empty image")
)
