package format

import "errors"

var (
	// ErrSignatureMismatch indicates a metadata block did not carry the magic number.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrWrongType indicates a metadata block of an unexpected type.
	ErrWrongType = errors.New("format: unexpected metadata type")
	// ErrBadGeometry indicates superblock or region geometry that cannot be used.
	ErrBadGeometry = errors.New("format: bad geometry")
)
