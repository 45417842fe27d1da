package mount

import "errors"

var (
	// ErrBadRindex is returned when the region index stream is not a whole
	// number of entries.
	ErrBadRindex = errors.New("mount: malformed region index")
	// ErrBusy is returned by Unmount while transactions are open.
	ErrBusy = errors.New("mount: filesystem busy")
	// ErrNotEmpty is returned when removing a directory that still holds
	// entries other than "." and "..".
	ErrNotEmpty = errors.New("mount: directory not empty")
	// ErrReservedName is returned for operations on "." and "..".
	ErrReservedName = errors.New("mount: reserved entry name")
)
