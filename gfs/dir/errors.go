package dir

import "errors"

var (
	// ErrNotFound is returned when no entry has the requested name.
	ErrNotFound = errors.New("dir: no such entry")
	// ErrExist is returned by Add when the name is already present.
	ErrExist = errors.New("dir: entry already exists")
	// ErrNameTooLong is returned for names longer than format.MaxNameLen.
	ErrNameTooLong = errors.New("dir: name too long")
	// ErrEmptyName is returned for a zero-length name.
	ErrEmptyName = errors.New("dir: empty name")
)

var (
	errNoRoom = errors.New("dir: no room in block")
	errEnd    = errors.New("dir: end of block")
	errStop   = errors.New("dir: stop walk")
)
