//go:build !linux && !freebsd && !darwin

package dirty

// Images on these platforms are held in memory and written back on Close.

func (t *Tracker) flushRanges(_ []byte) error { return nil }

func fdatasync(_ int, _ bool) error { return nil }
