//go:build !unix

// Package mmfile maps image files copy-on-write for read-only inspection.
package mmfile

import "os"

// Map reads the entire file when mmap is not available. The copy is
// private, so stores to it never reach the file.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
