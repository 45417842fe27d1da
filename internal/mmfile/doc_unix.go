//go:build unix

// Package mmfile maps image files copy-on-write for read-only inspection.
package mmfile
