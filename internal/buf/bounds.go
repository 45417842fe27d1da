// Package buf contains overflow-safe bounds checks for the record decoders.
package buf

import (
	"fmt"
	"math"
)

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// CheckRecord validates that a record of recLen bytes starting at off lies
// inside a block of blockLen bytes and is at least minLen long. It returns the
// end offset of the record.
//
// Directory entries and leaf headers are validated with this before the
// caller touches any field past the fixed header:
//
//	end, err := buf.CheckRecord(len(block), off, int(recLen), format.DirentHeaderSize)
//	if err != nil {
//	    return fmt.Errorf("dirent: %w", err)
//	}
func CheckRecord(blockLen, off, recLen, minLen int) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}
	if recLen < minLen {
		return 0, fmt.Errorf("record too short: len=%d < min=%d", recLen, minLen)
	}
	end, ok := AddOverflowSafe(off, recLen)
	if !ok {
		return 0, fmt.Errorf("overflow: offset=%d + len=%d", off, recLen)
	}
	if end > blockLen {
		return 0, fmt.Errorf("bounds: end=%d > len=%d", end, blockLen)
	}
	return end, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	end, ok := AddOverflowSafe(off, n)
	if !ok || end > len(b) {
		return nil, false
	}
	return b[off:end], true
}

// Has reports whether b[off:off+n] is within bounds.
func Has(b []byte, off, n int) bool {
	_, ok := Slice(b, off, n)
	return ok
}
