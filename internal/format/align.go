package format

// DirentSize returns the record length needed for a directory entry with a
// name of nameLen bytes: the fixed header plus the name, rounded up to 8.
//
//	DirentSize(0) = 40
//	DirentSize(1) = 48
//	DirentSize(8) = 48
//	DirentSize(9) = 56
func DirentSize(nameLen int) int {
	return (DirentHeaderSize + nameLen + 7) &^ 7
}

// DivRoundUp returns ceil(n / d) for positive d.
func DivRoundUp(n, d uint64) uint64 {
	return (n + d - 1) / d
}
