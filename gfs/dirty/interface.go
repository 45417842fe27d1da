package dirty

import "context"

// DirtyTracker is the minimal interface for components that only report
// modified ranges.
type DirtyTracker interface {
	Add(off, length int)
}

// FlushableTracker adds flushing, for the transaction manager.
type FlushableTracker interface {
	DirtyTracker
	Flush(ctx context.Context, mode FlushMode) error
	Reset()
}
