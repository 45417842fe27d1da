// Package consist tracks the consistency fault state of a mounted filesystem.
//
// A consistency fault means an on-disk structure broke one of its invariants
// (a bad record length, a counter that disagrees with the bitmap, a bitmap
// search that found nothing where the counters promised a block). Continuing
// to write could spread the damage to every node sharing the device, so the
// first fault withdraws the instance: every later mutation fails with
// ErrWithdrawn until the filesystem is repaired and remounted.
package consist

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/metrics"
)

var (
	// ErrConsistency wraps every fault raised by Tracker.Fault.
	ErrConsistency = errors.New("consist: on-disk consistency fault")
	// ErrWithdrawn is returned by Check once a fault has been raised.
	ErrWithdrawn = errors.New("consist: filesystem withdrawn after consistency fault")
)

// Tracker records whether the instance has been withdrawn.
type Tracker struct {
	log       *zap.Logger
	withdrawn atomic.Bool
	first     atomic.Pointer[string]
}

// New returns a tracker that logs faults to log. A nil logger is allowed.
func New(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{log: log}
}

// Fault withdraws the instance and returns an error wrapping ErrConsistency.
// where names the structure at fault (for example "rgrp 17" or "dir 1033").
func (t *Tracker) Fault(where, msg string, args ...any) error {
	detail := fmt.Sprintf(msg, args...)
	full := where + ": " + detail
	t.first.CompareAndSwap(nil, &full)
	if !t.withdrawn.Swap(true) {
		t.log.Error("consistency fault, withdrawing filesystem",
			zap.String("where", where), zap.String("detail", detail))
	} else {
		t.log.Warn("consistency fault while withdrawn",
			zap.String("where", where), zap.String("detail", detail))
	}
	metrics.ConsistencyFaults.Inc()
	return fmt.Errorf("%s: %w: %s", where, ErrConsistency, detail)
}

// Check returns ErrWithdrawn once any fault has been raised.
func (t *Tracker) Check() error {
	if t.withdrawn.Load() {
		return fmt.Errorf("%w (first fault: %s)", ErrWithdrawn, t.FirstFault())
	}
	return nil
}

// Withdrawn reports whether the instance has been withdrawn.
func (t *Tracker) Withdrawn() bool { return t.withdrawn.Load() }

// FirstFault describes the fault that withdrew the instance, if any.
func (t *Tracker) FirstFault() string {
	if p := t.first.Load(); p != nil {
		return *p
	}
	return ""
}
