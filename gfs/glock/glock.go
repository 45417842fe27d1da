// Package glock is the cluster lock interface the space manager and the
// directory index take their locks through, with an in-process
// implementation for single-host use and tests.
package glock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Mode is the lock state requested.
type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Flags modify a lock request.
type Flags uint32

const (
	// FlagTry fails with ErrTryFailed instead of waiting.
	FlagTry Flags = 1 << iota
)

// ErrTryFailed is returned for a FlagTry request that would block.
var ErrTryFailed = errors.New("glock: try lock failed")

// Locker grants cluster-wide locks on named resources.
type Locker interface {
	Lock(ctx context.Context, name string, mode Mode, flags Flags) (*Holder, error)
}

// Holder is a granted lock. Unlock releases it.
type Holder struct {
	Name  string
	Mode  Mode
	Owner uuid.UUID

	once    sync.Once
	release func()
}

// Unlock releases the lock. Calls after the first are no-ops.
func (h *Holder) Unlock() {
	if h == nil {
		return
	}
	h.once.Do(h.release)
}

// RgrpName is the lock name of the region whose header is at addr.
func RgrpName(addr uint64) string { return fmt.Sprintf("rgrp/%d", addr) }

// exclusiveWeight is the semaphore weight of an exclusive hold. A shared
// hold takes 1, so any number of shared holders below this can coexist.
const exclusiveWeight = 1 << 30

// LocalLocker is a Locker for nodes that share one process. Every mount
// handed the same LocalLocker contends for the same locks.
type LocalLocker struct {
	mu    sync.Mutex
	sems  map[string]*semaphore.Weighted
	owner uuid.UUID
}

// NewLocalLocker creates an empty lock space.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{sems: make(map[string]*semaphore.Weighted), owner: uuid.New()}
}

// ID identifies this lock space in logs.
func (l *LocalLocker) ID() uuid.UUID { return l.owner }

func (l *LocalLocker) sem(name string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[name]
	if !ok {
		s = semaphore.NewWeighted(exclusiveWeight)
		l.sems[name] = s
	}
	return s
}

// Lock acquires name in mode. Without FlagTry it waits until the lock is
// granted or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, name string, mode Mode, flags Flags) (*Holder, error) {
	s := l.sem(name)
	w := int64(1)
	if mode == Exclusive {
		w = exclusiveWeight
	}

	if flags&FlagTry != 0 {
		if !s.TryAcquire(w) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrTryFailed, name, mode)
		}
	} else if err := s.Acquire(ctx, w); err != nil {
		return nil, fmt.Errorf("glock: lock %s: %w", name, err)
	}

	return &Holder{
		Name:    name,
		Mode:    mode,
		Owner:   uuid.New(),
		release: func() { s.Release(w) },
	}, nil
}
