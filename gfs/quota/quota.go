// Package quota is the block accounting interface allocation sites consult.
// Enforcement policy lives outside this module; Ledger only keeps counts and
// optional hard limits.
package quota

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOverLimit is returned by Check when a change would exceed a limit.
var ErrOverLimit = errors.New("quota: over limit")

// Checker is consulted before a reservation commits to block counts and
// told about every allocation and free.
type Checker interface {
	Check(uid, gid uint32, blocks int64) error
	Change(uid, gid uint32, delta int64)
}

// Unlimited never refuses and keeps no counts.
type Unlimited struct{}

func (Unlimited) Check(uint32, uint32, int64) error { return nil }
func (Unlimited) Change(uint32, uint32, int64)      {}

// Ledger tracks blocks charged per user and per group.
type Ledger struct {
	mu        sync.Mutex
	users     map[uint32]int64
	groups    map[uint32]int64
	userLimit map[uint32]int64
	grpLimit  map[uint32]int64
}

// NewLedger creates an empty ledger with no limits.
func NewLedger() *Ledger {
	return &Ledger{
		users:     make(map[uint32]int64),
		groups:    make(map[uint32]int64),
		userLimit: make(map[uint32]int64),
		grpLimit:  make(map[uint32]int64),
	}
}

// LimitUser sets a hard block limit for uid.
func (l *Ledger) LimitUser(uid uint32, blocks int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userLimit[uid] = blocks
}

// LimitGroup sets a hard block limit for gid.
func (l *Ledger) LimitGroup(gid uint32, blocks int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.grpLimit[gid] = blocks
}

// Check reports whether charging blocks more to uid and gid stays within
// their limits.
func (l *Ledger) Check(uid, gid uint32, blocks int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.userLimit[uid]; ok && l.users[uid]+blocks > lim {
		return fmt.Errorf("%w: uid %d (%d + %d > %d)", ErrOverLimit, uid, l.users[uid], blocks, lim)
	}
	if lim, ok := l.grpLimit[gid]; ok && l.groups[gid]+blocks > lim {
		return fmt.Errorf("%w: gid %d (%d + %d > %d)", ErrOverLimit, gid, l.groups[gid], blocks, lim)
	}
	return nil
}

// Change applies delta to the usage of uid and gid.
func (l *Ledger) Change(uid, gid uint32, delta int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[uid] += delta
	l.groups[gid] += delta
}

// User returns the blocks charged to uid.
func (l *Ledger) User(uid uint32) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[uid]
}

// Group returns the blocks charged to gid.
func (l *Ledger) Group(gid uint32) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.groups[gid]
}
