package place

import (
	"sync"

	"github.com/joshuapare/rgkit/gfs/rgrp"
)

// State is the per-mount placement memory: the regions allocations were
// recently satisfied from, the cursor of the forward scan and how often a
// try-lock on each recent region has failed. Mounts sharing a device each
// keep their own.
type State struct {
	mu      sync.Mutex
	recent  []*rgrp.Region
	forward *rgrp.Region
	tries   map[int]uint32
}

// NewState returns empty placement state.
func NewState() *State {
	return &State{tries: make(map[int]uint32)}
}

// recentFirst returns the recent region with header address last, or the
// head of the list when last is unset or no longer listed.
func (s *State) recentFirst(last uint64) *rgrp.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == 0 {
		return nil
	}
	if last != 0 {
		for _, r := range s.recent {
			if r.Addr() == last {
				return r
			}
		}
	}
	return s.recent[0]
}

// recentNext returns the region after cur, optionally dropping cur. If cur
// has already left the list the scan restarts at the head.
func (s *State) recentNext(cur *rgrp.Region, remove bool) *rgrp.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.recent {
		if r != cur {
			continue
		}
		var next *rgrp.Region
		if i+1 < len(s.recent) {
			next = s.recent[i+1]
		}
		if remove {
			s.recent = append(s.recent[:i], s.recent[i+1:]...)
		}
		return next
	}
	if len(s.recent) > 0 {
		return s.recent[0]
	}
	return nil
}

// recentAdd appends r unless it is already listed or the list is full.
func (s *State) recentAdd(r *rgrp.Region, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, x := range s.recent {
		if x == r {
			return
		}
		if count++; count >= max {
			return
		}
	}
	s.tries[r.Index] = 0
	s.recent = append(s.recent, r)
}

// Recent returns a copy of the recent list.
func (s *State) Recent() []*rgrp.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rgrp.Region(nil), s.recent...)
}

func (s *State) tryCount(r *rgrp.Region) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tries[r.Index]
}

func (s *State) tryFailed(r *rgrp.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tries[r.Index]++
}

func (s *State) tryReset(r *rgrp.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tries[r.Index] = 0
}

// forwardGet returns the forward-scan cursor. Unset, it starts each
// journal's node at its own share of the regions so nodes spread out.
func (s *State) forwardGet(cat *rgrp.Catalog, journals, jid uint32) *rgrp.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forward == nil {
		idx := 0
		if n := uint32(cat.Len()); journals > 0 && n >= journals {
			idx = int(uint64(n) * uint64(jid) / uint64(journals))
		}
		s.forward = cat.ByIndex(idx)
	}
	return s.forward
}

func (s *State) forwardSet(r *rgrp.Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forward = r
}

// Forward returns the current forward-scan cursor, nil when unset.
func (s *State) Forward() *rgrp.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forward
}
