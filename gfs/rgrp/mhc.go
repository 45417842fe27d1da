package rgrp

import (
	"container/list"
	"sync"

	"github.com/joshuapare/rgkit/internal/format"
)

// MHC caches the meta headers of blocks that recently became free
// metadata, so a block handed out again continues its generation sequence
// without a disk read.
type MHC struct {
	mu    sync.Mutex
	max   int
	lru   *list.List // front is newest
	byBlk map[uint64]*list.Element
}

type mhcEntry struct {
	blk    uint64
	region int
	mh     format.MetaHeader
}

// NewMHC returns a cache holding at most max headers. max <= 0 disables
// caching.
func NewMHC(max int) *MHC {
	return &MHC{max: max, lru: list.New(), byBlk: make(map[uint64]*list.Element)}
}

// Add caches the header of blk with its generation advanced by two.
func (m *MHC) Add(region int, blk uint64, mh format.MetaHeader) {
	if m.max <= 0 || mh.Magic != format.Magic {
		return
	}
	mh.Generation += 2

	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.byBlk[blk]; ok {
		m.lru.Remove(el)
	}
	m.byBlk[blk] = m.lru.PushFront(&mhcEntry{blk: blk, region: region, mh: mh})
	m.trimLocked(m.max)
}

// Fish removes and returns the cached header of blk.
func (m *MHC) Fish(blk uint64) (format.MetaHeader, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.byBlk[blk]
	if !ok {
		return format.MetaHeader{}, false
	}
	m.lru.Remove(el)
	delete(m.byBlk, blk)
	return el.Value.(*mhcEntry).mh, true
}

// Zap drops every header cached for a region.
func (m *MHC) Zap(region int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for el := m.lru.Front(); el != nil; {
		next := el.Next()
		if e := el.Value.(*mhcEntry); e.region == region {
			m.lru.Remove(el)
			delete(m.byBlk, e.blk)
		}
		el = next
	}
}

// Trim drops the oldest headers until at most n remain.
func (m *MHC) Trim(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimLocked(n)
}

func (m *MHC) trimLocked(n int) {
	for m.lru.Len() > n {
		el := m.lru.Back()
		m.lru.Remove(el)
		delete(m.byBlk, el.Value.(*mhcEntry).blk)
	}
}

// Len returns the number of cached headers.
func (m *MHC) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}
