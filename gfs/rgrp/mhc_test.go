package rgrp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joshuapare/rgkit/internal/format"
)

func mh(gen uint64) format.MetaHeader {
	return format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeLF, Generation: gen}
}

func Test_MHC_FishAdvancesGeneration(t *testing.T) {
	m := NewMHC(10)
	m.Add(0, 100, mh(7))

	got, ok := m.Fish(100)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), got.Generation)
	assert.Equal(t, format.MetaTypeLF, got.Type)

	_, ok = m.Fish(100)
	assert.False(t, ok, "fish removes the entry")
}

func Test_MHC_TrimDropsOldest(t *testing.T) {
	m := NewMHC(3)
	for blk := uint64(1); blk <= 5; blk++ {
		m.Add(0, blk, mh(0))
	}
	assert.Equal(t, 3, m.Len())
	_, ok := m.Fish(1)
	assert.False(t, ok)
	_, ok = m.Fish(5)
	assert.True(t, ok)

	m.Trim(1)
	assert.Equal(t, 1, m.Len())
	_, ok = m.Fish(4)
	assert.True(t, ok, "newest survives a trim")
}

func Test_MHC_ZapAndReAdd(t *testing.T) {
	m := NewMHC(10)
	m.Add(0, 1, mh(0))
	m.Add(1, 2, mh(0))
	m.Add(0, 3, mh(0))
	m.Add(0, 3, mh(4))
	assert.Equal(t, 3, m.Len(), "re-adding replaces")

	m.Zap(0)
	assert.Equal(t, 1, m.Len())
	_, ok := m.Fish(2)
	assert.True(t, ok)
}

func Test_MHC_Disabled(t *testing.T) {
	m := NewMHC(0)
	m.Add(0, 1, mh(0))
	assert.Zero(t, m.Len())

	m = NewMHC(10)
	m.Add(0, 1, format.MetaHeader{})
	assert.Zero(t, m.Len(), "blocks without a meta header are not cached")
}
