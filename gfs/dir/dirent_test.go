package dir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/internal/format"
)

func newBlock() block {
	return block{
		b:      make([]byte, 512),
		start:  format.LeafHeaderSize,
		where:  "test leaf",
		faults: consist.New(zap.NewNop()),
	}
}

func put(t *testing.T, k block, s string, count int) int {
	t.Helper()
	off, err := k.slot(len(s), count)
	require.NoError(t, err)
	off = k.carve(off, len(s), count)
	k.fill(off, []byte(s), format.Hash([]byte(s)), format.Inum{Formal: 7, Addr: 7}, format.FileReg)
	return off
}

func TestBlock_CarveAndFold(t *testing.T) {
	k := newBlock()
	room := len(k.b) - k.start

	a := put(t, k, "alpha", 0)
	require.Equal(t, k.start, a)
	require.Equal(t, room, k.recLen(a))

	b := put(t, k, "beta", 1)
	require.Equal(t, a+format.DirentSize(5), b)
	require.Equal(t, format.DirentSize(5), k.recLen(a))
	require.Equal(t, room-format.DirentSize(5), k.recLen(b))

	cur, prev, err := k.search([]byte("beta"), format.Hash([]byte("beta")), 2)
	require.NoError(t, err)
	require.Equal(t, b, cur)
	require.Equal(t, a, prev)

	// Deleting the first entry leaves a tombstone holding its space.
	require.NoError(t, k.del(-1, a))
	require.False(t, k.live(a))
	require.Equal(t, format.DirentSize(5), k.recLen(a))

	// A name that fits reuses the tombstone.
	c := put(t, k, "gam", 1)
	require.Equal(t, a, c)
	require.Equal(t, format.DirentSize(5), k.recLen(c))

	// Deleting a later entry folds its space into the one before.
	require.NoError(t, k.del(c, b))
	require.Equal(t, room, k.recLen(c))

	ents, err := k.collect(1)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "gam", ents[0].Name)

	// Back to empty: the first entry spans the block as a tombstone.
	require.NoError(t, k.del(-1, c))
	off, err := k.slot(format.MaxNameLen, 0)
	require.NoError(t, err)
	require.Equal(t, k.start, off)
}

func TestBlock_NoRoom(t *testing.T) {
	k := newBlock()
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	put(t, k, string(long), 0)
	_, err := k.slot(200, 1)
	require.ErrorIs(t, err, errNoRoom)
	// A name that fits beside the first still finds room.
	_, err = k.slot(100, 1)
	require.NoError(t, err)
	require.False(t, k.faults.Withdrawn())
}

func TestBlock_BadRecordLengthFaults(t *testing.T) {
	k := newBlock()
	put(t, k, "alpha", 0)
	format.PutU16(k.b, k.start+format.DirentRecLenOffset, 12)

	_, _, err := k.search([]byte("alpha"), format.Hash([]byte("alpha")), 1)
	require.ErrorIs(t, err, consist.ErrConsistency)
	require.True(t, k.faults.Withdrawn())
}

func TestBlock_CountMismatchFaults(t *testing.T) {
	k := newBlock()
	put(t, k, "alpha", 0)
	put(t, k, "beta", 1)

	_, err := k.collect(1)
	require.ErrorIs(t, err, consist.ErrConsistency)
}

func TestEmit_KeepsCollisionGroupsTogether(t *testing.T) {
	ents := []Entry{
		{Name: "c", Hash: 20},
		{Name: "bb", Hash: 11},
		{Name: "z", Hash: 4},
		{Name: "a", Hash: 10},
	}
	limit := func(n int, got *[]string) FillFunc {
		return func(e Entry) bool {
			if len(*got) == n {
				return false
			}
			*got = append(*got, e.Name)
			return true
		}
	}

	// "a" and "bb" share cursor 5; once something has been returned the
	// pair is held back for the next call, even with room to spare.
	var all []string
	cursor, copied := uint64(0), false
	require.True(t, emit(ents, &cursor, &copied, limit(10, &all)))
	require.Equal(t, []string{"z"}, all)
	require.Equal(t, uint64(5), cursor)

	copied = false
	require.False(t, emit(ents, &cursor, &copied, limit(10, &all)))
	require.Equal(t, []string{"z", "a", "bb", "c"}, all)
	require.Equal(t, uint64(11), cursor)

	var first []string
	cursor, copied = 0, false
	require.True(t, emit(ents, &cursor, &copied, limit(2, &first)))
	require.Equal(t, []string{"z"}, first)
	require.Equal(t, uint64(5), cursor)

	var second []string
	copied = false
	require.True(t, emit(ents, &cursor, &copied, limit(2, &second)))
	require.Equal(t, []string{"a", "bb"}, second)
	require.Equal(t, uint64(10), cursor)
}
