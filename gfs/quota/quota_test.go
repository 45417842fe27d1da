package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_TracksUsage(t *testing.T) {
	l := NewLedger()
	l.Change(10, 20, 5)
	l.Change(10, 21, 3)
	l.Change(10, 20, -2)

	assert.Equal(t, int64(6), l.User(10))
	assert.Equal(t, int64(3), l.Group(20))
	assert.Equal(t, int64(3), l.Group(21))
}

func TestLedger_Limits(t *testing.T) {
	l := NewLedger()
	l.LimitUser(1, 10)
	l.LimitGroup(2, 4)

	require.NoError(t, l.Check(1, 3, 10))
	require.ErrorIs(t, l.Check(1, 2, 5), ErrOverLimit)

	l.Change(1, 3, 8)
	err := l.Check(1, 3, 3)
	require.ErrorIs(t, err, ErrOverLimit)
	require.Contains(t, err.Error(), "uid 1")
}

func TestUnlimited(t *testing.T) {
	var c Checker = Unlimited{}
	require.NoError(t, c.Check(0, 0, 1<<40))
	c.Change(0, 0, 1)
}
