package dirty

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memImage struct{ data []byte }

func (m memImage) Bytes() []byte { return m.data }
func (m memImage) FD() int       { return -1 }
func (m memImage) Mapped() bool  { return false }

func newTracker(pageSize int64) *Tracker {
	t := NewTracker(memImage{data: make([]byte, 64*1024)})
	t.pageSize = pageSize
	return t
}

func Test_Tracker_PageAlignment(t *testing.T) {
	tr := newTracker(4096)
	tr.Add(100, 200)

	got := tr.coalesce()
	require.Equal(t, []Range{{Off: 0, Len: 4096}}, got)
}

func Test_Tracker_Coalesce(t *testing.T) {
	tests := []struct {
		name string
		adds [][2]int
		want []Range
	}{
		{"adjacent", [][2]int{{4096, 4096}, {8192, 100}}, []Range{{Off: 4096, Len: 8192}}},
		{"overlapping", [][2]int{{4096, 5000}, {8000, 10}}, []Range{{Off: 4096, Len: 8192}}},
		{"separate", [][2]int{{20000, 10}, {0, 10}}, []Range{{Off: 0, Len: 4096}, {Off: 16384, Len: 4096}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTracker(4096)
			for _, a := range tt.adds {
				tr.Add(a[0], a[1])
			}
			require.Equal(t, tt.want, tr.CoalescedRanges())
		})
	}
}

func Test_Tracker_IgnoresEmptyRanges(t *testing.T) {
	tr := newTracker(4096)
	tr.Add(10, 0)
	require.Empty(t, tr.Ranges())
}

func Test_Tracker_FlushMemoryImageClears(t *testing.T) {
	tr := newTracker(4096)
	tr.Add(512, 512)
	require.NoError(t, tr.Flush(context.Background(), FlushAuto))
	require.Empty(t, tr.Ranges())
}

func Test_Tracker_FlushCancelled(t *testing.T) {
	tr := newTracker(4096)
	tr.Add(512, 512)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, tr.Flush(ctx, FlushFull), context.Canceled)
	require.Len(t, tr.Ranges(), 1)
}

func Test_ParseFlushMode(t *testing.T) {
	require.Equal(t, FlushAuto, ParseFlushMode("auto"))
	require.Equal(t, FlushDataOnly, ParseFlushMode("data"))
	require.Equal(t, FlushFull, ParseFlushMode("full"))
}
