package history

import (
	"sync"
	"testing"
	"time"

	"github.com/norasector/lacap/pkg/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFrame(seq uint64, at time.Time) *frame.Frame {
	return &frame.Frame{Sequence: seq, ArrivalTime: at}
}

func seqs(frames []*frame.Frame) []uint64 {
	ret := make([]uint64, len(frames))
	for i, f := range frames {
		ret[i] = f.Sequence
	}
	return ret
}

func TestEmpty(t *testing.T) {
	h := New(0)
	assert.Equal(t, DefaultCapacity, h.Cap())

	_, ok := h.Latest()
	assert.False(t, ok)
	_, ok = h.Interval()
	assert.False(t, ok)
	assert.Empty(t, h.Snapshot())
}

func TestEviction(t *testing.T) {
	const k = 3
	h := New(k)
	t0 := time.Now()

	for i := uint64(1); i <= k; i++ {
		assert.Nil(t, h.Push(mkFrame(i, t0.Add(time.Duration(i)*time.Second))))
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs(h.Snapshot()))

	evicted := h.Push(mkFrame(4, t0.Add(4*time.Second)))
	require.NotNil(t, evicted)
	assert.Equal(t, uint64(1), evicted.Sequence)
	assert.Equal(t, k, h.Len())
	assert.Equal(t, []uint64{2, 3, 4}, seqs(h.Snapshot()))

	for i := uint64(5); i < 20; i++ {
		h.Push(mkFrame(i, t0.Add(time.Duration(i)*time.Second)))
		assert.LessOrEqual(t, h.Len(), k)
	}
	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(19), latest.Sequence)
}

func TestInterval(t *testing.T) {
	h := New(5)
	t0 := time.Now()
	h.Push(mkFrame(1, t0))
	_, ok := h.Interval()
	assert.False(t, ok)

	h.Push(mkFrame(2, t0.Add(250*time.Millisecond)))
	dt, ok := h.Interval()
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, dt)

	_, _, ok = h.IntervalStats()
	assert.False(t, ok)

	h.Push(mkFrame(3, t0.Add(750*time.Millisecond)))
	mean, std, ok := h.IntervalStats()
	require.True(t, ok)
	assert.InDelta(t, 0.375, mean, 1e-9)
	assert.Greater(t, std, 0.0)
}

func TestSnapshotIsolated(t *testing.T) {
	h := New(2)
	h.Push(mkFrame(1, time.Now()))
	snap := h.Snapshot()
	h.Push(mkFrame(2, time.Now()))
	h.Push(mkFrame(3, time.Now()))

	assert.Equal(t, []uint64{1}, seqs(snap))
	assert.Equal(t, []uint64{2, 3}, seqs(h.Snapshot()))
}

func TestConcurrentReaders(t *testing.T) {
	h := New(4)
	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := h.Snapshot()
				for j := 1; j < len(snap); j++ {
					if snap[j].Sequence != snap[j-1].Sequence+1 {
						t.Errorf("out of order snapshot: %v", seqs(snap))
						return
					}
				}
			}
		}()
	}

	for i := uint64(0); i < 1000; i++ {
		h.Push(mkFrame(i, time.Now()))
	}
	close(done)
	wg.Wait()
	assert.Equal(t, 4, h.Len())
}
