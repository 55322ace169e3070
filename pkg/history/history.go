// Package history keeps a bounded window of the most recently decoded frames.
package history

import (
	"sync"
	"time"

	"github.com/norasector/lacap/pkg/frame"
	"gonum.org/v1/gonum/stat"
)

// DefaultCapacity is the number of frames retained when none is configured.
const DefaultCapacity = 5

// History is a bounded FIFO of frames in arrival order.
// It is safe for one writer and any number of readers.
type History struct {
	mu     sync.RWMutex
	frames []*frame.Frame
	size   int
}

func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		frames: make([]*frame.Frame, 0, capacity),
		size:   capacity,
	}
}

// Push appends f, evicting and returning the oldest frame when full.
func (h *History) Push(f *frame.Frame) *frame.Frame {
	h.mu.Lock()
	defer h.mu.Unlock()

	var evicted *frame.Frame
	if len(h.frames) == h.size {
		evicted = h.frames[0]
		copy(h.frames, h.frames[1:])
		h.frames[len(h.frames)-1] = nil
		h.frames = h.frames[:len(h.frames)-1]
	}
	h.frames = append(h.frames, f)
	return evicted
}

// Latest returns the most recently pushed frame.
func (h *History) Latest() (*frame.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.frames) == 0 {
		return nil, false
	}
	return h.frames[len(h.frames)-1], true
}

// Interval returns the arrival time difference of the two newest frames.
func (h *History) Interval() (time.Duration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.frames)
	if n < 2 {
		return 0, false
	}
	return h.frames[n-1].ArrivalTime.Sub(h.frames[n-2].ArrivalTime), true
}

// IntervalStats returns the mean and standard deviation, in seconds, of the
// inter-arrival intervals over the window. ok is false with fewer than 3 frames.
func (h *History) IntervalStats() (mean, std float64, ok bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.frames) < 3 {
		return 0, 0, false
	}
	dts := make([]float64, 0, len(h.frames)-1)
	for i := 1; i < len(h.frames); i++ {
		dts = append(dts, h.frames[i].ArrivalTime.Sub(h.frames[i-1].ArrivalTime).Seconds())
	}
	mean, std = stat.MeanStdDev(dts, nil)
	return mean, std, true
}

// Snapshot returns the current window, oldest first.
// The returned slice is owned by the caller; the frames are shared and must
// not be modified.
func (h *History) Snapshot() []*frame.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*frame.Frame, len(h.frames))
	copy(out, h.frames)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.frames)
}

func (h *History) Cap() int { return h.size }
