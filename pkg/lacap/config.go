package lacap

import (
	"time"

	"github.com/norasector/lacap/pkg/frame"
)

// Options configure the acquisition pipeline. Transport identity is
// carried by the device handed to NewCapture.
type Options struct {
	Variant         frame.Variant
	PayloadSize     int
	HistoryCapacity int
	SyncTimeout     time.Duration // search budget for one marker
	FrameTimeout    time.Duration // budget for header and payload once synced
	ReadChunk       int
	MaxFrames       int // stop after this many frames, 0 for no limit
	Outputs         []FrameOutput
}
