package lacap

import (
	"context"

	"github.com/norasector/lacap/pkg/frame"
)

// FrameOutput consumes decoded frames.
type FrameOutput interface {
	// Start runs until ctx is done or the output fails.
	Start(ctx context.Context) error
	// Receive returns the channel frames are delivered on. The pipeline
	// never blocks on it: a full channel drops the frame for that output.
	Receive() chan<- *frame.Frame
}
