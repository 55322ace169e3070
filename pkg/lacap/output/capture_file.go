package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/norasector/lacap/pkg/frame"
)

// CaptureFileOutput saves the raw payload of every frame to its own file.
type CaptureFileOutput struct {
	dir      string
	recvChan chan *frame.Frame
}

func NewCaptureFileOutput(dir string) *CaptureFileOutput {
	return &CaptureFileOutput{
		dir:      dir,
		recvChan: make(chan *frame.Frame, receiveChannels),
	}
}

// CaptureFileName is the name a frame's payload is saved under.
func CaptureFileName(f *frame.Frame) string {
	return fmt.Sprintf("capture_frame_%d_%s.bin", f.Sequence, f.ArrivalTime.Format("150405"))
}

func (s *CaptureFileOutput) Receive() chan<- *frame.Frame {
	return s.recvChan
}

func (s *CaptureFileOutput) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.recvChan:
			fname := filepath.Join(s.dir, CaptureFileName(f))
			if err := os.WriteFile(fname, f.Payload, 0o644); err != nil {
				return fmt.Errorf("output: could not save frame %d: %w", f.Sequence, err)
			}
			log.Debug().Str("file", fname).Uint64("frame", f.Sequence).Msg("frame saved")
		}
	}
}
