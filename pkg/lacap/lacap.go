// Package lacap runs the logic-analyzer acquisition pipeline: it pulls bytes
// from a capture device, synchronizes on frame markers, decodes frames and
// hands them to the frame history and to frame outputs.
package lacap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/history"
	"github.com/norasector/lacap/pkg/lacap/device"
	"github.com/norasector/lacap/pkg/timebase"
	"github.com/norasector/lacap/pkg/util"
	"github.com/norasector/lacap/pkg/viz"
	"golang.org/x/sync/errgroup"
)

// Frames whose first samples hold few distinct values are most likely the
// device test signal; they get flagged in the log.
const (
	testPatternSamples   = 100
	testPatternThreshold = 20
)

// Stats are running acquisition counters.
type Stats struct {
	Frames           uint64
	SyncTimeouts     uint64
	Discarded        uint64 // incomplete frames and invalid headers
	LengthMismatches uint64
	SkippedBytes     uint64
	DroppedOutputs   uint64
}

type Capture struct {
	device    device.Device
	opts      Options
	stream    *frame.Stream
	sync      *frame.Synchronizer
	dec       *frame.Decoder
	history   *history.History
	writeAPI  api.WriteAPI
	vizServer *viz.Server
	logger    zerolog.Logger

	seq   uint64
	stats Stats

	mu     sync.Mutex
	cancel context.CancelFunc
}

type CaptureOption func(c *Capture) error

func WithInfluxDB(writeAPI api.WriteAPI) CaptureOption {
	return func(c *Capture) error {
		c.writeAPI = writeAPI
		return nil
	}
}

func WithImageServer(vizServer *viz.Server) CaptureOption {
	return func(c *Capture) error {
		c.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) CaptureOption {
	return func(c *Capture) error {
		c.logger = logger
		return nil
	}
}

func NewCapture(dev device.Device, options Options, opts ...CaptureOption) (*Capture, error) {
	if dev == nil {
		return nil, fmt.Errorf("lacap: missing capture device")
	}
	if options.PayloadSize <= 0 || options.SyncTimeout <= 0 || options.FrameTimeout <= 0 {
		return nil, fmt.Errorf("lacap: must specify payload size, sync timeout and frame timeout")
	}

	stream := frame.NewStream(dev, options.ReadChunk)
	c := &Capture{
		device:   dev,
		opts:     options,
		stream:   stream,
		sync:     frame.NewSynchronizer(stream),
		dec:      frame.NewDecoder(stream, options.Variant, options.PayloadSize),
		history:  history.New(options.HistoryCapacity),
		writeAPI: util.NopWriteAPI{}, // overwritten with option
		logger:   log.Logger,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			stream.Release()
			return nil, err
		}
	}

	return c, nil
}

// History returns the window of recent frames. Readers should use Snapshot.
func (c *Capture) History() *history.History {
	return c.history
}

func (c *Capture) Stats() Stats {
	return Stats{
		Frames:           atomic.LoadUint64(&c.stats.Frames),
		SyncTimeouts:     atomic.LoadUint64(&c.stats.SyncTimeouts),
		Discarded:        atomic.LoadUint64(&c.stats.Discarded),
		LengthMismatches: atomic.LoadUint64(&c.stats.LengthMismatches),
		SkippedBytes:     atomic.LoadUint64(&c.stats.SkippedBytes),
		DroppedOutputs:   atomic.LoadUint64(&c.stats.DroppedOutputs),
	}
}

// Next acquires the next frame: it scans for a marker and decodes the frame
// that follows. Errors are those of the frame package; only
// frame.ErrStreamClosed is terminal.
//
// Next must not be called concurrently, nor while Start is running.
func (c *Capture) Next(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	skipped, err := c.sync.Sync(deadline(ctx, c.opts.SyncTimeout))
	atomic.AddUint64(&c.stats.SkippedBytes, uint64(skipped))
	if err != nil {
		return nil, err
	}

	f := &frame.Frame{Sequence: c.seq + 1}
	if err := c.dec.Decode(f, deadline(ctx, c.opts.FrameTimeout)); err != nil {
		return nil, err
	}
	c.seq = f.Sequence
	return f, nil
}

func deadline(ctx context.Context, d time.Duration) time.Time {
	dl := time.Now().Add(d)
	if cdl, ok := ctx.Deadline(); ok && cdl.Before(dl) {
		return cdl
	}
	return dl
}

// Stop aborts acquisition and releases the device.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	return c.device.Close()
}

// Start runs acquisition, the image server and the frame outputs until ctx
// is done, Stop is called, the device stream closes or MaxFrames frames
// were received. The device is closed when Start returns; reaching
// MaxFrames returns nil.
func (c *Capture) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	// Closing the device aborts a read in flight.
	eg.Go(func() error {
		<-ctx.Done()
		return c.device.Close()
	})

	if c.vizServer != nil {
		eg.Go(func() error {
			return c.vizServer.Run(ctx)
		})
	}

	for _, output := range c.opts.Outputs {
		thisOutput := output
		eg.Go(func() error {
			return thisOutput.Start(ctx)
		})
	}

	var acquireErr error
	eg.Go(func() error {
		defer cancel()
		defer c.stream.Release()
		acquireErr = c.acquire(ctx)
		return acquireErr
	})

	c.logger.Info().
		Str("device", c.device.Name()).
		Str("variant", c.opts.Variant.String()).
		Int("payload_size", c.opts.PayloadSize).
		Int("history", c.history.Cap()).
		Int("max_frames", c.opts.MaxFrames).
		Msg("starting acquisition")

	err := eg.Wait()
	if acquireErr == nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Capture) acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := c.Next(ctx)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case err == nil:
			c.publish(f)
			if limit := c.opts.MaxFrames; limit > 0 && atomic.LoadUint64(&c.stats.Frames) >= uint64(limit) {
				c.logger.Info().Int("max_frames", limit).Msg("frame limit reached")
				return nil
			}

		case errors.Is(err, frame.ErrSyncTimeout):
			atomic.AddUint64(&c.stats.SyncTimeouts, 1)
			c.logger.Debug().Err(err).Msg("no frame marker")
			go c.writeAPI.WritePoint(influxdb2.NewPoint("lacap.sync",
				map[string]string{
					"device": c.device.Name(),
				},
				map[string]interface{}{
					"timeouts": 1,
				}, time.Now()))

		case errors.Is(err, frame.ErrStreamClosed):
			c.logger.Warn().Err(err).Str("device", c.device.Name()).Msg("capture stream closed")
			return err

		case frame.Recoverable(err):
			atomic.AddUint64(&c.stats.Discarded, 1)
			c.logger.Warn().Err(err).Msg("frame discarded, resyncing")
			go c.writeAPI.WritePoint(influxdb2.NewPoint("lacap.sync",
				map[string]string{
					"device": c.device.Name(),
				},
				map[string]interface{}{
					"discarded": 1,
				}, time.Now()))

		default:
			return err
		}
	}
}

func (c *Capture) publish(f *frame.Frame) {
	atomic.AddUint64(&c.stats.Frames, 1)
	c.history.Push(f)

	mismatch := f.LengthMismatch()
	if mismatch != nil {
		atomic.AddUint64(&c.stats.LengthMismatches, 1)
		c.logger.Warn().Err(mismatch).Uint64("frame", f.Sequence).Msg("length field mismatch")
	}

	ev := c.logger.Info().
		Uint64("frame", f.Sequence).
		Uint16("trigger_index", f.TriggerIndex).
		Int("trigger", f.TriggerPosition()).
		Str("sample_rate", timebase.FormatRate(f.SampleRate))
	if dt, ok := c.history.Interval(); ok {
		ev = ev.Dur("interval", dt)
	}
	mean, std, haveStats := c.history.IntervalStats()
	if haveStats {
		ev = ev.Float64("interval_mean_s", mean).Float64("interval_std_s", std)
	}
	if n := f.DistinctValues(testPatternSamples); n < testPatternThreshold {
		ev = ev.Int("distinct_values", n)
	}
	ev.Msg("frame received")

	skippedOutputs := 0
	for _, output := range c.opts.Outputs {
		select {
		case output.Receive() <- f:
			// We will not wait on blocked outputs.
		default:
			skippedOutputs++
		}
	}
	atomic.AddUint64(&c.stats.DroppedOutputs, uint64(skippedOutputs))

	fields := map[string]interface{}{
		"sequence":         int64(f.Sequence),
		"trigger_position": f.TriggerPosition(),
		"sample_rate":      f.SampleRate,
		"declared_length":  int(f.DeclaredLength),
		"length_mismatch":  util.Bool01(mismatch != nil),
		"skipped_outputs":  skippedOutputs,
	}
	if haveStats {
		fields["interval_mean_s"] = mean
		fields["interval_std_s"] = std
	}
	go c.writeAPI.WritePoint(influxdb2.NewPoint("lacap.frame",
		map[string]string{
			"device":  c.device.Name(),
			"variant": f.Variant.String(),
		},
		fields, f.ArrivalTime))
}
