package viz

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/norasector/lacap/pkg/channel"
	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/timebase"
	"github.com/norasector/lacap/pkg/util"
)

// LatestSource provides the frame to draw, typically a *history.History.
type LatestSource interface {
	Latest() (*frame.Frame, bool)
}

// ChannelPlotter draws one logic channel of the most recent frame against
// time in microseconds, with the trigger position marked.
type ChannelPlotter struct {
	name        string
	channel     int
	src         LatestSource
	plotOptions []PlotOptions

	mu      sync.Mutex
	lastSeq uint64
	cached  *ImageContainer
}

func NewChannelPlotter(ch int, src LatestSource) *ChannelPlotter {
	return &ChannelPlotter{
		name:    fmt.Sprintf("CH%d", ch),
		channel: ch,
		src:     src,
	}
}

// ChannelPlotters returns one plotter per logic channel.
func ChannelPlotters(src LatestSource) []*ChannelPlotter {
	ret := make([]*ChannelPlotter, channel.NumChannels)
	for i := range ret {
		ret[i] = NewChannelPlotter(i, src)
	}
	return ret
}

func (cp *ChannelPlotter) Name() string {
	return cp.name
}

func (cp *ChannelPlotter) AddPlotOption(opt PlotOptions) {
	cp.plotOptions = append(cp.plotOptions, opt)
}

func (cp *ChannelPlotter) GetImage() *ImageContainer {
	f, ok := cp.src.Latest()
	if !ok || len(f.Payload) == 0 {
		return nil
	}

	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.cached != nil && cp.lastSeq == f.Sequence {
		return cp.cached
	}

	var (
		img *ImageContainer
		err error
	)
	renderTime := util.TimeOperationMicroseconds(func() {
		img, err = cp.render(f)
	})
	if err != nil {
		log.Warn().Err(err).Str("plot", cp.name).Msg("could not render channel")
		return nil
	}
	log.Debug().Str("plot", cp.name).Uint64("frame", f.Sequence).Int64("render_us", renderTime).Msg("rendered channel")
	cp.cached = img
	cp.lastSeq = f.Sequence
	return img
}

func (cp *ChannelPlotter) render(f *frame.Frame) (*ImageContainer, error) {
	var (
		cs   = channel.Demux(f.Payload)
		bits = cs[cp.channel]
		axis = timebase.Axis(f.SampleRate, len(bits))
		trig = f.TriggerTime() * 1e6
	)

	p := plotWithDefaults()
	p.Title.Text = cp.title(f, cs)
	p.Y.Label.Text = cp.name
	p.Y.Min = -0.2
	p.Y.Max = 1.2
	p.X.Label.Text = "t (µs)"
	p.X.Min = 0
	p.X.Max = axis[len(axis)-1] * 1e6

	for _, opt := range cp.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(bits))
	for i, b := range bits {
		xys[i] = plotter.XY{X: axis[i] * 1e6, Y: float64(b)}
	}
	wave, err := plotter.NewLine(xys)
	if err != nil {
		return nil, err
	}
	wave.StepStyle = plotter.PostStep
	wave.LineStyle.Color = waveColor

	marker, err := plotter.NewLine(plotter.XYs{{X: trig, Y: p.Y.Min}, {X: trig, Y: p.Y.Max}})
	if err != nil {
		return nil, err
	}
	marker.LineStyle.Color = triggerColor
	marker.LineStyle.Width = vg.Points(2)
	marker.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	p.Add(wave, marker)

	return encodePNG(cp.name, p)
}

func (cp *ChannelPlotter) title(f *frame.Frame, cs channel.ChannelSet) string {
	return fmt.Sprintf("%s  %s  %d edges", cp.name, Describe(f), len(cs.Edges(cp.channel)))
}

func encodePNG(name string, p *plot.Plot) (*ImageContainer, error) {
	w, err := p.WriterTo(10*vg.Inch, 2*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var imageData bytes.Buffer
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return &ImageContainer{name: name, data: imageData.Bytes()}, nil
}
