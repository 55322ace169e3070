// Command lacap-gen writes a synthetic capture that the file device can
// replay: frames carrying a walking-bit pattern on each channel, separated
// by random bytes.
package main

import (
	"bufio"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/norasector/lacap/pkg/channel"
	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/timebase"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)

	var (
		outFile  = flag.String("o", "capture.raw", "output file")
		count    = flag.Int("n", 10, "number of frames")
		variant  = flag.String("variant", frame.VariantRateAware.String(), "protocol variant (legacy, rate-aware)")
		rateSel  = flag.Uint("rate", 2, "rate selector, 0-15")
		noiseLen = flag.Int("noise", 16, "maximum random bytes between frames")
		size     = flag.Int("size", frame.PayloadSize, "payload size")
	)
	flag.Parse()

	v, err := frame.ParseVariant(*variant)
	if err != nil {
		log.Fatal().Err(err).Msg("bad variant")
	}
	if *rateSel > timebase.MaxRateSelector {
		log.Fatal().Uint("rate", *rateSel).Msg("rate selector out of range")
	}

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create output")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := frame.NewEncoder(w, v)
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	var trigger uint16
	for i := 0; i < *count; i++ {
		if _, err := w.Write(noise(rnd, *noiseLen)); err != nil {
			log.Fatal().Err(err).Msg("write failed")
		}

		trigger += uint16(rnd.Intn(*size))
		fr := &frame.Frame{
			DeclaredLength: uint16(*size),
			RateSelector:   uint8(*rateSel),
			TriggerIndex:   trigger,
			Payload:        pattern(*size, i),
		}
		if err := enc.Encode(fr); err != nil {
			log.Fatal().Err(err).Msg("encode failed")
		}
	}

	if err := w.Flush(); err != nil {
		log.Fatal().Err(err).Msg("flush failed")
	}

	log.Info().
		Str("file", *outFile).
		Int("frames", *count).
		Str("variant", v.String()).
		Str("sample_rate", timebase.FormatRate(timebase.RateFromSelector(uint8(*rateSel)))).
		Msg("capture written")
}

// Channel c toggles every 2^(c+1) samples, shifted by the frame number.
func pattern(size, frameNum int) []byte {
	var cs channel.ChannelSet
	for c := range cs {
		cs[c] = make([]byte, size)
		period := 1 << uint(c+1)
		for s := range cs[c] {
			cs[c][s] = byte(((s + frameNum) / period) & 1)
		}
	}
	return cs.Mux()
}

// Random filler that never forms a frame marker, even with the last
// payload byte before it.
func noise(rnd *rand.Rand, max int) []byte {
	if max <= 0 {
		return nil
	}
	b := make([]byte, rnd.Intn(max+1))
	for i := range b {
		b[i] = byte(rnd.Intn(256))
		if b[i] == frame.MarkerLo && (i == 0 || b[i-1] == frame.MarkerHi) {
			b[i] = 0
		}
	}
	return b
}
