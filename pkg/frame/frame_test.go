package frame

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves queued chunks. An empty queue behaves like a read
// timeout unless the source was closed.
type fakeSource struct {
	chunks [][]byte
	closed bool
	reads  int
}

func (f *fakeSource) push(chunks ...[]byte) {
	for _, c := range chunks {
		f.chunks = append(f.chunks, append([]byte(nil), c...))
	}
}

func (f *fakeSource) ReadUntil(p []byte, deadline time.Time) (int, error) {
	f.reads++
	if len(f.chunks) == 0 {
		if f.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	c := f.chunks[0]
	n := copy(p, c)
	if n < len(c) {
		f.chunks[0] = c[n:]
	} else {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func soon() time.Time { return time.Now().Add(time.Second) }

func randPayload(seed int64, n int) []byte {
	p := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(p)
	return p
}

func wire(t *testing.T, variant Variant, frames ...*Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := NewEncoder(&buf, variant)
	for _, f := range frames {
		require.NoError(t, enc.Encode(f))
	}
	return buf.Bytes()
}

func TestVariant(t *testing.T) {
	assert.Equal(t, 4, VariantLegacy.HeaderLength())
	assert.Equal(t, 5, VariantRateAware.HeaderLength())
	assert.Equal(t, "legacy", VariantLegacy.String())
	assert.Equal(t, "rate-aware", VariantRateAware.String())

	for _, name := range []string{"legacy", "rate-aware", "Rate_Aware", " b "} {
		_, err := ParseVariant(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseVariant("fancy")
	assert.Error(t, err)
}

func TestFrameHelpers(t *testing.T) {
	f := &Frame{
		DeclaredLength: PayloadSize,
		SampleRate:     8e6,
		TriggerIndex:   2100,
		Payload:        make([]byte, PayloadSize),
	}
	assert.Equal(t, 52, f.TriggerPosition())
	assert.Equal(t, 52, f.PreTrigger())
	assert.Equal(t, PayloadSize-52, f.PostTrigger())
	assert.InDelta(t, 52/8e6, f.TriggerTime(), 1e-15)
	assert.Equal(t, 256*time.Microsecond, f.Duration())
	assert.NoError(t, f.LengthMismatch())
	assert.Equal(t, 1, f.DistinctValues(100))

	f.DeclaredLength = 1000
	assert.True(t, errors.Is(f.LengthMismatch(), ErrLengthMismatch))
}

func TestRecoverable(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{nil, true},
		{ErrSyncTimeout, true},
		{ErrIncompleteFrame, true},
		{ErrRateSelector, true},
		{closedErr(io.EOF), false},
		{errors.New("boom"), false},
	} {
		assert.Equal(t, tc.want, Recoverable(tc.err), "%v", tc.err)
	}
}
