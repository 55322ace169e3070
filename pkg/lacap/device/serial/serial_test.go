package serial

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	goserial "github.com/goburrow/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	mu     sync.Mutex
	reads  [][]byte
	fail   error
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	time.Sleep(time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return 0, errors.New("file already closed")
	case len(p.reads) > 0:
		n := copy(b, p.reads[0])
		p.reads = p.reads[1:]
		return n, nil
	case p.fail != nil:
		return 0, p.fail
	}
	return 0, goserial.ErrTimeout
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func withPort(t *testing.T, port *fakePort) *goserial.Config {
	t.Helper()
	var got goserial.Config
	orig := serialOpen
	serialOpen = func(c *goserial.Config) (io.ReadWriteCloser, error) {
		got = *c
		return port, nil
	}
	t.Cleanup(func() { serialOpen = orig })
	return &got
}

func TestOpenDefaults(t *testing.T) {
	cfg := withPort(t, &fakePort{})

	dev, err := NewSerialDevice(Config{Address: "/dev/ttyUSB0"})
	require.NoError(t, err)
	defer dev.Close()

	assert.Equal(t, "/dev/ttyUSB0", cfg.Address)
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate)
	assert.Equal(t, "N", cfg.Parity)
	assert.Equal(t, DefaultReadTimeout, cfg.Timeout)
	assert.Equal(t, "serial:/dev/ttyUSB0@115200", dev.Name())
}

func TestOpenErrors(t *testing.T) {
	_, err := NewSerialDevice(Config{})
	assert.Error(t, err)

	orig := serialOpen
	defer func() { serialOpen = orig }()
	serialOpen = func(c *goserial.Config) (io.ReadWriteCloser, error) {
		return nil, errors.New("no such device")
	}
	_, err = NewSerialDevice(Config{Address: "COM11"})
	assert.Error(t, err)
}

func TestReadUntil(t *testing.T) {
	port := &fakePort{reads: [][]byte{{0x55, 0xAA}}}
	withPort(t, port)

	dev, err := NewSerialDevice(Config{Address: "COM3"})
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, 8)
	n, err := dev.ReadUntil(buf, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x55, 0xAA}, buf[:n])

	// port timeouts are retried until the deadline.
	start := time.Now()
	n, err = dev.ReadUntil(buf, start.Add(20*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReadFailure(t *testing.T) {
	withPort(t, &fakePort{fail: errors.New("device unplugged")})

	dev, err := NewSerialDevice(Config{Address: "COM3"})
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.ReadUntil(make([]byte, 1), time.Now().Add(time.Second))
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestCloseAbortsRead(t *testing.T) {
	withPort(t, &fakePort{})

	dev, err := NewSerialDevice(Config{Address: "COM3"})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := dev.ReadUntil(make([]byte, 1), time.Now().Add(time.Hour))
		errc <- err
	}()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, dev.Close())

	select {
	case err := <-errc:
		assert.Equal(t, io.EOF, err)
	case <-time.After(time.Second):
		t.Fatal("read not aborted by Close")
	}
}
