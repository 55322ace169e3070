package file

import (
	"io"
	"os"
	"sync"
	"time"
)

// FileDevice replays a raw capture, optionally paced to mimic a UART.
type FileDevice struct {
	name        string
	r           io.Reader
	closer      io.Closer
	readSize    int
	timeBetween time.Duration
	tick        *time.Ticker

	done      chan struct{}
	closeOnce sync.Once
}

// NewFileDevice opens a capture file. Each read returns at most readSize
// bytes and, when timeBetween is positive, reads are spaced by timeBetween.
func NewFileDevice(file string, readSize int, timeBetween time.Duration) (*FileDevice, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	dev := NewReaderDevice(file, f, readSize, timeBetween)
	dev.closer = f
	return dev, nil
}

// NewReaderDevice replays the bytes of r.
func NewReaderDevice(name string, r io.Reader, readSize int, timeBetween time.Duration) *FileDevice {
	dev := &FileDevice{
		name:        name,
		r:           r,
		readSize:    readSize,
		timeBetween: timeBetween,
		done:        make(chan struct{}),
	}
	if timeBetween > 0 {
		dev.tick = time.NewTicker(timeBetween)
	}
	return dev
}

func (f *FileDevice) Name() string {
	return "file:" + f.name
}

func (f *FileDevice) ReadUntil(p []byte, deadline time.Time) (int, error) {
	select {
	case <-f.done:
		return 0, io.EOF
	default:
	}

	if f.tick != nil {
		wait := time.NewTimer(time.Until(deadline))
		defer wait.Stop()

		select {
		case <-f.done:
			return 0, io.EOF
		case <-wait.C:
			return 0, nil
		case <-f.tick.C:
		}
	}

	if f.readSize > 0 && len(p) > f.readSize {
		p = p[:f.readSize]
	}
	n, err := f.r.Read(p)
	if n > 0 {
		return n, nil
	}
	return 0, err
}

func (f *FileDevice) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		if f.tick != nil {
			f.tick.Stop()
		}
		if f.closer != nil {
			err = f.closer.Close()
		}
	})
	return err
}
