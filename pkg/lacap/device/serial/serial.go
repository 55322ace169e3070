// Package serial reads capture frames from a UART.
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goserial "github.com/goburrow/serial"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 50 * time.Millisecond
)

// Config identifies the port. The device sampling mode is fixed by the
// hardware and is not configured here.
type Config struct {
	Address     string
	BaudRate    int
	ReadTimeout time.Duration
}

var serialOpen = func(c *goserial.Config) (io.ReadWriteCloser, error) {
	p, err := goserial.Open(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type SerialDevice struct {
	cfg  Config
	port io.ReadWriteCloser

	done      chan struct{}
	closeOnce sync.Once
}

func NewSerialDevice(cfg Config) (*SerialDevice, error) {
	if cfg.Address == "" {
		return nil, errors.New("serial: missing port address")
	}
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	port, err := serialOpen(&goserial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: could not open %s at %d baud: %w", cfg.Address, cfg.BaudRate, err)
	}

	return &SerialDevice{
		cfg:  cfg,
		port: port,
		done: make(chan struct{}),
	}, nil
}

func (d *SerialDevice) Name() string {
	return fmt.Sprintf("serial:%s@%d", d.cfg.Address, d.cfg.BaudRate)
}

// ReadUntil polls the port in ReadTimeout slices until data arrives, the
// deadline passes or the device is closed.
func (d *SerialDevice) ReadUntil(p []byte, deadline time.Time) (int, error) {
	for {
		select {
		case <-d.done:
			return 0, io.EOF
		default:
		}
		if !time.Now().Before(deadline) {
			return 0, nil
		}

		n, err := d.port.Read(p)
		if n > 0 {
			return n, nil
		}
		switch {
		case err == nil, errors.Is(err, goserial.ErrTimeout):
			continue
		}

		select {
		case <-d.done:
			return 0, io.EOF
		default:
		}
		return 0, fmt.Errorf("serial: could not read from %s: %w", d.cfg.Address, err)
	}
}

func (d *SerialDevice) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.port.Close()
	})
	return err
}
