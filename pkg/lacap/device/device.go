package device

import "github.com/norasector/lacap/pkg/frame"

// Device is a capture transport. Close must unblock a pending ReadUntil,
// which then reports io.EOF.
type Device interface {
	frame.Source
	Name() string
	Close() error
}
