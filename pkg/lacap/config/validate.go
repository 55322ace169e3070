package config

import (
	"fmt"
	"math"

	"github.com/norasector/lacap/pkg/frame"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	switch cfg.Device {
	case "":
		if cfg.Serial.Address == "" && cfg.PlaybackLocation == "" {
			return fmt.Errorf("config: need serial.address or playback_location")
		}
	case "serial":
		if cfg.Serial.Address == "" {
			return fmt.Errorf("config: serial device requires serial.address")
		}
	case "file":
		if cfg.PlaybackLocation == "" {
			return fmt.Errorf("config: file device requires playback_location")
		}
	default:
		return fmt.Errorf("config: unknown device %q", cfg.Device)
	}

	switch cfg.Protocol.Variant {
	case frame.VariantLegacy, frame.VariantRateAware:
	default:
		return fmt.Errorf("config: unknown protocol variant %v", cfg.Protocol.Variant)
	}

	if n := cfg.Protocol.PayloadSize; n < 0 || n > math.MaxUint16 {
		return fmt.Errorf("config: payload_size %d out of range", n)
	}

	for name, v := range map[string]int64{
		"history_capacity":    int64(cfg.HistoryCapacity),
		"max_frames":          int64(cfg.MaxFrames),
		"sync_timeout":        int64(cfg.SyncTimeout),
		"frame_timeout":       int64(cfg.FrameTimeout),
		"playback_read_size":  int64(cfg.PlaybackReadSize),
		"playback_interval":   int64(cfg.PlaybackInterval),
		"serial.baud_rate":    int64(cfg.Serial.BaudRate),
		"serial.read_timeout": int64(cfg.Serial.ReadTimeout),
	} {
		if v < 0 {
			return fmt.Errorf("config: %s must not be negative", name)
		}
	}

	for _, dest := range cfg.OutputDestinations {
		if dest.Host == "" || dest.Port <= 0 || dest.Port > math.MaxUint16 {
			return fmt.Errorf("config: invalid output destination %s:%d", dest.Host, dest.Port)
		}
	}

	return nil
}
