package config

import (
	"time"

	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/history"
)

const (
	DefaultBaudRate     = 115200
	DefaultSyncTimeout  = 5 * time.Second
	DefaultFrameTimeout = 2 * time.Second
	DefaultReadTimeout  = 50 * time.Millisecond
	DefaultVizInterval  = 100 * time.Millisecond
)

// Normalize fills in defaults. It must be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Device == "" {
		cfg.Device = "serial"
		if cfg.PlaybackLocation != "" {
			cfg.Device = "file"
		}
	}
	if cfg.Serial.BaudRate == 0 {
		cfg.Serial.BaudRate = DefaultBaudRate
	}
	if cfg.Serial.ReadTimeout == 0 {
		cfg.Serial.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Protocol.PayloadSize == 0 {
		cfg.Protocol.PayloadSize = frame.PayloadSize
	}
	if cfg.HistoryCapacity == 0 {
		cfg.HistoryCapacity = history.DefaultCapacity
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	if cfg.FrameTimeout == 0 {
		cfg.FrameTimeout = DefaultFrameTimeout
	}
	if cfg.VizServer.Port != 0 && cfg.VizServer.UpdateInterval == 0 {
		cfg.VizServer.UpdateInterval = DefaultVizInterval
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
