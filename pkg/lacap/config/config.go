package config

import (
	"fmt"
	"os"
	"time"

	"github.com/norasector/lacap/pkg/frame"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Device             string              `yaml:"device"`
	Serial             Serial              `yaml:"serial"`
	PlaybackLocation   string              `yaml:"playback_location"`
	PlaybackReadSize   int                 `yaml:"playback_read_size"`
	PlaybackInterval   time.Duration       `yaml:"playback_interval"`
	Protocol           Protocol            `yaml:"protocol"`
	HistoryCapacity    int                 `yaml:"history_capacity"`
	MaxFrames          int                 `yaml:"max_frames"`
	SyncTimeout        time.Duration       `yaml:"sync_timeout"`
	FrameTimeout       time.Duration       `yaml:"frame_timeout"`
	CaptureDir         string              `yaml:"capture_dir"`
	OutputDestinations []OutputDestination `yaml:"output_destinations"`
	LogFile            string              `yaml:"log_file"`
	LogLevel           string              `yaml:"log_level"`
	VizServer          struct {
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type Serial struct {
	Address     string        `yaml:"address"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type Protocol struct {
	Variant     frame.Variant `yaml:"variant"`
	PayloadSize int           `yaml:"payload_size"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads, validates and normalizes a YAML configuration file.
func Load(fname string) (*Config, error) {
	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("config: could not read %q: %w", fname, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	cfg := Config{
		Protocol: Protocol{Variant: frame.VariantRateAware},
	}
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: could not decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}
