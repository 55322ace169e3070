package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/lacap"
	"github.com/norasector/lacap/pkg/lacap/config"
	"github.com/norasector/lacap/pkg/lacap/device"
	"github.com/norasector/lacap/pkg/lacap/device/file"
	"github.com/norasector/lacap/pkg/lacap/device/serial"
	"github.com/norasector/lacap/pkg/lacap/output"
	"github.com/norasector/lacap/pkg/util"
	"github.com/norasector/lacap/pkg/viz"
)

const fileByteReadSize = 4096

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "lacap.yaml", "YAML config file")

	flag.Parse()
	if configFile == nil {
		flag.Usage()
		os.Exit(1)
	}

	opts, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config file")
	}

	var logOut io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if opts.LogFile != "" {
		logOut = zerolog.MultiLevelWriter(logOut, &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	level, err := zerolog.ParseLevel(opts.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", opts.LogLevel).Msg("invalid log level")
	}
	log.Logger = zerolog.New(logOut).With().Timestamp().Logger().Level(level)

	var device device.Device

	switch opts.Device {
	case "file":
		log.Info().Str("device", "file").Str("file", opts.PlaybackLocation).Msg("initializing device...")
		readSize := opts.PlaybackReadSize
		if readSize == 0 {
			readSize = fileByteReadSize
		}
		device, err = file.NewFileDevice(opts.PlaybackLocation, readSize, opts.PlaybackInterval)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to init file reader")
		}
	default:
		log.Info().Str("device", "serial").Str("address", opts.Serial.Address).Msg("initializing device...")
		device, err = serial.NewSerialDevice(serial.Config{
			Address:     opts.Serial.Address,
			BaudRate:    opts.Serial.BaudRate,
			ReadTimeout: opts.Serial.ReadTimeout,
		})
		if err != nil {
			log.Fatal().Str("device", "serial").Err(err).Msg("failed to open serial port")
		}
	}

	var influxWriteAPI api.WriteAPI = util.NopWriteAPI{}
	if opts.InfluxDB.Host != "" {
		client := influxdb2.NewClient(opts.InfluxDB.Host, opts.InfluxDB.Token)
		defer client.Close()
		influxWriteAPI = client.WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
	}

	var outputs []lacap.FrameOutput
	if opts.CaptureDir != "" {
		outputs = append(outputs, output.NewCaptureFileOutput(opts.CaptureDir))
	}
	if len(opts.OutputDestinations) > 0 {
		outputs = append(outputs, output.NewFrameUDPOutput(opts.OutputDestinations, influxWriteAPI))
	}

	captureOpts := []lacap.CaptureOption{
		lacap.WithInfluxDB(influxWriteAPI),
		lacap.WithLogger(log.Logger),
	}

	capture, err := lacap.NewCapture(device,
		lacap.Options{
			Variant:         opts.Protocol.Variant,
			PayloadSize:     opts.Protocol.PayloadSize,
			HistoryCapacity: opts.HistoryCapacity,
			SyncTimeout:     opts.SyncTimeout,
			FrameTimeout:    opts.FrameTimeout,
			MaxFrames:       opts.MaxFrames,
			Outputs:         outputs,
		}, captureOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create capture")
	}

	if opts.VizServer.Port != 0 {
		vizServer := viz.NewServer(opts.VizServer.Port, opts.VizServer.UpdateInterval)
		vizServer.SetFrameSource(capture.History())
		for _, p := range viz.ChannelPlotters(capture.History()) {
			vizServer.Register("channels", p)
		}
		if err := lacap.WithImageServer(vizServer)(capture); err != nil {
			log.Fatal().Err(err).Msg("failed to attach viz server")
		}
	}

	eg, ctx := errgroup.WithContext(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		return capture.Stop()
	})

	eg.Go(func() error {
		return capture.Start(ctx)
	})

	err = eg.Wait()
	stats := capture.Stats()
	log.Info().
		Uint64("frames", stats.Frames).
		Uint64("discarded", stats.Discarded).
		Uint64("sync_timeouts", stats.SyncTimeouts).
		Uint64("length_mismatches", stats.LengthMismatches).
		Uint64("dropped_outputs", stats.DroppedOutputs).
		Msg("capture finished")

	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, frame.ErrStreamClosed) && opts.Device == "file":
		// end of playback
	default:
		log.Fatal().Err(err).Msg("exited program")
	}
}
