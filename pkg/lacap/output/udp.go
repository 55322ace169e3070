package output

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/gobwas/pool/pbytes"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/rs/zerolog/log"

	"github.com/norasector/lacap/pkg/frame"
	"github.com/norasector/lacap/pkg/lacap/config"
	"github.com/norasector/lacap/pkg/util"
)

const receiveChannels = 8

// Room for the record fields around the payload.
const recordOverhead = 64

// FrameUDPOutput streams every frame as a length-prefixed protobuf record
// to a set of UDP destinations.
type FrameUDPOutput struct {
	dests    []config.OutputDestination
	recvChan chan *frame.Frame
	metrics  api.WriteAPI
}

func NewFrameUDPOutput(dests []config.OutputDestination, metrics api.WriteAPI) *FrameUDPOutput {
	if metrics == nil {
		metrics = util.NopWriteAPI{}
	}
	return &FrameUDPOutput{
		dests:    dests,
		recvChan: make(chan *frame.Frame, receiveChannels),
		metrics:  metrics,
	}
}

func (s *FrameUDPOutput) Receive() chan<- *frame.Frame {
	return s.recvChan
}

func (s *FrameUDPOutput) Start(ctx context.Context) error {
	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			return fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		log.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("frame output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.recvChan:
			s.send(conn, destAddrs, f)
		}
	}
}

func (s *FrameUDPOutput) send(conn *net.UDPConn, destAddrs []*net.UDPAddr, f *frame.Frame) {
	buf := pbytes.GetCap(prefixLength + len(f.Payload) + recordOverhead)
	defer pbytes.Put(buf)

	msg := EncodeRecord(append(buf, 0, 0), f)
	size := len(msg) - prefixLength
	if size > maxRecord {
		log.Warn().Uint64("frame", f.Sequence).Int("size", size).Msg("frame record too large for datagram")
		return
	}
	binary.LittleEndian.PutUint16(msg, uint16(size))

	success := true
	var bytesWritten int
	for _, destAddr := range destAddrs {
		n, err := conn.WriteToUDP(msg, destAddr)
		if err != nil {
			log.Error().Err(err).Str("dest", destAddr.String()).Msg("error writing")
			success = false
			continue
		}
		bytesWritten += n
	}

	go s.metrics.WritePoint(influxdb2.NewPoint("lacap.output",
		map[string]string{
			"output": "udp",
		},
		map[string]interface{}{
			"sequence":       int64(f.Sequence),
			"bytes_written":  bytesWritten,
			"encoded_length": size,
			"sent":           util.Bool01(success),
			"dropped":        util.Bool01(!success),
		}, time.Now()))
}
