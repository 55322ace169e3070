package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// NopWriteAPI discards every point. It is used when no InfluxDB is configured.
type NopWriteAPI struct{}

func (NopWriteAPI) WriteRecord(line string)       {}
func (NopWriteAPI) WritePoint(point *write.Point) {}
func (NopWriteAPI) Flush()                        {}
func (NopWriteAPI) Close()                        {}
func (NopWriteAPI) Errors() <-chan error          { return nil }

// RecordingWriteAPI keeps the points written to it.
type RecordingWriteAPI struct {
	mu     sync.Mutex
	points []*write.Point
}

func (r *RecordingWriteAPI) WriteRecord(line string) {}

func (r *RecordingWriteAPI) WritePoint(point *write.Point) {
	r.mu.Lock()
	r.points = append(r.points, point)
	r.mu.Unlock()
}

func (r *RecordingWriteAPI) Flush()               {}
func (r *RecordingWriteAPI) Close()               {}
func (r *RecordingWriteAPI) Errors() <-chan error { return nil }

// Count returns the number of points written with the given measurement name.
func (r *RecordingWriteAPI) Count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.points {
		if p.Name() == name {
			n++
		}
	}
	return n
}

// Points returns the points written with the given measurement name.
func (r *RecordingWriteAPI) Points(name string) []*write.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []*write.Point
	for _, p := range r.points {
		if p.Name() == name {
			ret = append(ret, p)
		}
	}
	return ret
}
