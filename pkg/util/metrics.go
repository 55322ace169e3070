package util

import "time"

func TimeOperationMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}

// Bool01 converts a flag into an InfluxDB-friendly counter value.
func Bool01(v bool) int {
	if v {
		return 1
	}
	return 0
}
