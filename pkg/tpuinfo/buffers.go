// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo

// This file holds the buffers handed to the foreign entry points: they are allocated on the Go
// side with exactly the capacity passed along as `n`, and the callee writes at most that many
// elements.

import (
	"math"

	"github.com/pkg/errors"
)

// cCapacity converts a buffer capacity to the C int that goes along with the buffer.
func cCapacity(capacity int) (int32, error) {
	if capacity < 0 || capacity > math.MaxInt32 {
		return 0, errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	return int32(capacity), nil
}

// firstElement returns a pointer to the start of the buffer, or nil if it is empty.
func firstElement[T any](buf []T) *T {
	if len(buf) == 0 {
		return nil
	}
	return &buf[0]
}

// metricsBuffers are the four parallel output arrays of tpu_metrics.
type metricsBuffers struct {
	deviceIDs, memoryUsage, totalMemory []int64
	dutyCyclePct                        []float64
}

func newMetricsBuffers(capacity int) *metricsBuffers {
	return &metricsBuffers{
		deviceIDs:    make([]int64, capacity),
		memoryUsage:  make([]int64, capacity),
		totalMemory:  make([]int64, capacity),
		dutyCyclePct: make([]float64, capacity),
	}
}

// records zips the buffers into DeviceMetric values, index-aligned.
func (b *metricsBuffers) records() []DeviceMetric {
	metrics := make([]DeviceMetric, len(b.deviceIDs))
	for ii := range metrics {
		metrics[ii] = DeviceMetric{
			DeviceID:     b.deviceIDs[ii],
			MemoryUsage:  b.memoryUsage[ii],
			TotalMemory:  b.totalMemory[ii],
			DutyCyclePct: b.dutyCyclePct[ii],
		}
	}
	return metrics
}
