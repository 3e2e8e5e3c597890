// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tpuinfotest provides a test double for the telemetry library, to be used with
// tpuinfo.NewLibrary.
//
// The Stub behaves like the reference libtpuinfo: tpu_pids and tpu_metrics fail with status 1 when
// asked for more chips than there are, and tpu_metrics replaces a port <= 0 by its default port.
package tpuinfotest

import (
	"slices"
	"unsafe"

	"github.com/gomlx/tpuinfo/pkg/tpuinfo"
	"github.com/pkg/errors"
)

// Call records one invocation of an entry point of a Stub.
type Call struct {
	Symbol string

	// N is the capacity given by the caller.
	N int

	// Port is the port tpu_metrics used, after replacing a port <= 0 by the default.
	// Zero for the other entry points.
	Port int
}

// Stub implements tpuinfo.Module with canned data.
type Stub struct {
	// ChipCount returned by tpu_chip_count.
	ChipCount int

	// PIDs returned by tpu_pids and Metrics returned by tpu_metrics.
	PIDs    []int64
	Metrics []tpuinfo.DeviceMetric

	// PIDsStatus and MetricsStatus, if not zero, are returned by the corresponding entry point,
	// after scribbling over the buffers.
	PIDsStatus, MetricsStatus int

	// DefaultPort used by tpu_metrics when given a port <= 0. If zero, tpuinfo.DefaultPort is used.
	DefaultPort int

	// Missing symbols: Bind fails for them.
	Missing []string

	// Calls made so far, in order.
	Calls []Call

	// Bound lists the symbols bound so far, in order.
	Bound []string

	// Closed is set by Close.
	Closed bool
}

var _ tpuinfo.Module = (*Stub)(nil)

// New returns a Stub reporting the given PIDs and metrics, with the chip count set to the
// number of metrics.
func New(pids []int64, metrics []tpuinfo.DeviceMetric) *Stub {
	return &Stub{
		ChipCount: len(metrics),
		PIDs:      pids,
		Metrics:   metrics,
	}
}

// Scribble is written to the buffers when a failure status is configured.
const Scribble = -0xBAD

// Bind implements tpuinfo.Module.
func (s *Stub) Bind(name string, fnPtr any) error {
	if s.Closed {
		return errors.Errorf("stub already closed")
	}
	if slices.Contains(s.Missing, name) {
		return errors.Errorf("stub: undefined symbol: %s", name)
	}
	switch fn := fnPtr.(type) {
	case *tpuinfo.ChipCountFunc:
		if name != tpuinfo.SymbolChipCount {
			return errors.Errorf("stub: %s is not an `int (void)` function", name)
		}
		*fn = s.chipCount
	case *tpuinfo.PIDsFunc:
		if name != tpuinfo.SymbolPIDs {
			return errors.Errorf("stub: %s is not an `int (int64_t *, int)` function", name)
		}
		*fn = s.pids
	case *tpuinfo.MetricsFunc:
		if name != tpuinfo.SymbolMetrics {
			return errors.Errorf("stub: %s is not a tpu_metrics-like function", name)
		}
		*fn = s.metrics
	default:
		return errors.Errorf("stub: cannot bind %s to a %T", name, fnPtr)
	}
	s.Bound = append(s.Bound, name)
	return nil
}

// Close implements tpuinfo.Module.
func (s *Stub) Close() error {
	s.Closed = true
	return nil
}

// CallsTo returns the calls made to the given entry point.
func (s *Stub) CallsTo(symbol string) []Call {
	var calls []Call
	for _, call := range s.Calls {
		if call.Symbol == symbol {
			calls = append(calls, call)
		}
	}
	return calls
}

func (s *Stub) chipCount() int32 {
	s.Calls = append(s.Calls, Call{Symbol: tpuinfo.SymbolChipCount})
	return int32(s.ChipCount)
}

func (s *Stub) pids(pids *int64, n int32) int32 {
	s.Calls = append(s.Calls, Call{Symbol: tpuinfo.SymbolPIDs, N: int(n)})
	out := view(pids, n)
	if s.PIDsStatus != 0 {
		fill(out, Scribble)
		return int32(s.PIDsStatus)
	}
	if int(n) > len(s.PIDs) {
		return 1
	}
	copy(out, s.PIDs)
	return 0
}

func (s *Stub) metrics(port int32, deviceIDs, memoryUsage, totalMemory *int64, dutyCyclePct *float64, n int32) int32 {
	effectivePort := int(port)
	if effectivePort <= 0 {
		effectivePort = s.DefaultPort
		if effectivePort == 0 {
			effectivePort = tpuinfo.DefaultPort
		}
	}
	s.Calls = append(s.Calls, Call{Symbol: tpuinfo.SymbolMetrics, N: int(n), Port: effectivePort})

	ids, usage, total, duty := view(deviceIDs, n), view(memoryUsage, n), view(totalMemory, n), view(dutyCyclePct, n)
	if s.MetricsStatus != 0 {
		fill(ids, Scribble)
		fill(usage, Scribble)
		fill(total, Scribble)
		fill(duty, Scribble)
		return int32(s.MetricsStatus)
	}
	if int(n) > len(s.Metrics) {
		return 1
	}
	for ii := range int(n) {
		m := s.Metrics[ii]
		ids[ii], usage[ii], total[ii], duty[ii] = m.DeviceID, m.MemoryUsage, m.TotalMemory, m.DutyCyclePct
	}
	return 0
}

// view returns the n elements starting at ptr, the way the C side sees the buffer.
func view[T any](ptr *T, n int32) []T {
	if ptr == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice(ptr, int(n))
}

func fill[T int64 | float64](buf []T, value T) {
	for ii := range buf {
		buf[ii] = value
	}
}
