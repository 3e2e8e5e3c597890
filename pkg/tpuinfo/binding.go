// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo

import (
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DeviceMetric holds the metrics of one TPU device, as reported by tpu_metrics.
type DeviceMetric struct {
	DeviceID     int64
	MemoryUsage  int64
	TotalMemory  int64
	DutyCyclePct float64
}

// Library is a loaded telemetry library. It owns its Module exclusively.
//
// A Library goes from loaded to resolved (see Resolve) and finally to closed (see Close).
type Library struct {
	path    string
	module  Module
	symbols *Symbols
	closed  atomic.Bool
}

// Load opens the shared library given by path: either a bare name (e.g. "libtpuinfo.so"),
// searched with the platform loader rules, or a relative/absolute file path.
//
// It doesn't resolve any symbols yet, see Library.Resolve. On failure it returns a *LoadError
// holding the loader's diagnostic.
func Load(path string) (*Library, error) {
	if path == "" {
		return nil, &LoadError{Path: path, Err: errors.New("empty library path")}
	}
	start := time.Now()
	module, err := openModule(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	klog.V(1).Infof("tpuinfo: loaded %q in %s", path, time.Since(start))
	return NewLibrary(path, module), nil
}

// NewLibrary wraps a Module that is already open. The Library takes ownership of it.
// The path is only used for diagnostics.
func NewLibrary(path string, module Module) *Library {
	if module == nil {
		exceptions.Panicf("tpuinfo.NewLibrary(%q) given a nil Module", path)
	}
	return &Library{path: path, module: module}
}

// Path of the library, as given to Load.
func (l *Library) Path() string {
	return l.path
}

// Resolve binds the entry points tpu_chip_count, tpu_pids and tpu_metrics, in this order.
//
// It is all-or-nothing: if any one of them is missing it returns a *SymbolError for the first
// one missing, and no Symbols. Once it succeeds, later calls return the same Symbols.
//
// Calling it after Close panics.
func (l *Library) Resolve() (*Symbols, error) {
	l.checkOpen("Resolve")
	if l.symbols != nil {
		return l.symbols, nil
	}
	s := &Symbols{lib: l}
	targets := []struct {
		name    string
		fnPtr   any
		isBound func() bool
	}{
		{SymbolChipCount, &s.chipCount, func() bool { return s.chipCount != nil }},
		{SymbolPIDs, &s.pids, func() bool { return s.pids != nil }},
		{SymbolMetrics, &s.metrics, func() bool { return s.metrics != nil }},
	}
	for _, target := range targets {
		err := l.module.Bind(target.name, target.fnPtr)
		if err == nil && !target.isBound() {
			err = errors.New("module reported success but bound nothing")
		}
		if err != nil {
			return nil, &SymbolError{Path: l.path, Symbol: target.name, Err: err}
		}
		klog.V(2).Infof("tpuinfo: resolved %s in %q", target.name, l.path)
	}
	l.symbols = s
	return s, nil
}

// Close releases the library. It is safe to call more than once, and only the first call
// releases the module.
//
// Any use of the Symbols resolved from it afterward panics. Calls already in flight are not
// waited for: closing while another goroutine still uses the library is the caller's
// responsibility to prevent.
func (l *Library) Close() error {
	if l == nil || !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := l.module.Close(); err != nil {
		return errors.Wrapf(err, "tpuinfo: failed to close %q", l.path)
	}
	klog.V(1).Infof("tpuinfo: closed %q", l.path)
	return nil
}

// checkOpen panics if the library is no longer usable: that is a programming error.
func (l *Library) checkOpen(method string) {
	if l == nil {
		exceptions.Panicf("tpuinfo: %s called on a nil Library", method)
	}
	if l.closed.Load() {
		exceptions.Panicf("tpuinfo: %s called after library %q was closed", method, l.path)
	}
}

// Symbols is the table of resolved entry points of a Library.
// It is immutable, and only valid while its Library is open.
type Symbols struct {
	lib       *Library
	chipCount ChipCountFunc
	pids      PIDsFunc
	metrics   MetricsFunc
}

func (s *Symbols) check(symbol string) {
	if s == nil {
		exceptions.Panicf("tpuinfo: %s called on nil Symbols", symbol)
	}
	s.lib.checkOpen(symbol)
}

// Library that owns these symbols.
func (s *Symbols) Library() *Library {
	return s.lib
}

// ChipCount returns what tpu_chip_count returns. The value is not validated: a negative or
// implausible value is passed through.
func (s *Symbols) ChipCount() int {
	s.check(SymbolChipCount)
	return int(s.chipCount())
}

// ListPIDs calls tpu_pids with a buffer of exactly capacity entries, and returns it.
// The capacity is expected to be the chip count.
//
// If tpu_pids reports failure it returns a *MetricsError and no data.
func (s *Symbols) ListPIDs(capacity int) ([]int64, error) {
	s.check(SymbolPIDs)
	n, err := cCapacity(capacity)
	if err != nil {
		return nil, errors.WithMessage(err, "tpuinfo: ListPIDs")
	}
	pids := make([]int64, capacity)
	start := time.Now()
	status := s.pids(firstElement(pids), n)
	runtime.KeepAlive(pids)
	klog.V(2).Infof("tpuinfo: %s(n=%d) returned %d in %s", SymbolPIDs, n, status, time.Since(start))
	if status != 0 {
		return nil, &MetricsError{Symbol: SymbolPIDs, Status: int(status)}
	}
	return pids, nil
}

// ReadMetrics calls tpu_metrics with four parallel buffers of exactly capacity entries each, and
// returns them as capacity DeviceMetric values, index-aligned.
//
// A port <= 0 (see UseDefaultPort) lets the library pick its default port (DefaultPort for the
// reference library). A capacity larger than the chip count leaves the extra entries undefined.
//
// If tpu_metrics reports failure it returns a *MetricsError and no data.
func (s *Symbols) ReadMetrics(port, capacity int) ([]DeviceMetric, error) {
	s.check(SymbolMetrics)
	if port < math.MinInt32 || port > math.MaxInt32 {
		return nil, errors.Wrapf(ErrInvalidPort, "tpuinfo: ReadMetrics port %d", port)
	}
	n, err := cCapacity(capacity)
	if err != nil {
		return nil, errors.WithMessage(err, "tpuinfo: ReadMetrics")
	}
	buffers := newMetricsBuffers(capacity)
	start := time.Now()
	status := s.metrics(int32(port),
		firstElement(buffers.deviceIDs), firstElement(buffers.memoryUsage),
		firstElement(buffers.totalMemory), firstElement(buffers.dutyCyclePct), n)
	runtime.KeepAlive(buffers)
	klog.V(2).Infof("tpuinfo: %s(port=%d, n=%d) returned %d in %s", SymbolMetrics, port, n, status, time.Since(start))
	if status != 0 {
		return nil, &MetricsError{Symbol: SymbolMetrics, Status: int(status)}
	}
	return buffers.records(), nil
}
