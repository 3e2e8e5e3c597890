// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo

// Names of the entry points exported by the telemetry library.
const (
	SymbolChipCount = "tpu_chip_count"
	SymbolPIDs      = "tpu_pids"
	SymbolMetrics   = "tpu_metrics"
)

// SymbolNames returns the required entry points in the order they are resolved.
// It returns a new slice on each call.
func SymbolNames() []string {
	return []string{SymbolChipCount, SymbolPIDs, SymbolMetrics}
}

// ChipCountFunc is the Go signature of `int tpu_chip_count(void)`.
type ChipCountFunc func() int32

// PIDsFunc is the Go signature of `int tpu_pids(int64_t *pids, int n)`.
// It returns 0 on success.
type PIDsFunc func(pids *int64, n int32) int32

// MetricsFunc is the Go signature of
// `int tpu_metrics(int port, int64_t *device_ids, int64_t *memory_usage, int64_t *total_memory, double *duty_cycle_pct, int n)`.
// It returns 0 on success.
type MetricsFunc func(port int32, deviceIDs, memoryUsage, totalMemory *int64, dutyCyclePct *float64, n int32) int32

// Module is a loaded shared library.
//
// Implementations are the dlopen backends of this package and test doubles, see package tpuinfotest.
type Module interface {
	// Bind resolves the entry point called name, and stores a typed callable for it in fnPtr.
	//
	// fnPtr is one of *ChipCountFunc, *PIDsFunc or *MetricsFunc. The error, if the symbol is
	// not found, should carry the loader's diagnostic.
	Bind(name string, fnPtr any) error

	// Close releases the module. Functions previously bound must not be called afterward.
	Close() error
}
