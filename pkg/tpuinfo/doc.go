// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tpuinfo binds the TPU telemetry shared library (libtpuinfo.so) at runtime.
//
// The library is opened with dlopen, and its three C entry points are resolved into typed Go
// functions:
//
//	int tpu_chip_count(void);
//	int tpu_pids(int64_t *pids, int n);
//	int tpu_metrics(int port, int64_t *device_ids, int64_t *memory_usage,
//	                int64_t *total_memory, double *duty_cycle_pct, int n);
//
// Typical use:
//
//	lib, symbols, err := tpuinfo.Open(tpuinfo.Config{})
//	if err != nil { ... }
//	defer lib.Close()
//	n := symbols.ChipCount()
//	pids, err := symbols.ListPIDs(n)
//	metrics, err := symbols.ReadMetrics(tpuinfo.UseDefaultPort, n)
//
// Resolution is all-or-nothing: either the three entry points are bound or Resolve fails with a
// *SymbolError naming the first one missing.
//
// The default loader uses github.com/ebitengine/purego and doesn't require cgo. Build with
// `-tags tpuinfo_cgo` (and cgo enabled) to use dlfcn.h through cgo instead.
//
// The library to load can be set with the environment variable TPUINFO_LIBRARY, see Config.
//
// Thread-safety: a resolved *Symbols is never modified, but this package doesn't serialize calls.
// Calling the entry points concurrently is only safe if the loaded library is itself thread-safe,
// and that is up to the caller to know. Likewise Library.Close must not race with calls in flight.
package tpuinfo
