// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo_test

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tpuinfo/pkg/tpuinfo"
	"github.com/gomlx/tpuinfo/pkg/tpuinfo/tpuinfotest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func init() {
	klog.InitFlags(nil)
}

var (
	twoChipsPIDs    = []int64{111, 222}
	twoChipsMetrics = []tpuinfo.DeviceMetric{
		{DeviceID: 0, MemoryUsage: 100, TotalMemory: 1000, DutyCyclePct: 12.5},
		{DeviceID: 1, MemoryUsage: 200, TotalMemory: 1000, DutyCyclePct: 87.0},
	}
)

// resolveStub binds the stub and fails the test if resolution fails.
func resolveStub(t *testing.T, stub *tpuinfotest.Stub) (*tpuinfo.Library, *tpuinfo.Symbols) {
	t.Helper()
	lib := tpuinfo.NewLibrary("stub.so", stub)
	symbols, err := lib.Resolve()
	require.NoError(t, err)
	require.NotNil(t, symbols)
	return lib, symbols
}

func TestResolve(t *testing.T) {
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	lib, symbols := resolveStub(t, stub)
	assert.Equal(t, tpuinfo.SymbolNames(), stub.Bound)
	assert.Equal(t, "stub.so", lib.Path())
	assert.Same(t, lib, symbols.Library())

	// Resolving again returns the same table and doesn't bind anything new.
	again, err := lib.Resolve()
	require.NoError(t, err)
	assert.Same(t, symbols, again)
	assert.Len(t, stub.Bound, 3)

	// All three entry points are usable.
	assert.Equal(t, 2, symbols.ChipCount())
	_, err = symbols.ListPIDs(2)
	require.NoError(t, err)
	_, err = symbols.ReadMetrics(tpuinfo.UseDefaultPort, 2)
	require.NoError(t, err)
}

func TestResolveMissingSymbol(t *testing.T) {
	testCases := []struct {
		missing []string
		want    string
	}{
		{[]string{tpuinfo.SymbolChipCount}, tpuinfo.SymbolChipCount},
		{[]string{tpuinfo.SymbolPIDs}, tpuinfo.SymbolPIDs},
		{[]string{tpuinfo.SymbolMetrics}, tpuinfo.SymbolMetrics},
		{[]string{tpuinfo.SymbolMetrics, tpuinfo.SymbolPIDs}, tpuinfo.SymbolPIDs},
		{[]string{tpuinfo.SymbolMetrics, tpuinfo.SymbolChipCount}, tpuinfo.SymbolChipCount},
		{tpuinfo.SymbolNames(), tpuinfo.SymbolChipCount},
	}
	for _, tc := range testCases {
		stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
		stub.Missing = tc.missing
		lib := tpuinfo.NewLibrary("partial.so", stub)
		symbols, err := lib.Resolve()
		require.Error(t, err, "missing %v", tc.missing)
		assert.Nil(t, symbols)

		var symbolErr *tpuinfo.SymbolError
		require.True(t, errors.As(err, &symbolErr), "expected *SymbolError, got %T", err)
		assert.Equal(t, tc.want, symbolErr.Symbol)
		assert.Equal(t, "partial.so", symbolErr.Path)
		assert.Contains(t, err.Error(), "undefined symbol: "+tc.want)
		assert.NotContains(t, stub.Bound, tc.want)
	}
}

func TestRoundTrip(t *testing.T) {
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	_, symbols := resolveStub(t, stub)

	n := symbols.ChipCount()
	require.Equal(t, 2, n)

	pids, err := symbols.ListPIDs(n)
	require.NoError(t, err)
	assert.Equal(t, []int64{111, 222}, pids)

	metrics, err := symbols.ReadMetrics(-1, n)
	require.NoError(t, err)
	assert.Equal(t, []tpuinfo.DeviceMetric{
		{DeviceID: 0, MemoryUsage: 100, TotalMemory: 1000, DutyCyclePct: 12.5},
		{DeviceID: 1, MemoryUsage: 200, TotalMemory: 1000, DutyCyclePct: 87.0},
	}, metrics)

	assert.Equal(t, []tpuinfotest.Call{
		{Symbol: tpuinfo.SymbolChipCount},
		{Symbol: tpuinfo.SymbolPIDs, N: 2},
		{Symbol: tpuinfo.SymbolMetrics, N: 2, Port: tpuinfo.DefaultPort},
	}, stub.Calls)
}

func TestReadMetricsDefaultPort(t *testing.T) {
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	_, symbols := resolveStub(t, stub)

	var results [][]tpuinfo.DeviceMetric
	for _, port := range []int{-1, 0, tpuinfo.DefaultPort} {
		metrics, err := symbols.ReadMetrics(port, 2)
		require.NoError(t, err)
		results = append(results, metrics)
	}
	for _, call := range stub.CallsTo(tpuinfo.SymbolMetrics) {
		assert.Equal(t, tpuinfo.DefaultPort, call.Port)
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])

	// A non-default port is passed through.
	_, err := symbols.ReadMetrics(9000, 2)
	require.NoError(t, err)
	calls := stub.CallsTo(tpuinfo.SymbolMetrics)
	assert.Equal(t, 9000, calls[len(calls)-1].Port)

	// The stub may have another default port: the binding doesn't substitute it.
	stub.DefaultPort = 7000
	_, err = symbols.ReadMetrics(tpuinfo.UseDefaultPort, 2)
	require.NoError(t, err)
	calls = stub.CallsTo(tpuinfo.SymbolMetrics)
	assert.Equal(t, 7000, calls[len(calls)-1].Port)
}

func TestFailureStatus(t *testing.T) {
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	stub.PIDsStatus = 2
	stub.MetricsStatus = 3
	_, symbols := resolveStub(t, stub)

	pids, err := symbols.ListPIDs(2)
	assert.Nil(t, pids)
	var metricsErr *tpuinfo.MetricsError
	require.True(t, errors.As(err, &metricsErr))
	assert.Equal(t, tpuinfo.SymbolPIDs, metricsErr.Symbol)
	assert.Equal(t, 2, metricsErr.Status)

	metrics, err := symbols.ReadMetrics(-1, 2)
	assert.Nil(t, metrics)
	require.True(t, errors.As(err, &metricsErr))
	assert.Equal(t, tpuinfo.SymbolMetrics, metricsErr.Symbol)
	assert.Equal(t, 3, metricsErr.Status)
	assert.Contains(t, err.Error(), "inconsistent lengths")
}

func TestCapacity(t *testing.T) {
	fourChipsMetrics := []tpuinfo.DeviceMetric{
		{DeviceID: 0, MemoryUsage: 1, TotalMemory: 10, DutyCyclePct: 1},
		{DeviceID: 1, MemoryUsage: 2, TotalMemory: 10, DutyCyclePct: 2},
		{DeviceID: 2, MemoryUsage: 3, TotalMemory: 10, DutyCyclePct: 3},
		{DeviceID: 3, MemoryUsage: 4, TotalMemory: 10, DutyCyclePct: 4},
	}
	stub := tpuinfotest.New([]int64{10, 20, 30, 40}, fourChipsMetrics)
	_, symbols := resolveStub(t, stub)
	require.Equal(t, 4, symbols.ChipCount())

	// Fewer than the number of chips: only that many are read, and the callee is told so.
	metrics, err := symbols.ReadMetrics(-1, 2)
	require.NoError(t, err)
	assert.Equal(t, fourChipsMetrics[:2], metrics)
	pids, err := symbols.ListPIDs(3)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, pids)
	assert.Equal(t, 2, stub.CallsTo(tpuinfo.SymbolMetrics)[0].N)
	assert.Equal(t, 3, stub.CallsTo(tpuinfo.SymbolPIDs)[0].N)

	// More than the number of chips: the reference library refuses.
	_, err = symbols.ReadMetrics(-1, 5)
	var metricsErr *tpuinfo.MetricsError
	require.True(t, errors.As(err, &metricsErr))
	assert.Equal(t, 1, metricsErr.Status)

	// Zero capacity: nothing to read.
	pids, err = symbols.ListPIDs(0)
	require.NoError(t, err)
	assert.Empty(t, pids)
	metrics, err = symbols.ReadMetrics(-1, 0)
	require.NoError(t, err)
	assert.Empty(t, metrics)

	// Invalid capacities never reach the library.
	numCalls := len(stub.Calls)
	_, err = symbols.ListPIDs(-1)
	require.ErrorIs(t, err, tpuinfo.ErrInvalidCapacity)
	_, err = symbols.ReadMetrics(-1, -3)
	require.ErrorIs(t, err, tpuinfo.ErrInvalidCapacity)
	assert.Len(t, stub.Calls, numCalls)
}

func TestReadMetricsInvalidPort(t *testing.T) {
	if math.MaxInt == math.MaxInt32 {
		t.Skip("every int fits a C int on 32-bit platforms")
	}
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	_, symbols := resolveStub(t, stub)
	port := int64(math.MaxInt32)
	port++
	_, err := symbols.ReadMetrics(int(port), 2)
	require.ErrorIs(t, err, tpuinfo.ErrInvalidPort)
	assert.Empty(t, stub.CallsTo(tpuinfo.SymbolMetrics))
}

func TestClose(t *testing.T) {
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	lib, symbols := resolveStub(t, stub)
	require.NoError(t, lib.Close())
	assert.True(t, stub.Closed)
	require.NoError(t, lib.Close(), "closing twice")

	// Using the library after it is closed is a programming error.
	assert.NotNil(t, exceptions.Try(func() { symbols.ChipCount() }))
	assert.NotNil(t, exceptions.Try(func() { _, _ = symbols.ListPIDs(2) }))
	assert.NotNil(t, exceptions.Try(func() { _, _ = symbols.ReadMetrics(-1, 2) }))
	assert.NotNil(t, exceptions.Try(func() { _, _ = lib.Resolve() }))
	assert.Len(t, stub.Calls, 0)

	var nilSymbols *tpuinfo.Symbols
	assert.NotNil(t, exceptions.Try(func() { nilSymbols.ChipCount() }))
	assert.NotNil(t, exceptions.Try(func() { tpuinfo.NewLibrary("nil.so", nil) }))
}

// countingModule counts how many times the wrapped module is closed.
type countingModule struct {
	tpuinfo.Module
	closes atomic.Int32
}

func (m *countingModule) Close() error {
	m.closes.Add(1)
	return m.Module.Close()
}

func TestCloseConcurrently(t *testing.T) {
	module := &countingModule{Module: tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)}
	lib := tpuinfo.NewLibrary("stub.so", module)
	symbols, err := lib.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 2, symbols.ChipCount())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, lib.Close())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), module.closes.Load())
	assert.NotNil(t, exceptions.Try(func() { symbols.ChipCount() }))
}

func TestSymbolNames(t *testing.T) {
	want := []string{tpuinfo.SymbolChipCount, tpuinfo.SymbolPIDs, tpuinfo.SymbolMetrics}
	names := tpuinfo.SymbolNames()
	require.Equal(t, want, names)

	// Changing the returned slice doesn't change the resolution order.
	names[0], names[2] = names[2], names[0]
	assert.Equal(t, want, tpuinfo.SymbolNames())
	stub := tpuinfotest.New(twoChipsPIDs, twoChipsMetrics)
	_, _ = resolveStub(t, stub)
	assert.Equal(t, want, stub.Bound)
}

func TestLoadError(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/dir/libtpuinfo_missing.so", "libtpuinfo_does_not_exist.so"} {
		lib, err := tpuinfo.Load(path)
		assert.Nil(t, lib)
		var loadErr *tpuinfo.LoadError
		require.True(t, errors.As(err, &loadErr), "expected *LoadError for %q, got %v", path, err)
		assert.Equal(t, path, loadErr.Path)
		require.Error(t, loadErr.Err)
		assert.NotEmpty(t, loadErr.Err.Error(), "loader diagnostic is missing")
	}

	// Open reports the same error.
	_, _, err := tpuinfo.Open(tpuinfo.Config{Library: "/nonexistent/dir/libtpuinfo_missing.so"})
	var loadErr *tpuinfo.LoadError
	require.True(t, errors.As(err, &loadErr))
}
