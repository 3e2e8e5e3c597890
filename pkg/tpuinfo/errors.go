// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidCapacity is returned when a buffer capacity is negative or doesn't fit a C int.
	ErrInvalidCapacity = errors.New("invalid buffer capacity")

	// ErrInvalidPort is returned when a port number doesn't fit a C int.
	ErrInvalidPort = errors.New("invalid port")

	// ErrImplausibleChipCount is returned by Snapshot when the library reports a negative chip count.
	ErrImplausibleChipCount = errors.New("implausible chip count")

	// ErrCapacityExceeded is returned by Snapshot when the chip count is larger than the capacity
	// the caller is willing to read.
	ErrCapacityExceeded = errors.New("chip count exceeds capacity")
)

// LoadError is returned when the shared library can't be loaded.
type LoadError struct {
	// Path given to the loader.
	Path string

	// Err holds the loader diagnostic (dlerror).
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("tpuinfo: failed to load library %q: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SymbolError is returned when one of the required entry points is missing from the library.
type SymbolError struct {
	Path   string
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("tpuinfo: symbol %s cannot be resolved in %q: %v", e.Symbol, e.Path, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

// MetricsError is returned when an entry point was called and returned a non-zero status.
// Whatever it wrote to the output buffers is discarded.
type MetricsError struct {
	Symbol string
	Status int
}

func (e *MetricsError) Error() string {
	if reason := e.Reason(); reason != "" {
		return fmt.Sprintf("tpuinfo: %s failed with status %d (%s)", e.Symbol, e.Status, reason)
	}
	return fmt.Sprintf("tpuinfo: %s failed with status %d", e.Symbol, e.Status)
}

// Reason describes the status codes returned by the reference libtpuinfo.
// It returns "" for unknown codes: other implementations may use their own.
func (e *MetricsError) Reason() string {
	switch e.Symbol {
	case SymbolPIDs:
		switch e.Status {
		case 1:
			return "requested count doesn't match the number of chips found"
		case 2:
			return "could not find the processes owning the chips"
		}
	case SymbolMetrics:
		switch e.Status {
		case 1:
			return "requested count doesn't match the number of chips found, or metrics server unreachable"
		case 2:
			return "failed to query runtime metrics"
		case 3:
			return "runtime metrics have inconsistent lengths"
		}
	}
	return ""
}
