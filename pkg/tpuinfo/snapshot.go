// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tpuinfo

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Snapshot is one reading of all devices: chip count, owning processes and metrics.
type Snapshot struct {
	ChipCount int
	PIDs      []int64
	Metrics   []DeviceMetric

	// Elapsed is the time taken by the three calls.
	Elapsed time.Duration
}

// Snapshot reads the chip count, and then the PIDs and metrics of that many chips.
//
// The chip count must be between 0 and capacity, otherwise it fails with ErrImplausibleChipCount
// or ErrCapacityExceeded respectively. See ReadMetrics for the meaning of port.
func (s *Symbols) Snapshot(port, capacity int) (*Snapshot, error) {
	start := time.Now()
	n := s.ChipCount()
	if n < 0 {
		return nil, errors.Wrapf(ErrImplausibleChipCount, "tpuinfo: %s returned %d", SymbolChipCount, n)
	}
	if n > capacity {
		return nil, errors.Wrapf(ErrCapacityExceeded, "tpuinfo: %d chips found, capacity is %d", n, capacity)
	}
	pids, err := s.ListPIDs(n)
	if err != nil {
		return nil, err
	}
	metrics, err := s.ReadMetrics(port, n)
	if err != nil {
		return nil, err
	}
	snapshot := &Snapshot{
		ChipCount: n,
		PIDs:      pids,
		Metrics:   metrics,
		Elapsed:   time.Since(start),
	}
	klog.V(1).Infof("tpuinfo: snapshot of %d chips took %s", n, snapshot.Elapsed)
	return snapshot, nil
}
