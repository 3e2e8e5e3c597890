// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"testing"

	"github.com/gomlx/tpuinfo/pkg/tpuinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var twoChips = &tpuinfo.Snapshot{
	ChipCount: 2,
	PIDs:      []int64{111, 222},
	Metrics: []tpuinfo.DeviceMetric{
		{DeviceID: 0, MemoryUsage: 100, TotalMemory: 1000, DutyCyclePct: 12.5},
		{DeviceID: 1, MemoryUsage: 200, TotalMemory: 1000, DutyCyclePct: 87.0},
	},
}

func TestWritePlain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePlain(&buf, twoChips))
	assert.Equal(t, "Chip count 2\nPID 111\nPID 222\n0 100 1000 12.50\n1 200 1000 87.00\n", buf.String())

	buf.Reset()
	require.NoError(t, WritePlain(&buf, &tpuinfo.Snapshot{}))
	assert.Equal(t, "Chip count 0\n", buf.String())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, twoChips, false))
	got := buf.String()
	assert.NotContains(t, got, "\x1b[", "no escape sequences without color")
	for _, want := range []string{"TPU chips: 2", "Duty cycle %", "111", "222", "100 B", "1000 B", "12.50", "87.00", "10.0", "20.0",
		"Memory used: 300 B of 2.0 KiB"} {
		assert.Contains(t, got, want)
	}

	buf.Reset()
	require.NoError(t, WriteTable(&buf, &tpuinfo.Snapshot{}, false))
	assert.Contains(t, buf.String(), "TPU chips: 0")
	assert.NotContains(t, buf.String(), "Duty cycle")
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	assert.Equal(t, Table, format)
	format, err = ParseFormat("plain")
	require.NoError(t, err)
	assert.Equal(t, Plain, format)
	_, err = ParseFormat("json")
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Plain, twoChips, false))
	assert.Contains(t, buf.String(), "PID 222")
}
