// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders tpuinfo snapshots for the console.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/tpuinfo/pkg/tpuinfo"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
)

// Format of the report.
type Format string

const (
	// Plain is one line per fact, in the format of the original C demo: easy to parse by scripts.
	Plain Format = "plain"

	// Table is a human-readable table, one row per device.
	Table Format = "table"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case Plain, Table:
		return Format(name), nil
	}
	return "", errors.Errorf("unknown report format %q, valid values are %q and %q", name, Plain, Table)
}

// Write renders the snapshot in the given format. Color is only used by the Table format.
func Write(w io.Writer, format Format, snapshot *tpuinfo.Snapshot, color bool) error {
	switch format {
	case Table:
		return WriteTable(w, snapshot, color)
	default:
		return WritePlain(w, snapshot)
	}
}

// WritePlain writes:
//
//	Chip count <n>
//	PID <pid>                         (one per chip)
//	<id> <usage> <total> <duty>       (one per device, duty with 2 decimals)
func WritePlain(w io.Writer, snapshot *tpuinfo.Snapshot) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chip count %d\n", snapshot.ChipCount)
	for _, pid := range snapshot.PIDs {
		fmt.Fprintf(&sb, "PID %d\n", pid)
	}
	for _, m := range snapshot.Metrics {
		fmt.Fprintf(&sb, "%d %d %d %.2f\n", m.DeviceID, m.MemoryUsage, m.TotalMemory, m.DutyCyclePct)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func bytesString(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d", n)
	}
	return humanize.IBytes(uint64(n))
}

// WriteTable writes a styled table with one row per device. Without color, only plain ASCII
// styling is used (borders are still drawn).
func WriteTable(w io.Writer, snapshot *tpuinfo.Snapshot, color bool) error {
	renderer := lipgloss.NewRenderer(w)
	if !color {
		renderer.SetColorProfile(termenv.Ascii)
	}
	titleStyle := renderer.NewStyle().Bold(true).Padding(1, 2, 0, 2)
	headerStyle := renderer.NewStyle().Bold(true).Padding(0, 1).Align(lipgloss.Center)
	cellStyle := renderer.NewStyle().Padding(0, 1).Align(lipgloss.Right)

	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(renderer.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Device", "PID", "Memory used", "Memory total", "Memory %", "Duty cycle %")

	var totalUsed, totalMemory int64
	for ii, m := range snapshot.Metrics {
		pid := "-"
		if ii < len(snapshot.PIDs) {
			pid = fmt.Sprintf("%d", snapshot.PIDs[ii])
		}
		memoryPct := "-"
		if m.TotalMemory > 0 {
			memoryPct = fmt.Sprintf("%.1f", 100*float64(m.MemoryUsage)/float64(m.TotalMemory))
		}
		table.Row(
			fmt.Sprintf("%d", m.DeviceID), pid,
			bytesString(m.MemoryUsage), bytesString(m.TotalMemory),
			memoryPct, fmt.Sprintf("%.2f", m.DutyCyclePct))
		totalUsed += m.MemoryUsage
		totalMemory += m.TotalMemory
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("TPU chips: %d", snapshot.ChipCount)))
	sb.WriteString("\n")
	if len(snapshot.Metrics) > 0 {
		sb.WriteString(table.Render())
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Memory used: %s of %s\n", bytesString(totalUsed), bytesString(totalMemory))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
