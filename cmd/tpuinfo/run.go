// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"io"
	"time"

	"github.com/gomlx/tpuinfo/internal/report"
	"github.com/gomlx/tpuinfo/pkg/tpuinfo"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type options struct {
	config   tpuinfo.Config
	format   report.Format
	color    bool
	samples  int
	interval time.Duration
}

// optionsFromFlags builds the options from the parsed flags: flags explicitly set win over the
// -config file, which wins over the environment (see tpuinfo.Config.Normalize).
func optionsFromFlags() (*options, error) {
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	var cfg tpuinfo.Config
	if *flagConfig != "" {
		var err error
		cfg, err = tpuinfo.LoadConfig(*flagConfig)
		if err != nil {
			return nil, err
		}
	}
	if setFlags["lib"] {
		cfg.Library = *flagLibrary
	}
	if setFlags["port"] {
		cfg.Port = *flagPort
		if cfg.Port == 0 {
			// Explicitly set: not overridden by $TPUINFO_PORT.
			cfg.Port = tpuinfo.UseDefaultPort
		}
	}
	if setFlags["capacity"] || cfg.Capacity == 0 {
		cfg.Capacity = *flagCapacity
	}
	if cfg.Capacity <= 0 {
		return nil, errors.Errorf("-capacity must be positive, got %d", cfg.Capacity)
	}

	format, err := report.ParseFormat(*flagFormat)
	if err != nil {
		return nil, err
	}
	if *flagSamples < 0 {
		return nil, errors.Errorf("-samples must be >= 0, got %d", *flagSamples)
	}
	if *flagInterval < 0 {
		return nil, errors.Errorf("-interval must be >= 0, got %s", *flagInterval)
	}
	return &options{
		config:   cfg.Normalize(),
		format:   format,
		color:    *flagColor,
		samples:  *flagSamples,
		interval: *flagInterval,
	}, nil
}

// openLibrary is replaced in tests.
var openLibrary = tpuinfo.Open

// run opens the library, and prints opts.samples snapshots (or until ctx is done if 0).
// It returns the exit code.
func run(ctx context.Context, opts *options, w io.Writer) int {
	lib, symbols, err := openLibrary(opts.config)
	if err != nil {
		var symbolErr *tpuinfo.SymbolError
		if errors.As(err, &symbolErr) {
			klog.Errorf("%s symbol cannot be resolved with error: %v", symbolErr.Symbol, symbolErr.Err)
		} else {
			klog.Errorf("Error loading library: %v", err)
		}
		return exitFailure
	}
	defer func() {
		if err := lib.Close(); err != nil {
			klog.Warningf("%v", err)
		}
	}()
	klog.V(1).Infof("Using %q, port %d, capacity %d", lib.Path(), opts.config.Port, opts.config.Capacity)

	for sample := 0; opts.samples == 0 || sample < opts.samples; sample++ {
		if sample > 0 {
			select {
			case <-ctx.Done():
				return exitOK
			case <-time.After(opts.interval):
			}
		}
		snapshot, err := symbols.Snapshot(opts.config.Port, opts.config.Capacity)
		if err != nil {
			var metricsErr *tpuinfo.MetricsError
			switch {
			case errors.Is(err, tpuinfo.ErrImplausibleChipCount) || errors.Is(err, tpuinfo.ErrCapacityExceeded):
				klog.Errorf("Unusable chip count: %v", err)
			case errors.As(err, &metricsErr) && metricsErr.Symbol == tpuinfo.SymbolPIDs:
				klog.Errorf("Error retrieving pids: %v", err)
			default:
				klog.Errorf("Error retrieving usage: %v", err)
			}
			return exitFailure
		}
		must.M(report.Write(w, opts.format, snapshot, opts.color))
	}
	return exitOK
}
