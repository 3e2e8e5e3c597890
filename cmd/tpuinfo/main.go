// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// tpuinfo loads the TPU telemetry library and prints the chip count, the PIDs of the processes
// using the chips and the memory and duty-cycle metrics of each device.
//
// Usage:
//
//	tpuinfo [-lib libtpuinfo.so] [-port -1] [-format plain|table] [-samples 1] [-interval 1s]
//
// The library can also be given with $TPUINFO_LIBRARY, the port with $TPUINFO_PORT, and all
// settings with a YAML file passed to -config.
//
// Exit codes: 0 on success; 1 if the library can't be loaded, misses a symbol, or fails to
// report PIDs or metrics; 2 on invalid usage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/tpuinfo/internal/report"
	"github.com/gomlx/tpuinfo/pkg/tpuinfo"
	"k8s.io/klog/v2"
)

var (
	flagLibrary = flag.String("lib", "",
		fmt.Sprintf("Name or path of the telemetry library. Defaults to $%s or %q.", tpuinfo.LibraryEnv, tpuinfo.DefaultLibrary))
	flagPort = flag.Int("port", 0,
		fmt.Sprintf("Metrics port passed to the library. 0 or a negative value means the library default (%d). "+
			"If not set, $%s is used if set.", tpuinfo.DefaultPort, tpuinfo.PortEnv))
	flagCapacity = flag.Int("capacity", tpuinfo.DefaultCapacity, "Maximum number of devices to read.")
	flagConfig   = flag.String("config", "", "Optional YAML file with the keys library, port and capacity. "+
		"Flags explicitly set take precedence.")
	flagFormat   = flag.String("format", string(report.Plain), "Output format: \"plain\" or \"table\".")
	flagColor    = flag.Bool("color", false, "Use colors in the table format.")
	flagSamples  = flag.Int("samples", 1, "Number of readings to print. If 0, print until interrupted.")
	flagInterval = flag.Duration("interval", time.Second, "Time between readings, if -samples is not 1.")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Prints TPU chip count, owning processes and device metrics.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() > 0 {
		klog.Errorf("Unexpected arguments %q. See 'tpuinfo -help'.", flag.Args())
		os.Exit(exitUsage)
	}

	opts, err := optionsFromFlags()
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	var code int
	err = exceptions.TryCatch[error](func() {
		code = run(ctx, opts, os.Stdout)
	})
	stop()
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
	klog.Flush()
	os.Exit(code)
}
