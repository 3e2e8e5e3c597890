// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build !darwin && !freebsd && !linux

package tpuinfo

import (
	"runtime"

	"github.com/pkg/errors"
)

func openModule(path string) (Module, error) {
	return nil, errors.Errorf("dynamic loading of %q not supported on %s", path, runtime.GOOS)
}
