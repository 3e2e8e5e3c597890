// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build (darwin || freebsd || linux) && !(cgo && tpuinfo_cgo)

package tpuinfo

// Default loader: dlopen/dlsym through purego, which works with or without cgo.

import (
	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
)

type dynamicModule struct {
	path   string
	handle uintptr
}

func openModule(path string) (Module, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_LAZY|purego.RTLD_LOCAL)
	if err != nil {
		return nil, err
	}
	return &dynamicModule{path: path, handle: handle}, nil
}

// Bind implements Module.
func (m *dynamicModule) Bind(name string, fnPtr any) error {
	if m.handle == 0 {
		return errors.Errorf("library %q already closed", m.path)
	}
	switch fnPtr.(type) {
	case *ChipCountFunc, *PIDsFunc, *MetricsFunc:
	default:
		return errors.Errorf("cannot bind %s to a %T", name, fnPtr)
	}
	addr, err := purego.Dlsym(m.handle, name)
	if err != nil {
		return err
	}
	if addr == 0 {
		return errors.Errorf("%s resolved to NULL", name)
	}
	purego.RegisterFunc(fnPtr, addr)
	return nil
}

// Close implements Module.
func (m *dynamicModule) Close() error {
	if m.handle == 0 {
		return nil
	}
	err := purego.Dlclose(m.handle)
	m.handle = 0
	return err
}
