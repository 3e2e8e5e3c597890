// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

//go:build cgo && tpuinfo_cgo && (darwin || freebsd || linux)

package tpuinfo

// Loader using dlfcn.h through cgo, enabled with `-tags tpuinfo_cgo`.
// The entry points are called through small C trampolines, one per signature.

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef int (*tpu_chip_count_fn)(void);
typedef int (*tpu_pids_fn)(int64_t *, int);
typedef int (*tpu_metrics_fn)(int, int64_t *, int64_t *, int64_t *, double *, int);

static int call_tpu_chip_count(void *fn) {
	return ((tpu_chip_count_fn)fn)();
}

static int call_tpu_pids(void *fn, int64_t *pids, int n) {
	return ((tpu_pids_fn)fn)(pids, n);
}

static int call_tpu_metrics(void *fn, int port, int64_t *device_ids, int64_t *memory_usage,
		int64_t *total_memory, double *duty_cycle_pct, int n) {
	return ((tpu_metrics_fn)fn)(port, device_ids, memory_usage, total_memory, duty_cycle_pct, n);
}

// A symbol may legitimately be NULL, so dlerror is cleared before dlsym and checked after.
static void *lookup_symbol(void *handle, const char *name, const char **error) {
	dlerror();
	void *symbol = dlsym(handle, name);
	*error = dlerror();
	return symbol;
}
*/
import "C"
import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
)

type cgoModule struct {
	path   string
	handle unsafe.Pointer
}

// lastDlError returns dlerror() as a Go error. Must be called from the same OS thread as the
// failing dl* call.
func lastDlError(fallback string) error {
	if msg := C.dlerror(); msg != nil {
		return errors.New(C.GoString(msg))
	}
	return errors.New(fallback)
}

func openModule(path string) (Module, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	// dlerror state is per thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	handle := C.dlopen(cPath, C.RTLD_LAZY|C.RTLD_LOCAL)
	if handle == nil {
		return nil, lastDlError("dlopen failed")
	}
	return &cgoModule{path: path, handle: handle}, nil
}

// Bind implements Module.
func (m *cgoModule) Bind(name string, fnPtr any) error {
	if m.handle == nil {
		return errors.Errorf("library %q already closed", m.path)
	}
	switch fnPtr.(type) {
	case *ChipCountFunc, *PIDsFunc, *MetricsFunc:
	default:
		return errors.Errorf("cannot bind %s to a %T", name, fnPtr)
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))
	var cErr *C.char
	runtime.LockOSThread()
	symbol := C.lookup_symbol(m.handle, cName, &cErr)
	runtime.UnlockOSThread()
	if cErr != nil {
		return errors.New(C.GoString(cErr))
	}
	if symbol == nil {
		return errors.Errorf("%s resolved to NULL", name)
	}

	switch fn := fnPtr.(type) {
	case *ChipCountFunc:
		*fn = func() int32 {
			return int32(C.call_tpu_chip_count(symbol))
		}
	case *PIDsFunc:
		*fn = func(pids *int64, n int32) int32 {
			return int32(C.call_tpu_pids(symbol, (*C.int64_t)(unsafe.Pointer(pids)), C.int(n)))
		}
	case *MetricsFunc:
		*fn = func(port int32, deviceIDs, memoryUsage, totalMemory *int64, dutyCyclePct *float64, n int32) int32 {
			return int32(C.call_tpu_metrics(symbol, C.int(port),
				(*C.int64_t)(unsafe.Pointer(deviceIDs)),
				(*C.int64_t)(unsafe.Pointer(memoryUsage)),
				(*C.int64_t)(unsafe.Pointer(totalMemory)),
				(*C.double)(unsafe.Pointer(dutyCyclePct)),
				C.int(n)))
		}
	}
	return nil
}

// Close implements Module.
func (m *cgoModule) Close() error {
	if m.handle == nil {
		return nil
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	ret := C.dlclose(m.handle)
	m.handle = nil
	if ret != 0 {
		return lastDlError("dlclose failed")
	}
	return nil
}
