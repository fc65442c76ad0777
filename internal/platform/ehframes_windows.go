//go:build windows

package platform

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	ntdll                      = windows.NewLazySystemDLL("ntdll.dll")
	procRtlAddFunctionTable    = ntdll.NewProc("RtlAddFunctionTable")
	procRtlDeleteFunctionTable = ntdll.NewProc("RtlDeleteFunctionTable")
)

// RuntimeFunction mirrors the OS's RUNTIME_FUNCTION entry: an
// image-relative [begin, end) range plus the offset of its unwind info,
// all 32-bit since COFF unwind tables are image-relative rather than
// absolute. loader/seh_windows.go builds these after patching pdata.
type RuntimeFunction struct {
	BeginAddress uint32
	EndAddress   uint32
	UnwindInfo   uint32
}

// EHFrames registers a COFF function table with the OS unwinder via
// RtlAddFunctionTable, the genuine Windows equivalent of the non-Windows
// __register_frame call. data is the raw bytes of a RuntimeFunction array;
// base is the module's image base, since RtlAddFunctionTable's entries are
// image-relative.
type EHFrames struct {
	mu         sync.Mutex
	entries    []RuntimeFunction
	registered bool
}

// Register installs data (a serialized []RuntimeFunction) against base.
func (f *EHFrames) Register(base uintptr, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(data) == 0 {
		return nil
	}
	entries := unsafe.Slice((*RuntimeFunction)(unsafe.Pointer(&data[0])), len(data)/12)
	ret, _, _ := procRtlAddFunctionTable.Call(
		uintptr(unsafe.Pointer(&entries[0])),
		uintptr(len(entries)),
		base,
	)
	if ret == 0 {
		return fmt.Errorf("platform: RtlAddFunctionTable failed")
	}
	f.entries, f.registered = entries, true
	return nil
}

// Deregister is idempotent.
func (f *EHFrames) Deregister() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.registered || len(f.entries) == 0 {
		return
	}
	procRtlDeleteFunctionTable.Call(uintptr(unsafe.Pointer(&f.entries[0])))
	f.registered = false
}

// Registered reports whether a table is currently installed.
func (f *EHFrames) Registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}
