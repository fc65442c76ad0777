//go:build windows

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Reserve requests n pages of committed, read-write virtual memory via
// VirtualAlloc. Failure to reserve is always fatal to the caller per §4.3.
func Reserve(n int) (*Pages, error) {
	size := uintptr(n * PageSize)
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("platform: VirtualAlloc %d pages: %w", n, err)
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return &Pages{Addr: addr, data: data}, nil
}

// Protect flips the permissions of the whole reservation.
func Protect(p *Pages, prot Protection) error {
	return ProtectRange(p.data, prot)
}

// ProtectRange flips the permissions of a sub-slice of a reservation.
func ProtectRange(data []byte, prot Protection) error {
	if len(data) == 0 {
		return nil
	}
	var old uint32
	addr := uintptr(unsafe.Pointer(&data[0]))
	if err := windows.VirtualProtect(addr, uintptr(len(data)), toWindowsProt(prot), &old); err != nil {
		return fmt.Errorf("platform: VirtualProtect: %w", err)
	}
	return nil
}

// Release returns the address range to the OS.
func Release(p *Pages) error {
	return windows.VirtualFree(p.Addr, 0, windows.MEM_RELEASE)
}

// Decommit strips access from the reservation without releasing the
// address range.
func Decommit(p *Pages) error {
	return windows.VirtualFree(p.Addr, uintptr(len(p.data)), windows.MEM_DECOMMIT)
}

func toWindowsProt(prot Protection) uint32 {
	switch prot {
	case ProtectRead:
		return windows.PAGE_READONLY
	case ProtectReadWrite:
		return windows.PAGE_READWRITE
	case ProtectExecute:
		return windows.PAGE_EXECUTE_READ
	default:
		return windows.PAGE_NOACCESS
	}
}
