//go:build !windows

package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Reserve requests n pages of anonymous memory, committed read-write.
// Failure to reserve is always fatal to the caller per §4.3.
func Reserve(n int) (*Pages, error) {
	size := n * PageSize
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("platform: reserve %d pages: %w", n, err)
	}
	return &Pages{Addr: addrOf(data), data: data}, nil
}

// Protect flips the permissions of the whole reservation.
func Protect(p *Pages, prot Protection) error {
	return ProtectRange(p.data, prot)
}

// ProtectRange flips the permissions of a sub-slice of a reservation
// in-place; mprotect accepts any page-aligned range within an existing
// mapping, so sections of one ModuleImage reservation can each carry their
// own final permission.
func ProtectRange(data []byte, prot Protection) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Mprotect(data, toUnixProt(prot)); err != nil {
		return fmt.Errorf("platform: mprotect: %w", err)
	}
	return nil
}

// Release unmaps the reservation, returning the address range to the OS.
// The image memory manager never calls this on a live-but-unloaded image
// (see Decommit); it exists for the rare case of reservation-time rollback.
func Release(p *Pages) error {
	if err := unix.Munmap(p.data); err != nil {
		return fmt.Errorf("platform: munmap: %w", err)
	}
	return nil
}

// Decommit strips all access from the reservation without releasing the
// address range, so that a stale pointer into a torn-down image faults on
// access instead of aliasing a later allocation at the same address.
func Decommit(p *Pages) error {
	return Protect(p, ProtectNone)
}

func toUnixProt(prot Protection) int {
	switch prot {
	case ProtectRead:
		return unix.PROT_READ
	case ProtectReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	case ProtectExecute:
		return unix.PROT_READ | unix.PROT_EXEC
	default:
		return unix.PROT_NONE
	}
}
