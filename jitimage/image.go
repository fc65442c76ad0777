// Package jitimage implements the image memory manager: it reserves one
// contiguous virtual-address region per loaded module, sub-divides it into
// code / read-only-data / read-write-data sections, applies final page
// permissions once, and tears the image down by decommitting (but not
// releasing) its pages so stale pointers fault rather than alias later
// allocations.
package jitimage

import (
	"fmt"

	"github.com/wavmgo/wavm/internal/platform"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// SetLogger installs the package-wide structured logger. The default is a
// no-op logger.
func SetLogger(l *zap.Logger) { logger = l }

// Logger returns the currently installed logger.
func Logger() *zap.Logger { return logger }

// ReserveOptions describes the three sections of a module image before any
// bytes have been placed in them.
type ReserveOptions struct {
	CodeBytes, CodeAlign           int
	ReadOnlyBytes, ReadOnlyAlign   int
	ReadWriteBytes, ReadWriteAlign int

	// SEHTrampoline pads the code section by 32 bytes for the 16-byte
	// indirect-jump trampoline the Windows SEH fixup writes (§4.5 step 5).
	// The image itself doesn't know about SEH; the loader sets this when
	// running on a platform that needs it.
	SEHTrampoline bool

	// PageSize overrides platform.PageSize; tests use this to exercise
	// section-boundary math without depending on the host's real page
	// size.
	PageSize int
}

const sehTrampolinePadding = 32

// ModuleImage owns one virtual-address reservation split into three
// sections in fixed order: code, read-only data, read-write data.
type ModuleImage struct {
	pages     *platform.Pages
	pageSize  int
	sections  [3]*Section
	ehFrames  platform.EHFrames
	finalized bool
	torndown  bool
}

// Reserve allocates the image's backing pages and lays out its three
// sections contiguously, committed read-write. Reservation failure is
// always fatal to the caller per §4.3.
func Reserve(opts ReserveOptions) (*ModuleImage, error) {
	pageSize := opts.PageSize
	if pageSize == 0 {
		pageSize = platform.PageSize
	}

	codeBytes := opts.CodeBytes
	if opts.SEHTrampoline {
		codeBytes += sehTrampolinePadding
	}

	codePages := pagesFor(codeBytes, pageSize)
	roPages := pagesFor(opts.ReadOnlyBytes, pageSize)
	rwPages := pagesFor(opts.ReadWriteBytes, pageSize)
	total := codePages + roPages + rwPages

	pages, err := platform.Reserve(total)
	if err != nil {
		return nil, fmt.Errorf("jitimage: reserve %d pages: %w", total, err)
	}

	img := &ModuleImage{pages: pages, pageSize: pageSize}
	offset := 0
	img.sections[Code] = newSection(Code, offset, codePages)
	offset += codePages * pageSize
	img.sections[ReadOnlyData] = newSection(ReadOnlyData, offset, roPages)
	offset += roPages * pageSize
	img.sections[ReadWriteData] = newSection(ReadWriteData, offset, rwPages)

	logger.Debug("reserved module image",
		zap.Int("code_pages", codePages),
		zap.Int("rodata_pages", roPages),
		zap.Int("rwdata_pages", rwPages),
	)
	return img, nil
}

// BaseAddress returns the address of the start of the whole reservation.
func (m *ModuleImage) BaseAddress() uintptr { return m.pages.Addr }

// EndAddress returns the address one past the end of the whole
// reservation, the key the global registry indexes modules under.
func (m *ModuleImage) EndAddress() uintptr {
	return m.pages.Addr + uintptr(len(m.pages.Bytes()))
}

// SectionBase returns the address of the start of the given section.
func (m *ModuleImage) SectionBase(kind Kind) uintptr {
	return m.pages.Addr + uintptr(m.sections[kind].offset)
}

// Allocate places bytes-worth of data in the named section, aligned to
// alignment, and returns a writable slice over the placed region. Must not
// be called after Finalize.
func (m *ModuleImage) Allocate(kind Kind, bytes, alignment int) ([]byte, error) {
	if m.finalized {
		panic("jitimage: allocate after finalize is a programmer error")
	}
	s := m.sections[kind]
	start, err := s.allocate(bytes, alignment, m.pageSize)
	if err != nil {
		return nil, err
	}
	base := s.offset + start
	return m.pages.Bytes()[base : base+bytes], nil
}

// SectionBytes returns a writable slice over the whole committed range of
// a section, for callers (such as the object loader) that place data
// through their own cursor logic.
func (m *ModuleImage) SectionBytes(kind Kind) []byte {
	s := m.sections[kind]
	return m.pages.Bytes()[s.offset : s.offset+s.reservedBytes(m.pageSize)]
}

// Finalize flips each section to its final permission and invalidates the
// instruction cache. One-shot; a second call is a programmer error.
func (m *ModuleImage) Finalize() error {
	if m.finalized {
		panic("jitimage: double finalize is a programmer error")
	}
	if err := platform.ProtectRange(m.SectionBytes(Code), platform.ProtectExecute); err != nil {
		return err
	}
	if err := platform.ProtectRange(m.SectionBytes(ReadOnlyData), platform.ProtectRead); err != nil {
		return err
	}
	// Read-write data keeps its already-committed read-write permission.
	platform.FlushInstructionCache(m.SectionBytes(Code))
	m.finalized = true
	logger.Debug("finalized module image", zap.Uintptr("base", m.pages.Addr))
	return nil
}

// RegisterEHFrames records and (where the platform supports it without
// cgo) installs an unwind-frame range with the OS. Per platform.EHFrames'
// contract it is called once; a second call without an intervening
// DeregisterEHFrames is a programmer error.
func (m *ModuleImage) RegisterEHFrames(base uintptr, data []byte) error {
	return m.ehFrames.Register(base, data)
}

// DeregisterEHFrames is idempotent; it does nothing if nothing is
// registered.
func (m *ModuleImage) DeregisterEHFrames() { m.ehFrames.Deregister() }

// Teardown deregisters unwind frames and decommits the reservation without
// releasing the address range, so dangling pointers into this image fault
// rather than alias a later allocation at the same address. Idempotent.
func (m *ModuleImage) Teardown() error {
	if m.torndown {
		return nil
	}
	m.DeregisterEHFrames()
	if err := platform.Decommit(m.pages); err != nil {
		return fmt.Errorf("jitimage: teardown: %w", err)
	}
	m.torndown = true
	logger.Debug("tore down module image", zap.Uintptr("base", m.pages.Addr))
	return nil
}
