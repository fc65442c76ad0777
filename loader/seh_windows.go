//go:build windows

package loader

import (
	"fmt"
	"unsafe"

	"github.com/wavmgo/wavm/jitimage"
)

// sehTrampolineSize is the 16-byte stub §4.5 step 5 describes: a 6-byte
// indirect jump (FF 25 00 00 00 00, i.e. "jmp [rip+0]") immediately
// followed by the 8-byte absolute address it dereferences.
const sehTrampolineSize = 16

// preSnapshotSEHSections copies .pdata/.xdata aside before relocations are
// applied, because the backend's object loader does not correctly emit the
// image-relative-32 relocation those sections use when the target (the SEH
// personality routine) lies outside the image.
func preSnapshotSEHSections(state *loadState) {
	if state.pdataIndex < 0 || state.xdataIndex < 0 {
		return
	}
	state.pdataSnapshot = append([]byte(nil), state.obj.Sections[state.pdataIndex].Data...)
	state.xdataSnapshot = append([]byte(nil), state.obj.Sections[state.xdataIndex].Data...)
}

// applySEHFixup allocates the trampoline, redirects every pdata/xdata
// relocation targeting the SEH handler through it instead of the real
// (out-of-image) handler address, and registers the patched .pdata range
// with the OS unwinder.
func applySEHFixup(state *loadState) error {
	if state.pdataIndex < 0 || state.xdataIndex < 0 {
		return nil
	}

	handlerAddr, ok := state.resolver.FindSymbol(sehHandlerSymbolName)
	if !ok {
		return fmt.Errorf("loader: SEH handler symbol %q not resolved", sehHandlerSymbolName)
	}
	state.sehHandlerAddr = handlerAddr

	trampoline, err := state.img.Allocate(jitimage.Code, sehTrampolineSize, 16)
	if err != nil {
		return fmt.Errorf("loader: allocating SEH trampoline: %w", err)
	}
	trampoline[0], trampoline[1] = 0xff, 0x25
	trampoline[2], trampoline[3], trampoline[4], trampoline[5] = 0, 0, 0, 0
	putUint64LE(trampoline[6:14], uint64(handlerAddr))
	trampolineAddr := uintptr(unsafe.Pointer(&trampoline[0]))

	for _, secIdx := range []int{state.pdataIndex, state.xdataIndex} {
		s := &state.obj.Sections[secIdx]
		loadAddr := state.sectionLoadAddr[secIdx]
		for _, r := range s.Relocations {
			if r.Symbol < 0 || r.Symbol >= len(state.obj.Symbols) {
				continue
			}
			if state.obj.Symbols[r.Symbol].Name != sehHandlerSymbolName {
				continue
			}
			if err := applyPERelocation(s.Data, r, loadAddr, trampolineAddr, state.img.BaseAddress()); err != nil {
				return fmt.Errorf("loader: patching SEH fixup in %q: %w", s.Name, err)
			}
		}
	}

	pdata := state.obj.Sections[state.pdataIndex].Data
	if err := state.img.RegisterEHFrames(state.img.BaseAddress(), pdata); err != nil {
		return fmt.Errorf("loader: registering unwind table: %w", err)
	}
	logger.Debug("applied SEH fixup")
	return nil
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
