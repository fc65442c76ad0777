package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// ELF relocation kinds this driver knows how to apply. Scoped to what a
// code generator targeting amd64 or arm64 actually emits; anything else
// fails loudly rather than silently mis-patching, per §4.5's "on loader
// failure, abort fatally" contract extended to our own relocation step.
const (
	rX86_64_64    = uint32(elf.R_X86_64_64)
	rX86_64_PC32  = uint32(elf.R_X86_64_PC32)
	rX86_64_PLT32 = uint32(elf.R_X86_64_PLT32)

	rAArch64_ABS64            = uint32(elf.R_AARCH64_ABS64)
	rAArch64_CALL26           = uint32(elf.R_AARCH64_CALL26)
	rAArch64_JUMP26           = uint32(elf.R_AARCH64_JUMP26)
	rAArch64_ADR_PREL_PG_HI21 = uint32(elf.R_AARCH64_ADR_PREL_PG_HI21)
	rAArch64_ADD_ABS_LO12_NC  = uint32(elf.R_AARCH64_ADD_ABS_LO12_NC)
)

// applyELFRelocation patches one relocation entry in place. data is the
// section's bytes as they now sit in the image (so data[r.Offset:] is the
// patch site); loadAddr is that same byte's runtime address; symAddr is
// the resolved address of the relocation's target symbol.
func applyELFRelocation(data []byte, r ObjectRelocation, loadAddr, symAddr uintptr) error {
	patchSite := data[r.Offset:]
	pc := loadAddr + uintptr(r.Offset)

	switch r.Kind {
	case rX86_64_64, rAArch64_ABS64:
		binary.LittleEndian.PutUint64(patchSite, uint64(int64(symAddr)+r.Addend))

	case rX86_64_PC32, rX86_64_PLT32:
		value := int64(symAddr) + r.Addend - int64(pc)
		binary.LittleEndian.PutUint32(patchSite, uint32(int32(value)))

	case rAArch64_CALL26, rAArch64_JUMP26:
		value := (int64(symAddr) + r.Addend - int64(pc)) >> 2
		if value < -(1<<25) || value >= (1<<25) {
			return fmt.Errorf("loader: AArch64 CALL26/JUMP26 target out of range")
		}
		insn := binary.LittleEndian.Uint32(patchSite)
		insn = (insn &^ 0x03ffffff) | uint32(value)&0x03ffffff
		binary.LittleEndian.PutUint32(patchSite, insn)

	case rAArch64_ADR_PREL_PG_HI21:
		pageDelta := (int64(symAddr)+r.Addend)>>12 - int64(pc)>>12
		if pageDelta < -(1<<20) || pageDelta >= (1<<20) {
			return fmt.Errorf("loader: AArch64 ADRP target out of range")
		}
		immlo := uint32(pageDelta) & 0x3
		immhi := (uint32(pageDelta) >> 2) & 0x7ffff
		insn := binary.LittleEndian.Uint32(patchSite)
		insn = (insn &^ (0x3 << 29)) &^ (0x7ffff << 5)
		insn |= immlo << 29
		insn |= immhi << 5
		binary.LittleEndian.PutUint32(patchSite, insn)

	case rAArch64_ADD_ABS_LO12_NC:
		imm12 := uint32(int64(symAddr)+r.Addend) & 0xfff
		insn := binary.LittleEndian.Uint32(patchSite)
		insn = (insn &^ (0xfff << 10)) | (imm12 << 10)
		binary.LittleEndian.PutUint32(patchSite, insn)

	default:
		return fmt.Errorf("loader: unimplemented ELF relocation kind %d", r.Kind)
	}
	return nil
}
