package loader

import (
	"encoding/binary"
	"fmt"
)

// Mach-O relocation kinds, matching the X86_64_RELOC_* / ARM64_RELOC_*
// constants debug/macho exposes only as raw integers (it doesn't define
// named constants the way debug/elf does for ELF).
const (
	machoX8664RelocUnsigned  = uint32(0)
	machoX8664RelocSigned    = uint32(1)
	machoX8664RelocBranch    = uint32(2)
	machoARM64RelocUnsigned  = uint32(0)
	machoARM64RelocBranch26  = uint32(2)
	machoARM64RelocPage21    = uint32(3)
	machoARM64RelocPageoff12 = uint32(4)
)

// applyMachORelocation mirrors applyELFRelocation for Mach-O's relocation
// kinds. Mach-O relocations are always addend-free (the addend, if any,
// comes pre-folded into the instruction by the assembler), so r.Addend is
// unused here.
func applyMachORelocation(data []byte, r ObjectRelocation, loadAddr, symAddr uintptr, isARM64 bool) error {
	patchSite := data[r.Offset:]
	pc := loadAddr + uintptr(r.Offset)

	if isARM64 {
		switch r.Kind {
		case machoARM64RelocUnsigned:
			binary.LittleEndian.PutUint64(patchSite, uint64(symAddr))
		case machoARM64RelocBranch26:
			value := (int64(symAddr) - int64(pc)) >> 2
			insn := binary.LittleEndian.Uint32(patchSite)
			insn = (insn &^ 0x03ffffff) | uint32(value)&0x03ffffff
			binary.LittleEndian.PutUint32(patchSite, insn)
		case machoARM64RelocPage21:
			pageDelta := int64(symAddr)>>12 - int64(pc)>>12
			immlo := uint32(pageDelta) & 0x3
			immhi := (uint32(pageDelta) >> 2) & 0x7ffff
			insn := binary.LittleEndian.Uint32(patchSite)
			insn = (insn &^ (0x3 << 29)) &^ (0x7ffff << 5)
			insn |= immlo << 29
			insn |= immhi << 5
			binary.LittleEndian.PutUint32(patchSite, insn)
		case machoARM64RelocPageoff12:
			imm12 := uint32(symAddr) & 0xfff
			insn := binary.LittleEndian.Uint32(patchSite)
			insn = (insn &^ (0xfff << 10)) | (imm12 << 10)
			binary.LittleEndian.PutUint32(patchSite, insn)
		default:
			return fmt.Errorf("loader: unimplemented Mach-O ARM64 relocation kind %d", r.Kind)
		}
		return nil
	}

	switch r.Kind {
	case machoX8664RelocUnsigned:
		binary.LittleEndian.PutUint64(patchSite, uint64(symAddr))
	case machoX8664RelocSigned, machoX8664RelocBranch:
		value := int64(symAddr) - int64(pc) - 4
		binary.LittleEndian.PutUint32(patchSite, uint32(int32(value)))
	default:
		return fmt.Errorf("loader: unimplemented Mach-O x86_64 relocation kind %d", r.Kind)
	}
	return nil
}
