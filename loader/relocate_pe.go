package loader

import (
	"encoding/binary"
	"fmt"
)

// COFF/PE relocation kinds (IMAGE_REL_AMD64_*). debug/pe doesn't export
// these as named constants (unlike debug/elf's R_X86_64_* family), so the
// values come directly from the Microsoft PE/COFF specification.
const (
	peAMD64Addr64   = uint32(0x0001)
	peAMD64Addr32NB = uint32(0x0003)
	peAMD64Rel32    = uint32(0x0004)
)

// applyPERelocation mirrors applyELFRelocation for COFF's relocation
// kinds. imageBase is the module image's base address: ADDR32NB entries
// (used by .pdata/.xdata, §4.5 step 3/5) are relative to it, not to the
// patch site.
func applyPERelocation(data []byte, r ObjectRelocation, loadAddr, symAddr, imageBase uintptr) error {
	patchSite := data[r.Offset:]
	pc := loadAddr + uintptr(r.Offset)

	switch r.Kind {
	case peAMD64Addr64:
		binary.LittleEndian.PutUint64(patchSite, uint64(symAddr))
	case peAMD64Rel32:
		value := int64(symAddr) - int64(pc) - 4
		binary.LittleEndian.PutUint32(patchSite, uint32(int32(value)))
	case peAMD64Addr32NB:
		value := int64(symAddr) - int64(imageBase)
		binary.LittleEndian.PutUint32(patchSite, uint32(int32(value)))
	default:
		return fmt.Errorf("loader: unimplemented COFF relocation kind %d", r.Kind)
	}
	return nil
}
