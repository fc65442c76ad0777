package loader

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"fmt"
)

// Format identifies which native object-file container objectBytes was
// sniffed as.
type Format int

const (
	FormatELF Format = iota
	FormatMachO
	FormatPE
)

// ObjectFile is the format-unified view of a relocatable object the driver
// loads: defined/undefined symbols, sections, and relocations, normalized
// away from the three native container formats. It mirrors the role
// ObjectFile::createObjectFile plays ahead of llvm::RuntimeDyld in the
// original loader.
type ObjectFile struct {
	Format   Format
	Sections []ObjectSection
	Symbols  []ObjectSymbol
}

// ObjectSection is one named section: code, data, or a metadata section
// such as .pdata/.xdata/debug_line that the driver inspects directly.
type ObjectSection struct {
	Name         string
	Data         []byte
	Relocations  []ObjectRelocation
	Addr         uint64 // virtual address as recorded in the object, pre-load
}

// ObjectSymbol is one symbol table entry: its name, which section (by
// index into ObjectFile.Sections, -1 if undefined) it's defined in, its
// offset within that section, and its size.
type ObjectSymbol struct {
	Name    string
	Section int
	Offset  uint64
	Size    uint64
	IsFunc  bool
}

// ObjectRelocation is one relocation entry within a section: the byte
// offset to patch, the symbol it refers to (by index into
// ObjectFile.Symbols), the relocation kind (format-specific, passed
// through to the relocate* files), and an addend where the format
// supports one.
type ObjectRelocation struct {
	Offset uint64
	Symbol int
	Kind   uint32
	Addend int64
}

// OpenObjectFile sniffs objectBytes' magic and parses it with the matching
// debug/* package. Failure is fatal per §4.5 step 2.
func OpenObjectFile(objectBytes []byte) (*ObjectFile, error) {
	switch {
	case bytes.HasPrefix(objectBytes, []byte("\x7fELF")):
		return parseELF(objectBytes)
	case bytes.HasPrefix(objectBytes, []byte("\xfe\xed\xfa")) || bytes.HasPrefix(objectBytes, []byte("\xcf\xfa\xed\xfe")) || bytes.HasPrefix(objectBytes, []byte("\xce\xfa\xed\xfe")):
		return parseMachO(objectBytes)
	case len(objectBytes) >= 2 && (objectBytes[0] == 0x4c || objectBytes[0] == 0x64) && objectBytes[1] == 0x01:
		return parsePE(objectBytes)
	default:
		return nil, fmt.Errorf("loader: unrecognized object file magic")
	}
}

func parseELF(objectBytes []byte) (*ObjectFile, error) {
	f, err := elf.NewFile(bytes.NewReader(objectBytes))
	if err != nil {
		return nil, fmt.Errorf("loader: open ELF object: %w", err)
	}
	defer f.Close()

	out := &ObjectFile{Format: FormatELF}
	sectionIndex := make(map[*elf.Section]int)
	for _, s := range f.Sections {
		data, _ := s.Data()
		sectionIndex[s] = len(out.Sections)
		out.Sections = append(out.Sections, ObjectSection{Name: s.Name, Data: data, Addr: s.Addr})
	}

	// A missing .symtab is not fatal on its own: an object defining
	// nothing still parses, it just contributes no symbols.
	symbols, _ := f.Symbols()
	for _, sym := range symbols {
		secIdx := -1
		if sym.Section != elf.SHN_UNDEF && int(sym.Section) < len(f.Sections) {
			secIdx = sectionIndex[f.Sections[sym.Section]]
		}
		out.Symbols = append(out.Symbols, ObjectSymbol{
			Name:    sym.Name,
			Section: secIdx,
			Offset:  sym.Value,
			Size:    sym.Size,
			IsFunc:  elf.ST_TYPE(sym.Info) == elf.STT_FUNC,
		})
	}

	for _, s := range f.Sections {
		if s.Type != elf.SHT_REL && s.Type != elf.SHT_RELA {
			continue
		}
		relocs, err := elfRelocations(f, s)
		if err != nil {
			return nil, fmt.Errorf("loader: read ELF relocations for %s: %w", s.Name, err)
		}
		targetName := s.Name
		switch {
		case len(targetName) > len(".rela") && targetName[:5] == ".rela":
			targetName = targetName[5:]
		case len(targetName) > len(".rel") && targetName[:4] == ".rel":
			targetName = targetName[4:]
		}
		for i := range out.Sections {
			if out.Sections[i].Name == targetName {
				out.Sections[i].Relocations = relocs
				break
			}
		}
	}
	return out, nil
}

func parseMachO(objectBytes []byte) (*ObjectFile, error) {
	f, err := macho.NewFile(bytes.NewReader(objectBytes))
	if err != nil {
		return nil, fmt.Errorf("loader: open Mach-O object: %w", err)
	}
	defer f.Close()

	out := &ObjectFile{Format: FormatMachO}
	sectionIndex := make(map[string]int)
	for _, s := range f.Sections {
		data, _ := s.Data()
		sectionIndex[s.Name] = len(out.Sections)
		var relocs []ObjectRelocation
		for _, r := range s.Relocs {
			relocs = append(relocs, ObjectRelocation{
				Offset: uint64(r.Addr),
				Symbol: int(r.Value),
				Kind:   uint32(r.Type),
				Addend: 0,
			})
		}
		out.Sections = append(out.Sections, ObjectSection{Name: s.Name, Data: data, Addr: s.Addr, Relocations: relocs})
	}
	for _, sym := range f.Symtab.Syms {
		secIdx := -1
		if int(sym.Sect) >= 1 && int(sym.Sect)-1 < len(f.Sections) {
			secIdx = sectionIndex[f.Sections[sym.Sect-1].Name]
		}
		out.Symbols = append(out.Symbols, ObjectSymbol{
			Name:    sym.Name,
			Section: secIdx,
			Offset:  sym.Value,
			IsFunc:  sym.Sect != 0,
		})
	}
	return out, nil
}

func parsePE(objectBytes []byte) (*ObjectFile, error) {
	f, err := pe.NewFile(bytes.NewReader(objectBytes))
	if err != nil {
		return nil, fmt.Errorf("loader: open PE/COFF object: %w", err)
	}
	defer f.Close()

	out := &ObjectFile{Format: FormatPE}
	sectionIndex := make(map[string]int)
	for _, s := range f.Sections {
		data, _ := s.Data()
		sectionIndex[s.Name] = len(out.Sections)
		var relocs []ObjectRelocation
		for _, r := range s.Relocs {
			relocs = append(relocs, ObjectRelocation{
				Offset: uint64(r.VirtualAddress),
				Symbol: int(r.SymbolTableIndex),
				Kind:   uint32(r.Type),
			})
		}
		out.Sections = append(out.Sections, ObjectSection{Name: s.Name, Data: data, Relocations: relocs})
	}
	for _, sym := range f.Symbols {
		secIdx := int(sym.SectionNumber) - 1
		if secIdx < 0 || secIdx >= len(out.Sections) {
			secIdx = -1
		}
		out.Symbols = append(out.Symbols, ObjectSymbol{
			Name:    sym.Name,
			Section: secIdx,
			Offset:  uint64(sym.Value),
			IsFunc:  sym.Type == 0x20,
		})
	}
	return out, nil
}

func elfRelocations(f *elf.File, relSection *elf.Section) ([]ObjectRelocation, error) {
	data, err := relSection.Data()
	if err != nil {
		return nil, err
	}
	var out []ObjectRelocation
	switch f.Class {
	case elf.ELFCLASS64:
		entrySize := 24
		if relSection.Type == elf.SHT_REL {
			entrySize = 16
		}
		for off := 0; off+entrySize <= len(data); off += entrySize {
			info := f.ByteOrder.Uint64(data[off+8:])
			r := ObjectRelocation{
				Offset: f.ByteOrder.Uint64(data[off:]),
				// f.Symbols omits the null symbol at index 0, so raw
				// symtab index x is ObjectFile.Symbols[x-1].
				Symbol: int(info>>32) - 1,
				Kind:   uint32(info),
			}
			if relSection.Type == elf.SHT_RELA {
				r.Addend = int64(f.ByteOrder.Uint64(data[off+16:]))
			}
			out = append(out, r)
		}
	default:
		entrySize := 12
		if relSection.Type == elf.SHT_REL {
			entrySize = 8
		}
		for off := 0; off+entrySize <= len(data); off += entrySize {
			info := f.ByteOrder.Uint32(data[off+4:])
			r := ObjectRelocation{
				Offset: uint64(f.ByteOrder.Uint32(data[off:])),
				Symbol: int(info>>8) - 1,
				Kind:   info & 0xff,
			}
			if relSection.Type == elf.SHT_RELA {
				r.Addend = int64(int32(f.ByteOrder.Uint32(data[off+8:])))
			}
			out = append(out, r)
		}
	}
	return out, nil
}
