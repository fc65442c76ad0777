// Package dwarfline walks DWARF line-number tables to build a per-function
// mapping from code offset to WebAssembly operation index, the information
// the object loader driver attaches to every JITFunction it constructs
// (§4.5 step 8).
package dwarfline

import (
	"debug/dwarf"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// OffsetToOpIndex builds an ordered offset->operation-index map covering
// [funcAddr, funcAddr+funcLen) by walking d's line table. Entries with no
// corresponding line-table row are simply absent from the result; a
// function compiled without line info yields an empty map rather than an
// error, since DWARF data is diagnostic, not load-critical.
func OffsetToOpIndex(d *dwarf.Data, funcAddr, funcLen uint64) (*orderedmap.OrderedMap[uint64, int], error) {
	result := orderedmap.New[uint64, int]()
	if d == nil {
		return result, nil
	}

	reader := d.Reader()
	end := funcAddr + funcLen

	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("dwarfline: read compile unit: %w", err)
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			continue
		}

		lineReader, err := d.LineReader(entry)
		if err != nil || lineReader == nil {
			continue
		}

		var line dwarf.LineEntry
		if err := lineReader.SeekPC(funcAddr, &line); err != nil {
			continue
		}
		for {
			if line.Address >= end {
				break
			}
			if line.Address >= funcAddr {
				// The code generator encodes the WebAssembly operation index
				// as the DWARF line number, not a real source line.
				result.Set(line.Address-funcAddr, line.Line)
			}
			if err := lineReader.Next(&line); err != nil {
				break
			}
		}
	}
	return result, nil
}
