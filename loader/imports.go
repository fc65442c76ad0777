package loader

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// IntrinsicExport is a WebAssembly intrinsic the loaded code may call
// directly, exposed under its own exported name.
type IntrinsicExport struct {
	Name    string `validate:"required"`
	Address uintptr
}

// FunctionImport is one function the module imports from its host.
type FunctionImport struct {
	Index   int `validate:"gte=0"`
	Address uintptr
}

// TableImport is one table the module imports; Offset is the byte offset
// of the table's slot within the per-compartment runtime-data record.
type TableImport struct {
	Index  int `validate:"gte=0"`
	Offset uintptr
}

// MemoryImport is analogous to TableImport for imported memories.
type MemoryImport struct {
	Index  int `validate:"gte=0"`
	Offset uintptr
}

// GlobalImport is one imported global. For mutable globals, Address is the
// byte offset into the per-context global-data region; for immutable
// globals, it is the address of the immutable value itself.
type GlobalImport struct {
	Index   int `validate:"gte=0"`
	Mutable bool
	Address uintptr
}

// ExceptionTypeImport is one imported exception type descriptor.
type ExceptionTypeImport struct {
	Index   int `validate:"gte=0"`
	Address uintptr
}

// Imports describes everything the object loader driver needs to build
// the import symbol table in step 1 of §4.5's procedure.
type Imports struct {
	Intrinsics      []IntrinsicExport     `validate:"dive"`
	Functions       []FunctionImport      `validate:"dive"`
	Tables          []TableImport         `validate:"dive"`
	Memories        []MemoryImport        `validate:"dive"`
	Globals         []GlobalImport        `validate:"dive"`
	ExceptionTypes  []ExceptionTypeImport `validate:"dive"`
}

// BuildSymbolTable generates the synthetic external name for each import
// and maps it to its native address, per §4.5 step 1. A duplicate name
// (which happens if the caller repeats an index within one import kind, or
// gives an intrinsic export a name equal to one of the synthetic names) is
// a programmer error and panics rather than being returned as a
// recoverable error.
func (imp *Imports) BuildSymbolTable() (map[string]uintptr, error) {
	if err := validate.Struct(imp); err != nil {
		return nil, fmt.Errorf("loader: invalid import descriptor: %w", err)
	}

	table := make(map[string]uintptr)
	set := func(name string, addr uintptr) {
		if _, dup := table[name]; dup {
			panic(fmt.Sprintf("loader: duplicate import symbol %q", name))
		}
		table[name] = addr
	}

	for _, e := range imp.Intrinsics {
		set(e.Name, e.Address)
	}
	for _, f := range imp.Functions {
		set(fmt.Sprintf("functionImport%d", f.Index), f.Address)
	}
	for _, t := range imp.Tables {
		set(fmt.Sprintf("tableOffset%d", t.Index), t.Offset)
	}
	for _, m := range imp.Memories {
		set(fmt.Sprintf("memoryOffset%d", m.Index), m.Offset)
	}
	for _, g := range imp.Globals {
		set(fmt.Sprintf("global%d", g.Index), g.Address)
	}
	for _, et := range imp.ExceptionTypes {
		set(fmt.Sprintf("exceptionType%d", et.Index), et.Address)
	}
	return table, nil
}
