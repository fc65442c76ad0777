// Package jitmodule holds the handle types the object loader driver
// constructs and the global registry indexes: JITFunction and
// LoadedModule. It is split out from loader so that registry can depend
// on these types without importing loader (loader calls registry.Register,
// so the reverse import would cycle).
package jitmodule

import orderedmap "github.com/wk8/go-ordered-map/v2"

// JITFunction is one defined function within a loaded module: an address
// range plus an ordered map from code offset to WebAssembly operation
// index. Immutable after construction.
type JITFunction struct {
	name            string
	baseAddress     uintptr
	byteLength      uint64
	offsetToOpIndex *orderedmap.OrderedMap[uint64, int]
}

// NewJITFunction constructs an immutable function record.
func NewJITFunction(name string, baseAddress uintptr, byteLength uint64, offsetToOpIndex *orderedmap.OrderedMap[uint64, int]) *JITFunction {
	if offsetToOpIndex == nil {
		offsetToOpIndex = orderedmap.New[uint64, int]()
	}
	return &JITFunction{name: name, baseAddress: baseAddress, byteLength: byteLength, offsetToOpIndex: offsetToOpIndex}
}

func (f *JITFunction) Name() string               { return f.name }
func (f *JITFunction) BaseAddress() uintptr       { return f.baseAddress }
func (f *JITFunction) EndAddress() uintptr        { return f.baseAddress + uintptr(f.byteLength) }
func (f *JITFunction) ByteLength() uint64         { return f.byteLength }

// Contains reports whether address a falls within [base, base+length).
func (f *JITFunction) Contains(a uintptr) bool {
	return a >= f.baseAddress && a < f.EndAddress()
}

// OpIndexForOffset returns the WebAssembly operation index for the given
// code offset, using the last table entry at or before offset (the usual
// "address falls between line-table rows" interpretation).
func (f *JITFunction) OpIndexForOffset(offset uint64) (int, bool) {
	best := 0
	found := false
	for pair := f.offsetToOpIndex.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key > offset {
			break
		}
		best = pair.Value
		found = true
	}
	return best, found
}
