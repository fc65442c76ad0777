package jitmodule

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/btree"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// functionDefPrefix is the synthetic name the code generator gives every
// module-defined function, followed by its definition index (§6: "an
// ordered list of function pointers ... obtained by looking up synthetic
// names functionDef + index for i in 0..numFunctionDefs-1").
const functionDefPrefix = "functionDef"

// functionDefIndex reports the index encoded in a functionDef<N> name, if
// name has that shape.
func functionDefIndex(name string) (int, bool) {
	suffix := strings.TrimPrefix(name, functionDefPrefix)
	if suffix == name {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// funcEndItem is a btree.Item keyed by a function's end address, used for
// the registry's "first function whose end address is strictly greater
// than x" lookup (§4.6 step 2).
type funcEndItem struct {
	end uintptr
	fn  *JITFunction
}

func (i funcEndItem) Less(other btree.Item) bool {
	return i.end < other.(funcEndItem).end
}

// Image is the minimal surface LoadedModule needs from a module's backing
// memory: its address range and teardown. jitimage.ModuleImage satisfies
// this without jitmodule importing jitimage, keeping the dependency arrow
// pointing one way (loader imports both; jitmodule imports neither).
type Image interface {
	BaseAddress() uintptr
	Teardown() error
}

// LoadedModule owns one image and the functions loaded into it, plus two
// lookup indices: a name->function map (insertion-ordered) and a
// function-end-address map (ordered, for the registry's range lookup).
// "functionDef<N>" enumeration goes through defsByIndex, not the name map.
type LoadedModule struct {
	mu          sync.RWMutex
	image       Image
	imageEnd    uintptr
	nameToFunc  *orderedmap.OrderedMap[string, *JITFunction]
	endToFunc   *btree.BTree
	defsByIndex []*JITFunction
	unregister  func()
}

// New constructs a LoadedModule over image, whose address range ends at
// imageEnd. unregister is called exactly once by Unload, after the image
// is torn down, to let the registry remove this module's entry; it may be
// nil if the module is never registered (e.g. in tests).
func New(image Image, imageEnd uintptr, unregister func()) *LoadedModule {
	return &LoadedModule{
		image:      image,
		imageEnd:   imageEnd,
		nameToFunc: orderedmap.New[string, *JITFunction](),
		endToFunc:  btree.New(8),
		unregister: unregister,
	}
}

// ImageEnd returns the image-end address this module is (or will be)
// registered under.
func (m *LoadedModule) ImageEnd() uintptr { return m.imageEnd }

// AddFunction installs fn into the name map, the function-end map, and (if
// its name has the functionDef<N> shape) the index-addressed definition
// table. A duplicate name is a programmer error: the loader generates these
// names itself, and a collision means a bug in the synthetic-naming scheme,
// not a condition a caller can meaningfully recover from.
func (m *LoadedModule) AddFunction(fn *JITFunction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, present := m.nameToFunc.Get(fn.name); present {
		panic(fmt.Sprintf("jitmodule: duplicate function name %q", fn.name))
	}
	m.nameToFunc.Set(fn.name, fn)
	m.endToFunc.ReplaceOrInsert(funcEndItem{end: fn.EndAddress(), fn: fn})
	if idx, ok := functionDefIndex(fn.name); ok {
		if idx >= len(m.defsByIndex) {
			grown := make([]*JITFunction, idx+1)
			copy(grown, m.defsByIndex)
			m.defsByIndex = grown
		}
		m.defsByIndex[idx] = fn
	}
}

// FunctionByName looks up a function by its synthetic or export name.
func (m *LoadedModule) FunctionByName(name string) (*JITFunction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nameToFunc.Get(name)
}

// NumFunctionDefs returns the number of module-defined functions, i.e. the
// highest functionDef<N> index seen plus one.
func (m *LoadedModule) NumFunctionDefs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.defsByIndex)
}

// FunctionDefinition looks up the i'th module-defined function directly,
// mirroring the original's nameToFunctionMap[getExternalName("functionDef",
// i)] lookup.
func (m *LoadedModule) FunctionDefinition(i int) (*JITFunction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.defsByIndex) || m.defsByIndex[i] == nil {
		return nil, false
	}
	return m.defsByIndex[i], true
}

// Functions returns every module-defined function in definition-index
// order, per §6's output contract: the ordered list obtained by looking up
// functionDef0, functionDef1, ... functionDef<numFunctionDefs-1> in turn.
// Functions whose names don't have that shape (e.g. none, today, but the
// loader never rules it out) are not definitions and are omitted.
func (m *LoadedModule) Functions() []*JITFunction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*JITFunction, 0, len(m.defsByIndex))
	for _, fn := range m.defsByIndex {
		if fn != nil {
			out = append(out, fn)
		}
	}
	return out
}

// FunctionForAddress finds the first function whose end address is
// strictly greater than a, then checks whether a actually falls within its
// range. This mirrors the registry's own two-level lookup but scoped to
// one module, so it never needs the registry's global mutex: once a
// module is registered, its function table is immutable.
func (m *LoadedModule) FunctionForAddress(a uintptr) (*JITFunction, bool) {
	var candidate *JITFunction
	m.endToFunc.AscendGreaterOrEqual(funcEndItem{end: a + 1}, func(item btree.Item) bool {
		candidate = item.(funcEndItem).fn
		return false
	})
	if candidate == nil || !candidate.Contains(a) {
		return nil, false
	}
	return candidate, true
}

// Unload tears down the module's image and, if registered, removes it
// from the registry. Safe to call at most once.
func (m *LoadedModule) Unload() error {
	if err := m.image.Teardown(); err != nil {
		return fmt.Errorf("jitmodule: unload: %w", err)
	}
	if m.unregister != nil {
		m.unregister()
	}
	return nil
}
