// Package registry implements the process-wide global module registry: an
// ordered mapping from image-end addresses to loaded modules, supporting
// concurrent lookup (§4.6).
package registry

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/wavmgo/wavm/jitmodule"
	"go.uber.org/zap"
)

var logger = zap.NewNop()

// SetLogger installs the package-wide structured logger.
func SetLogger(l *zap.Logger) { logger = l }

// Logger returns the currently installed logger.
func Logger() *zap.Logger { return logger }

type moduleEndItem struct {
	end uintptr
	mod *jitmodule.LoadedModule
}

func (i moduleEndItem) Less(other btree.Item) bool {
	return i.end < other.(moduleEndItem).end
}

// Registry is a process-wide ordered image_end_address -> *LoadedModule
// map, guarded by a single mutex per §4.6's concurrency model: exclusive
// for registration and unregistration, brief (pointer load/extract) for
// lookups.
type Registry struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// Global is the process-wide registry instance every load/unload/lookup
// operation uses. A package-level singleton mirrors WAVM's own
// process-global addressToModuleMap; tests construct their own *Registry
// with New() to avoid cross-test interference.
var Global = New()

// New constructs an empty registry. Most callers should use Global; New
// exists for isolated tests.
func New() *Registry {
	return &Registry{tree: btree.New(8)}
}

// Register installs m, keyed by its image-end address. Registering two
// modules whose image ranges overlap is a programmer error: the image
// memory manager guarantees non-overlapping reservations, so an overlap
// here indicates a bug upstream, not a recoverable condition.
func (r *Registry) Register(m *jitmodule.LoadedModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := moduleEndItem{end: m.ImageEnd(), mod: m}
	if existing := r.tree.Get(item); existing != nil {
		return fmt.Errorf("registry: a module is already registered at end address %#x", m.ImageEnd())
	}
	r.tree.ReplaceOrInsert(item)
	logger.Debug("registered module", zap.Uintptr("image_end", m.ImageEnd()))
	return nil
}

// Unregister removes m's entry. A no-op if m isn't registered.
func (r *Registry) Unregister(m *jitmodule.LoadedModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Delete(moduleEndItem{end: m.ImageEnd()})
	logger.Debug("unregistered module", zap.Uintptr("image_end", m.ImageEnd()))
}

// FunctionForAddress implements the two-level lookup of §4.6: find the
// first registered module whose image-end address is strictly greater
// than a, release the registry lock, then defer to that module's own
// (lock-free) function-end lookup.
func (r *Registry) FunctionForAddress(a uintptr) (*jitmodule.JITFunction, bool) {
	mod := r.moduleAfter(a)
	if mod == nil {
		return nil, false
	}
	return mod.FunctionForAddress(a)
}

func (r *Registry) moduleAfter(a uintptr) *jitmodule.LoadedModule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *jitmodule.LoadedModule
	// a+1 as the pivot: AscendGreaterOrEqual visits end >= a+1, i.e.
	// end > a, the "strictly greater than" the spec calls for.
	r.tree.AscendGreaterOrEqual(moduleEndItem{end: a + 1}, func(item btree.Item) bool {
		found = item.(moduleEndItem).mod
		return false
	})
	return found
}

// Len reports how many modules are currently registered, for tests and
// diagnostics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tree.Len()
}
