// Package loader implements the object loader driver (§4.5): it builds
// the import symbol table, opens a relocatable object, loads it into a
// freshly reserved module image, applies platform-specific unwind-table
// fixups, walks the resulting symbol table into JITFunction records, and
// registers the finished module in the global registry.
package loader

import (
	"debug/dwarf"
	"fmt"
	"time"
	"unsafe"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wavmgo/wavm/internal/dwarfline"
	"github.com/wavmgo/wavm/jitimage"
	"github.com/wavmgo/wavm/jitmodule"
	"github.com/wavmgo/wavm/registry"
	"github.com/wavmgo/wavm/symbols"
)

var logger = zap.NewNop()

// SetLogger installs the package-wide structured logger.
func SetLogger(l *zap.Logger) { logger = l }

// Logger returns the currently installed logger.
func Logger() *zap.Logger { return logger }

// FatalError carries a diagnostic for a failure that leaves the runtime's
// executable-memory state potentially inconsistent (§7's "fatal,
// unrecoverable" regime): object-open failure, backend-loader error,
// section overflow, reservation failure. Callers should treat the whole
// runtime as unsafe to continue past one of these.
type FatalError struct {
	msg string
	err error
}

func (e *FatalError) Error() string { return e.msg }
func (e *FatalError) Unwrap() error { return e.err }

func fatalf(err error, format string, args ...interface{}) *FatalError {
	msg := fmt.Sprintf(format, args...)
	logger.Error(msg, zap.Error(err))
	return &FatalError{msg: msg, err: err}
}

// Config holds the driver's tunables, kept as an explicit struct rather
// than package globals per SPEC_FULL's configuration guidance.
type Config struct {
	// PageSize overrides the host's real page size; used by tests.
	PageSize int
	// Intrinsics is the built-in symbol fallback table (§4.4 step 2).
	Intrinsics symbols.Intrinsics
	// Registry is where the finished module is registered. Defaults to
	// registry.Global.
	Registry *registry.Registry
	// DisableGDBJIT skips the GDB-JIT notification step (§4.5 step 7),
	// for tests that don't want a process-wide side effect.
	DisableGDBJIT bool
}

// LoadOptions is everything one Load call needs: the object bytes and the
// import descriptor (§6's "Input to the loader").
type LoadOptions struct {
	ObjectBytes []byte
	Imports     *Imports
	// DWARFData, if non-nil, is walked to build each function's
	// offset->operation-index table (§4.5 step 8). Object files built
	// without debug info simply get empty tables.
	DWARFData *dwarf.Data
}

// loadState threads the in-progress load's working data between driver.go
// and the platform-specific SEH files.
type loadState struct {
	obj             *ObjectFile
	img             *jitimage.ModuleImage
	resolver        *symbols.Resolver
	sectionLoadAddr []uintptr
	pdataIndex      int
	xdataIndex      int
	pdataSnapshot   []byte
	xdataSnapshot   []byte
	sehHandlerAddr  uintptr
	cfg             Config
}

// sehHandlerSymbolName is the synthetic name under which the SEH personality
// routine is resolved, mirroring the original's direct
// resolveJITImport("__C_specific_handler") call (§5 of Supplemented
// features).
const sehHandlerSymbolName = "__C_specific_handler"

// Load runs the full nine-step procedure of §4.5 and returns a registered,
// finalized module.
func Load(opts LoadOptions, cfg Config) (*jitmodule.LoadedModule, error) {
	start := time.Now()
	reg := cfg.Registry
	if reg == nil {
		reg = registry.Global
	}

	// Step 1: build the import symbol table.
	symbolTable, err := opts.Imports.BuildSymbolTable()
	if err != nil {
		return nil, fatalf(err, "loader: building import symbol table: %v", err)
	}
	resolver, err := symbols.NewResolver(symbolTable, cfg.Intrinsics)
	if err != nil {
		return nil, fatalf(err, "loader: constructing symbol resolver: %v", err)
	}

	// Step 2: open the object file.
	obj, err := OpenObjectFile(opts.ObjectBytes)
	if err != nil {
		return nil, fatalf(err, "loader: opening object file: %v", err)
	}

	state := &loadState{obj: obj, resolver: resolver, cfg: cfg, pdataIndex: -1, xdataIndex: -1}
	for i, s := range obj.Sections {
		switch s.Name {
		case ".pdata":
			state.pdataIndex = i
		case ".xdata":
			state.xdataIndex = i
		}
	}

	// Step 3: pre-snapshot Windows unwind sections, before relocations
	// mutate them in place.
	preSnapshotSEHSections(state)

	// Step 4: load the object into a freshly reserved image, applying
	// relocations against the resolver and already-placed sections.
	img, err := reserveAndPlace(state, cfg)
	if err != nil {
		return nil, fatalf(err, "loader: loading object into image: %v", err)
	}
	state.img = img

	if err := applyRelocations(state); err != nil {
		img.Teardown()
		return nil, fatalf(err, "loader: applying relocations: %v", err)
	}

	// Step 5: SEH fixups (no-op off COFF/SEH platforms).
	if err := applySEHFixup(state); err != nil {
		img.Teardown()
		return nil, fatalf(err, "loader: applying SEH fixup: %v", err)
	}

	// Step 6: finalize memory.
	if err := img.Finalize(); err != nil {
		img.Teardown()
		return nil, fatalf(err, "loader: finalizing image: %v", err)
	}

	// Step 7: notify the GDB-JIT interface.
	if !cfg.DisableGDBJIT {
		notifyGDBJIT(obj, img)
	}

	// Step 8: walk function symbols into JITFunction records. mod is
	// declared before its unregister closure so the closure can capture
	// a reference to the module it will eventually tear down.
	var mod *jitmodule.LoadedModule
	unregister := func() { reg.Unregister(mod) }
	mod = jitmodule.New(img, img.EndAddress(), unregister)
	if err := installFunctions(state, mod, opts.DWARFData); err != nil {
		img.Teardown()
		return nil, fatalf(err, "loader: installing functions: %v", err)
	}

	// Step 9: register in the global registry.
	if err := reg.Register(mod); err != nil {
		img.Teardown()
		return nil, fatalf(err, "loader: registering module: %v", err)
	}

	logger.Debug("loaded object",
		zap.Int("bytes", len(opts.ObjectBytes)),
		zap.Duration("duration", time.Since(start)),
	)
	return mod, nil
}

// Unload tears down mod's image and removes it from the registry.
func Unload(mod *jitmodule.LoadedModule) error {
	return mod.Unload()
}

// reserveAndPlace sizes a ModuleImage from the object's sections,
// categorizes each by name (.text/__text -> code, .data/__data/.bss/__bss
// -> read-write, everything else -> read-only), reserves the image, and copies
// each section's bytes into place, recording each section's resulting
// load address for later relocation and symbol resolution.
func reserveAndPlace(state *loadState, cfg Config) (*jitimage.ModuleImage, error) {
	kindOf := make([]jitimage.Kind, len(state.obj.Sections))
	var codeBytes, roBytes, rwBytes int
	for i, s := range state.obj.Sections {
		kindOf[i] = classifySection(s.Name)
		switch kindOf[i] {
		case jitimage.Code:
			codeBytes += align16(len(s.Data))
		case jitimage.ReadOnlyData:
			roBytes += align16(len(s.Data))
		case jitimage.ReadWriteData:
			rwBytes += align16(len(s.Data))
		}
	}

	img, err := jitimage.Reserve(jitimage.ReserveOptions{
		CodeBytes: codeBytes, CodeAlign: 16,
		ReadOnlyBytes: roBytes, ReadOnlyAlign: 16,
		ReadWriteBytes: rwBytes, ReadWriteAlign: 16,
		SEHTrampoline: needsSEHTrampoline(state),
		PageSize:      cfg.PageSize,
	})
	if err != nil {
		return nil, err
	}

	state.sectionLoadAddr = make([]uintptr, len(state.obj.Sections))
	for i, s := range state.obj.Sections {
		if len(s.Data) == 0 {
			state.sectionLoadAddr[i] = img.SectionBase(kindOf[i])
			continue
		}
		dst, err := img.Allocate(kindOf[i], len(s.Data), 16)
		if err != nil {
			return nil, fmt.Errorf("placing section %q: %w", s.Name, err)
		}
		copy(dst, s.Data)
		state.sectionLoadAddr[i] = uintptr(unsafe.Pointer(&dst[0]))
		// Repoint the in-memory section data at the copy inside the
		// image, so relocation patches land on the bytes that will
		// actually execute/be read, not the original object buffer.
		state.obj.Sections[i].Data = dst
	}
	return img, nil
}

func classifySection(name string) jitimage.Kind {
	switch name {
	case ".text", "__text":
		return jitimage.Code
	case ".data", "__data", ".bss", "__bss":
		return jitimage.ReadWriteData
	default:
		return jitimage.ReadOnlyData
	}
}

func align16(n int) int { return (n + 15) &^ 15 }

func needsSEHTrampoline(state *loadState) bool {
	return state.pdataIndex >= 0 && state.xdataIndex >= 0
}

// applyRelocations walks every section's relocation list and patches it in
// place against the already-placed sections and the symbol resolver.
// Unresolved symbols across the whole object are aggregated into one
// multierr-joined failure rather than surfacing only the first, so a
// caller debugging a bad build sees every missing import at once.
func applyRelocations(state *loadState) error {
	var errs error
	for secIdx, s := range state.obj.Sections {
		for _, r := range s.Relocations {
			if r.Symbol < 0 || r.Symbol >= len(state.obj.Symbols) {
				errs = multierr.Append(errs, fmt.Errorf("relocation in %q references out-of-range symbol %d", s.Name, r.Symbol))
				continue
			}
			symAddr, err := resolveSymbolAddress(state, r.Symbol)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			loadAddr := state.sectionLoadAddr[secIdx]
			if err := applyRelocationByFormat(state, s.Data, r, loadAddr, symAddr); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("relocation in %q at offset %d: %w", s.Name, r.Offset, err))
			}
		}
	}
	return errs
}

func resolveSymbolAddress(state *loadState, symIndex int) (uintptr, error) {
	sym := state.obj.Symbols[symIndex]
	if sym.Section >= 0 {
		return state.sectionLoadAddr[sym.Section] + uintptr(sym.Offset), nil
	}
	addr, ok := state.resolver.FindSymbol(sym.Name)
	if !ok {
		return 0, fmt.Errorf("undefined symbol %q", sym.Name)
	}
	return addr, nil
}

func applyRelocationByFormat(state *loadState, data []byte, r ObjectRelocation, loadAddr, symAddr uintptr) error {
	switch state.obj.Format {
	case FormatELF:
		return applyELFRelocation(data, r, loadAddr, symAddr)
	case FormatMachO:
		return applyMachORelocation(data, r, loadAddr, symAddr, isARM64MachO(state.obj))
	case FormatPE:
		return applyPERelocation(data, r, loadAddr, symAddr, state.img.BaseAddress())
	default:
		return fmt.Errorf("unknown object format")
	}
}

func isARM64MachO(obj *ObjectFile) bool {
	// The driver only needs to distinguish x86_64 from arm64 Mach-O to
	// pick a relocation table; both share the same ObjectFile shape, so
	// this is inferred from whether any relocation kind only exists in
	// the ARM64 table (page-relative kinds have no x86_64 equivalent).
	for _, s := range obj.Sections {
		for _, r := range s.Relocations {
			if r.Kind == machoARM64RelocPage21 || r.Kind == machoARM64RelocPageoff12 {
				return true
			}
		}
	}
	return false
}

// installFunctions walks the object's function symbols (§4.5 step 8),
// building a JITFunction for each and installing it into mod.
func installFunctions(state *loadState, mod *jitmodule.LoadedModule, dwarfData *dwarf.Data) error {
	for _, sym := range state.obj.Symbols {
		if !sym.IsFunc || sym.Section < 0 || sym.Size == 0 {
			continue
		}
		addr := state.sectionLoadAddr[sym.Section] + uintptr(sym.Offset)
		opIndex, err := dwarfline.OffsetToOpIndex(dwarfData, uint64(addr), sym.Size)
		if err != nil {
			return err
		}
		fn := jitmodule.NewJITFunction(sym.Name, addr, sym.Size, opIndex)
		mod.AddFunction(fn)
	}
	return nil
}
