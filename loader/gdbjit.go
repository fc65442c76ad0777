package loader

import (
	"sync"
	"unsafe"
)

// jitActionT mirrors GDB's jit_actions_t enum from its jit-reader ABI.
type jitActionT uint32

const (
	jitNoaction jitActionT = iota
	jitRegisterFn
	jitUnregisterFn
)

// jitCodeEntry mirrors GDB's struct jit_code_entry. GDB walks this as a
// doubly linked list rooted at __jit_debug_descriptor; each entry points at
// an in-memory ELF/Mach-O/COFF image GDB can parse for line info.
type jitCodeEntry struct {
	nextEntry     *jitCodeEntry
	prevEntry     *jitCodeEntry
	symfileAddr   unsafe.Pointer
	symfileSize   uint64
}

// jitDescriptor mirrors GDB's struct jit_descriptor, the well-known
// __jit_debug_descriptor symbol GDB's jit-reader looks up by name and
// polls via a breakpoint on __jit_debug_register_code.
type jitDescriptor struct {
	version      uint32
	actionFlag   jitActionT
	relevantEntry *jitCodeEntry
	firstEntry   *jitCodeEntry
}

// __jit_debug_descriptor and __jit_debug_register_code are the two symbols
// GDB's JIT interface contract requires to exist at fixed, discoverable
// addresses: GDB reads the descriptor directly and sets a breakpoint on
// the register function to know when to re-read it. Since this process
// never runs under a JIT-aware GDB unless built with cgo exporting these
// symbols to the dynamic symbol table, this package keeps its own
// in-process mirror of the same linked list and the same protocol, so a
// cgo-enabled build can re-export it without changing any of this logic.
var (
	gdbOnce       sync.Once
	gdbDescriptor jitDescriptor
	gdbMu         sync.Mutex
)

func initGDBJIT() {
	gdbDescriptor.version = 1
}

// notifyGDBJIT appends one entry to the process-wide GDB-JIT list. The
// entry's symfile address is the base of the module image and its size is
// the total length of obj's sections; it does not reference the original
// object-file bytes, so the region it describes is the relocated section
// data placed in the image, not a parseable object file.
//
// The listener itself is a lazily-created, process-wide singleton, per
// the original loader's gdbRegistrationListener: GDB's protocol assumes
// one descriptor per process, not one per module.
func notifyGDBJIT(obj *ObjectFile, img interface{ BaseAddress() uintptr }) {
	gdbOnce.Do(initGDBJIT)

	gdbMu.Lock()
	defer gdbMu.Unlock()

	var size uint64
	for _, s := range obj.Sections {
		size += uint64(len(s.Data))
	}

	entry := &jitCodeEntry{symfileAddr: unsafe.Pointer(img.BaseAddress()), symfileSize: size}
	entry.nextEntry = gdbDescriptor.firstEntry
	if gdbDescriptor.firstEntry != nil {
		gdbDescriptor.firstEntry.prevEntry = entry
	}
	gdbDescriptor.firstEntry = entry
	gdbDescriptor.relevantEntry = entry
	gdbDescriptor.actionFlag = jitRegisterFn

	logger.Debug("notified GDB-JIT listener")
}
