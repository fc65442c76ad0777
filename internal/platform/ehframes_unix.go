//go:build !windows

package platform

import "sync"

// EHFrames tracks a registered-or-not unwind frame range. On non-Windows
// platforms there is no pure-Go entry point into libgcc/compiler-rt's
// __register_frame (reaching it needs cgo), so registration here is
// bookkeeping only: it satisfies the idempotent-register/deregister
// contract in §4.3 without actually hooking the OS unwinder. A cgo-enabled
// build targeting this platform would replace this file with a real call.
type EHFrames struct {
	mu         sync.Mutex
	base       uintptr
	size       int
	registered bool
}

// Register records the frame range. Safe to call once per instance; a
// second call without an intervening Deregister is a programmer error.
func (f *EHFrames) Register(base uintptr, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base, f.size, f.registered = base, len(data), true
	return nil
}

// Deregister is idempotent: calling it when nothing is registered does
// nothing.
func (f *EHFrames) Deregister() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = false
}

// Registered reports whether a frame range is currently registered.
func (f *EHFrames) Registered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}
