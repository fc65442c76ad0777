package loader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeGDBImage struct{ base uintptr }

func (f fakeGDBImage) BaseAddress() uintptr { return f.base }

func TestNotifyGDBJITLinksEntry(t *testing.T) {
	obj := &ObjectFile{Sections: []ObjectSection{{Name: ".text", Data: make([]byte, 16)}}}

	notifyGDBJIT(obj, fakeGDBImage{base: 0x1000})

	gdbMu.Lock()
	defer gdbMu.Unlock()
	assert.NotNil(t, gdbDescriptor.firstEntry)
	assert.Equal(t, jitRegisterFn, gdbDescriptor.actionFlag)
	assert.Equal(t, uint64(16), gdbDescriptor.firstEntry.symfileSize)
}

func TestNotifyGDBJITConcurrentCallsDontRace(t *testing.T) {
	obj := &ObjectFile{Sections: []ObjectSection{{Name: ".text", Data: make([]byte, 8)}}}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(base uintptr) {
			defer wg.Done()
			notifyGDBJIT(obj, fakeGDBImage{base: base})
		}(uintptr(i + 1))
	}
	wg.Wait()

	gdbMu.Lock()
	defer gdbMu.Unlock()
	assert.NotNil(t, gdbDescriptor.firstEntry)
}
