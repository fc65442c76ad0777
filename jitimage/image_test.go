package jitimage

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 4096

func TestReserveLaysOutSectionsContiguously(t *testing.T) {
	img, err := Reserve(ReserveOptions{
		CodeBytes: 100, CodeAlign: 16,
		ReadOnlyBytes: 50, ReadOnlyAlign: 8,
		ReadWriteBytes: 200, ReadWriteAlign: 8,
		PageSize: testPageSize,
	})
	require.NoError(t, err)
	defer img.Teardown()

	assert.Equal(t, img.BaseAddress(), img.SectionBase(Code))
	assert.Equal(t, img.BaseAddress()+testPageSize, img.SectionBase(ReadOnlyData))
	assert.Equal(t, img.BaseAddress()+2*testPageSize, img.SectionBase(ReadWriteData))
}

func TestSEHTrampolinePadsCodeSection(t *testing.T) {
	withoutPad, err := Reserve(ReserveOptions{CodeBytes: testPageSize - 16, PageSize: testPageSize})
	require.NoError(t, err)
	defer withoutPad.Teardown()
	assert.Equal(t, uintptr(1*testPageSize), withoutPad.SectionBase(ReadOnlyData)-withoutPad.BaseAddress())

	withPad, err := Reserve(ReserveOptions{CodeBytes: testPageSize - 16, SEHTrampoline: true, PageSize: testPageSize})
	require.NoError(t, err)
	defer withPad.Teardown()
	assert.Equal(t, uintptr(2*testPageSize), withPad.SectionBase(ReadOnlyData)-withPad.BaseAddress())
}

func TestAllocateAlignsAndAdvancesCursor(t *testing.T) {
	img, err := Reserve(ReserveOptions{CodeBytes: testPageSize, PageSize: testPageSize})
	require.NoError(t, err)
	defer img.Teardown()

	a, err := img.Allocate(Code, 3, 8)
	require.NoError(t, err)
	assert.Len(t, a, 3)

	b, err := img.Allocate(Code, 5, 8)
	require.NoError(t, err)
	assert.Len(t, b, 5)

	// b must start 8 bytes after a's start, since a's 3 bytes round up to
	// the next 8-byte boundary.
	gap := uintptr(unsafe.Pointer(&b[0])) - uintptr(unsafe.Pointer(&a[0]))
	assert.Equal(t, uintptr(8), gap)
}

func TestAllocateOverflowFails(t *testing.T) {
	img, err := Reserve(ReserveOptions{CodeBytes: testPageSize, PageSize: testPageSize})
	require.NoError(t, err)
	defer img.Teardown()

	_, err = img.Allocate(Code, testPageSize+1, 8)
	assert.Error(t, err)
}

func TestAllocateRejectsNonPowerOfTwoAlignment(t *testing.T) {
	img, err := Reserve(ReserveOptions{CodeBytes: testPageSize, PageSize: testPageSize})
	require.NoError(t, err)
	defer img.Teardown()

	_, err = img.Allocate(Code, 4, 3)
	assert.Error(t, err)
}

func TestAllocateAfterFinalizePanics(t *testing.T) {
	img, err := Reserve(ReserveOptions{CodeBytes: testPageSize, PageSize: testPageSize})
	require.NoError(t, err)
	defer img.Teardown()

	require.NoError(t, img.Finalize())
	assert.Panics(t, func() {
		img.Allocate(Code, 4, 8)
	})
}

func TestDoubleFinalizePanics(t *testing.T) {
	img, err := Reserve(ReserveOptions{CodeBytes: testPageSize, PageSize: testPageSize})
	require.NoError(t, err)
	defer img.Teardown()

	require.NoError(t, img.Finalize())
	assert.Panics(t, func() {
		img.Finalize()
	})
}

func TestTeardownIsIdempotent(t *testing.T) {
	img, err := Reserve(ReserveOptions{CodeBytes: testPageSize, PageSize: testPageSize})
	require.NoError(t, err)

	require.NoError(t, img.Teardown())
	require.NoError(t, img.Teardown())
}
