package symbols

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolverRejectsZeroAddressBinding(t *testing.T) {
	_, err := NewResolver(map[string]uintptr{"functionImport0": 0}, nil)
	assert.Error(t, err)
}

func TestFindSymbolPrefersExplicitBindings(t *testing.T) {
	r, err := NewResolver(
		map[string]uintptr{"functionImport0": 0x1000},
		MapIntrinsics{"functionImport0": 0x2000},
	)
	require.NoError(t, err)

	addr, ok := r.FindSymbol("functionImport0")
	require.True(t, ok)
	assert.Equal(t, uintptr(0x1000), addr)
}

func TestFindSymbolFallsBackToIntrinsics(t *testing.T) {
	r, err := NewResolver(map[string]uintptr{}, MapIntrinsics{"memcpy": 0x4000})
	require.NoError(t, err)

	addr, ok := r.FindSymbol("memcpy")
	require.True(t, ok)
	assert.Equal(t, uintptr(0x4000), addr)
}

func TestFindSymbolReportsNotFound(t *testing.T) {
	r, err := NewResolver(map[string]uintptr{}, nil)
	require.NoError(t, err)

	_, ok := r.FindSymbol("nonexistent")
	assert.False(t, ok)
}

func TestFindSymbolIsConcurrencySafe(t *testing.T) {
	r, err := NewResolver(map[string]uintptr{"a": 1}, MapIntrinsics{"b": 2})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.FindSymbol("a")
			r.FindSymbol("b")
			r.FindSymbol("c")
		}()
	}
	wg.Wait()
}
