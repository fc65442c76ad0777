package jitmodule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImage struct {
	base     uintptr
	torndown bool
}

func (f *fakeImage) BaseAddress() uintptr { return f.base }
func (f *fakeImage) Teardown() error      { f.torndown = true; return nil }

func TestAddFunctionPanicsOnDuplicateName(t *testing.T) {
	m := New(&fakeImage{}, 0x3000, nil)
	m.AddFunction(NewJITFunction("functionDef0", 0x1000, 100, nil))
	assert.Panics(t, func() {
		m.AddFunction(NewJITFunction("functionDef0", 0x2000, 50, nil))
	})
}

func TestFunctionForAddressCoverage(t *testing.T) {
	m := New(&fakeImage{}, 0x3000, nil)
	m.AddFunction(NewJITFunction("A", 1000, 100, nil))
	m.AddFunction(NewJITFunction("B", 2000, 50, nil))

	cases := []struct {
		addr uintptr
		name string
		ok   bool
	}{
		{999, "", false},
		{1000, "A", true},
		{1099, "A", true},
		{1100, "", false},
		{2025, "B", true},
		{2050, "", false},
	}
	for _, c := range cases {
		fn, ok := m.FunctionForAddress(c.addr)
		assert.Equal(t, c.ok, ok, "addr=%d", c.addr)
		if c.ok {
			assert.Equal(t, c.name, fn.Name(), "addr=%d", c.addr)
		}
	}
}

func TestUnloadTearsDownImageAndUnregisters(t *testing.T) {
	img := &fakeImage{}
	unregistered := false
	m := New(img, 0x3000, func() { unregistered = true })

	require.NoError(t, m.Unload())
	assert.True(t, img.torndown)
	assert.True(t, unregistered)
}

func TestFunctionsReturnsInDefinitionIndexOrder(t *testing.T) {
	m := New(&fakeImage{}, 0x3000, nil)
	m.AddFunction(NewJITFunction("functionDef1", 2000, 10, nil))
	m.AddFunction(NewJITFunction("functionDef0", 1000, 10, nil))
	m.AddFunction(NewJITFunction("functionDef2", 3000, 10, nil))

	fns := m.Functions()
	require.Len(t, fns, 3)
	assert.Equal(t, "functionDef0", fns[0].Name())
	assert.Equal(t, "functionDef1", fns[1].Name())
	assert.Equal(t, "functionDef2", fns[2].Name())
	assert.Equal(t, 3, m.NumFunctionDefs())
}

func TestFunctionDefinitionLooksUpByIndex(t *testing.T) {
	m := New(&fakeImage{}, 0x3000, nil)
	m.AddFunction(NewJITFunction("functionDef0", 1000, 10, nil))
	m.AddFunction(NewJITFunction("functionDef1", 2000, 10, nil))

	fn, ok := m.FunctionDefinition(1)
	require.True(t, ok)
	assert.Equal(t, "functionDef1", fn.Name())

	_, ok = m.FunctionDefinition(2)
	assert.False(t, ok)
}

func TestFunctionsOmitsNonFunctionDefNames(t *testing.T) {
	m := New(&fakeImage{}, 0x3000, nil)
	m.AddFunction(NewJITFunction("functionDef0", 1000, 10, nil))
	m.AddFunction(NewJITFunction("__C_specific_handler_thunk", 5000, 10, nil))

	fns := m.Functions()
	require.Len(t, fns, 1)
	assert.Equal(t, "functionDef0", fns[0].Name())
}
