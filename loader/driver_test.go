package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavmgo/wavm/registry"
)

// newTestRegistryConfig gives each test its own registry rather than
// mutating registry.Global, and skips the GDB-JIT side effect.
func newTestRegistryConfig(t *testing.T) Config {
	t.Helper()
	return Config{Registry: registry.New(), DisableGDBJIT: true}
}

// buildMinimalELF64Object hand-assembles a relocatable ELF64 object with a
// single .text section containing one defined function symbol, sized
// exactly large enough to exercise Load()'s happy path without a real
// backend code generator.
func buildMinimalELF64Object(t *testing.T, funcName string, codeSize int) []byte {
	t.Helper()

	const (
		ehsize = 64
		shsize = 64
		symsz  = 24
	)
	code := make([]byte, codeSize)
	for i := range code {
		code[i] = 0x90 // x86 NOP; content is never executed by the test.
	}

	shstrtab := []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	strtab := append([]byte{0x00}, append([]byte(funcName), 0x00)...)

	// Symbol table: null symbol + one STT_FUNC symbol defined in .text
	// (section index 1) at offset 0.
	symtab := make([]byte, symsz*2)
	binary.LittleEndian.PutUint32(symtab[symsz+0:], 1) // st_name -> strtab+1
	symtab[symsz+4] = (1 << 4) | 2                     // STB_GLOBAL<<4 | STT_FUNC
	binary.LittleEndian.PutUint16(symtab[symsz+6:], 1) // st_shndx = .text
	binary.LittleEndian.PutUint64(symtab[symsz+8:], 0) // st_value
	binary.LittleEndian.PutUint64(symtab[symsz+16:], uint64(codeSize))

	type section struct {
		name       uint32
		typ        uint32
		flags      uint64
		data       []byte
		link, info uint32
		entsize    uint64
	}
	sections := []section{
		{}, // SHT_NULL
		{name: 1, typ: 1 /* PROGBITS */, flags: 0x2 | 0x4 /* ALLOC|EXECINSTR */, data: code},
		{name: 7 /* .symtab */, typ: 2 /* SYMTAB */, data: symtab, link: 3, info: 1, entsize: symsz},
		{name: 15 /* .strtab */, typ: 3 /* STRTAB */, data: strtab},
		{name: 23 /* .shstrtab */, typ: 3 /* STRTAB */, data: shstrtab},
	}

	// Lay out section data after the ELF header; section headers follow
	// all section data.
	offset := uint64(ehsize)
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		offsets[i] = offset
		offset += uint64(len(s.data))
	}
	shoff := offset

	buf := make([]byte, shoff+uint64(len(sections))*shsize)
	copy(buf[0:], []byte{0x7f, 'E', 'L', 'F', 2 /* 64-bit */, 1 /* LE */, 1})
	binary.LittleEndian.PutUint16(buf[16:], 1)                      // e_type = ET_REL
	binary.LittleEndian.PutUint16(buf[18:], 62)                     // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:], 1)                      // e_version
	binary.LittleEndian.PutUint16(buf[52:], ehsize)                 // e_ehsize
	binary.LittleEndian.PutUint16(buf[58:], shsize)                 // e_shentsize
	binary.LittleEndian.PutUint16(buf[60:], uint16(len(sections))) // e_shnum
	binary.LittleEndian.PutUint16(buf[62:], 4)                      // e_shstrndx
	binary.LittleEndian.PutUint64(buf[40:], shoff)                  // e_shoff

	for i, s := range sections {
		copy(buf[offsets[i]:], s.data)
	}

	for i, s := range sections {
		base := shoff + uint64(i)*shsize
		binary.LittleEndian.PutUint32(buf[base+0:], s.name)
		binary.LittleEndian.PutUint32(buf[base+4:], s.typ)
		binary.LittleEndian.PutUint64(buf[base+8:], s.flags)
		binary.LittleEndian.PutUint64(buf[base+24:], offsets[i])
		binary.LittleEndian.PutUint64(buf[base+32:], uint64(len(s.data)))
		binary.LittleEndian.PutUint32(buf[base+40:], s.link)
		binary.LittleEndian.PutUint32(buf[base+44:], s.info)
		binary.LittleEndian.PutUint64(buf[base+56:], s.entsize)
	}
	return buf
}

func TestLoadMinimalObjectRegistersFunction(t *testing.T) {
	obj := buildMinimalELF64Object(t, "functionDef0", 32)

	testReg := newTestRegistryConfig(t)
	mod, err := Load(LoadOptions{
		ObjectBytes: obj,
		Imports:     &Imports{},
	}, testReg)
	require.NoError(t, err)
	defer mod.Unload()

	fn, ok := mod.FunctionByName("functionDef0")
	require.True(t, ok)
	assert.Equal(t, uint64(32), fn.ByteLength())
}

func TestLoadRejectsGarbageObject(t *testing.T) {
	_, err := Load(LoadOptions{ObjectBytes: []byte{0, 1, 2, 3}, Imports: &Imports{}}, newTestRegistryConfig(t))
	assert.Error(t, err)
}
