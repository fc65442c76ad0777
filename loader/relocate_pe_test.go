package loader

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPERelocationAddr64(t *testing.T) {
	data := make([]byte, 8)
	err := applyPERelocation(data, ObjectRelocation{Kind: peAMD64Addr64}, 0x1000, 0x5000, 0x0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5000), binary.LittleEndian.Uint64(data))
}

func TestApplyPERelocationAddr32NBIsImageRelative(t *testing.T) {
	data := make([]byte, 4)
	err := applyPERelocation(data, ObjectRelocation{Kind: peAMD64Addr32NB}, 0x1000, 0x1000+0x40, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x40), binary.LittleEndian.Uint32(data))
}

func TestApplyPERelocationRel32(t *testing.T) {
	data := make([]byte, 4)
	err := applyPERelocation(data, ObjectRelocation{Kind: peAMD64Rel32}, 0x2000, 0x2010, 0)
	require.NoError(t, err)
	// pc = loadAddr(0x2000)+offset(0) = 0x2000; value = symAddr - pc - 4.
	assert.Equal(t, int32(0x10-4), int32(binary.LittleEndian.Uint32(data)))
}

func TestApplyPERelocationUnimplementedKindFails(t *testing.T) {
	data := make([]byte, 4)
	err := applyPERelocation(data, ObjectRelocation{Kind: 0xff}, 0x1000, 0x2000, 0)
	assert.Error(t, err)
}
