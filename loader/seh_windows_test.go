//go:build windows

package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreSnapshotSEHSectionsSkipsWithoutPdata(t *testing.T) {
	state := &loadState{pdataIndex: -1, xdataIndex: -1}
	preSnapshotSEHSections(state)
	assert.Nil(t, state.pdataSnapshot)
	assert.Nil(t, state.xdataSnapshot)
}

func TestPutUint64LEWritesLittleEndian(t *testing.T) {
	b := make([]byte, 8)
	putUint64LE(b, 0x0102030405060708)
	assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b)
}
