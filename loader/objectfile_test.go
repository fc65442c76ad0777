package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenObjectFileRejectsUnrecognizedMagic(t *testing.T) {
	_, err := OpenObjectFile([]byte{0x00, 0x01, 0x02, 0x03})
	assert.Error(t, err)
}

func TestOpenObjectFileRejectsEmptyInput(t *testing.T) {
	_, err := OpenObjectFile(nil)
	assert.Error(t, err)
}
