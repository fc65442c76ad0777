//go:build !windows

package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplySEHFixupIsNoopOffWindows(t *testing.T) {
	state := &loadState{pdataIndex: -1, xdataIndex: -1}
	preSnapshotSEHSections(state)
	assert.NoError(t, applySEHFixup(state))
}
