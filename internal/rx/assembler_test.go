package rx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemblerCompletesInOrder(t *testing.T) {
	a := newAssembler(1, 3, 0)
	assert.False(t, a.Complete())

	require.True(t, a.Store(0, []byte("ab"), false, 1024))
	require.True(t, a.Store(2, []byte("ef"), true, 1024))
	assert.False(t, a.Complete())
	require.True(t, a.Store(1, []byte("cd"), false, 1024))
	require.True(t, a.Complete())
	assert.True(t, a.ackRequired)

	assert.Equal(t, []byte("abcdef"), a.Concat())
}

func TestAssemblerDuplicateFragmentIsHarmless(t *testing.T) {
	a := newAssembler(1, 2, 0)
	require.True(t, a.Store(0, []byte("x"), false, 1024))
	require.True(t, a.Store(0, []byte("y"), false, 1024)) // duplicate, ignored
	assert.Equal(t, 1, a.totalBytes)
}

func TestAssemblerRejectsOverCap(t *testing.T) {
	a := newAssembler(1, 1, 0)
	ok := a.Store(0, make([]byte, 10), false, 4)
	assert.False(t, ok)
}

func TestAssemblerRejectsOutOfRangeIndex(t *testing.T) {
	a := newAssembler(1, 2, 0)
	assert.False(t, a.Store(5, []byte("z"), false, 1024))
}
