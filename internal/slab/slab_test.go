package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	s := New[string](4)

	tok, err := s.Insert("a")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	val, ok := s.Get(tok)
	require.True(t, ok)
	assert.Equal(t, "a", val)

	removed, err := s.Remove(tok)
	require.NoError(t, err)
	assert.Equal(t, "a", removed)
	assert.True(t, s.Empty())
}

func TestTokenRecycling(t *testing.T) {
	s := New[int](2)

	tokA, err := s.Insert(1)
	require.NoError(t, err)
	_, err = s.Insert(2)
	require.NoError(t, err)

	_, err = s.Remove(tokA)
	require.NoError(t, err)

	tokC, err := s.Insert(3)
	require.NoError(t, err)
	assert.Equal(t, tokA, tokC, "freed token should be recycled before growing")
}

func TestFullCapacityReportsErrFull(t *testing.T) {
	s := New[int](1)
	_, err := s.Insert(1)
	require.NoError(t, err)

	_, err = s.Insert(2)
	assert.ErrorIs(t, err, ErrFull)
}

func TestRemoveUnknownTokenReportsErrNotFound(t *testing.T) {
	s := New[int](1)
	_, err := s.Remove(99)
	assert.ErrorIs(t, err, ErrNotFound)
}
