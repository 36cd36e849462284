package halfwit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniverse(t *testing.T) {
	universe, err := NewUniverse([]Candidate{"c", "a", "b"})
	require.Nil(t, err, "Failed to create universe")

	assert.Equal(t, 3, universe.Size())
	assert.Equal(t, []Candidate{"c", "a", "b"}, universe.Candidates(), "Candidate order was not preserved")
	assert.True(t, universe.Contains("a"))
	assert.False(t, universe.Contains("d"))
	assert.Equal(t, []Candidate{"c", "a", "b"}, universe.All().Members())
}

func TestNewUniverseRejectsInvalidInput(t *testing.T) {
	_, err := NewUniverse(nil)
	assert.NotNil(t, err, "Empty universe was accepted")

	_, err = NewUniverse([]Candidate{"a", "b", "a"})
	assert.NotNil(t, err, "Duplicate candidate was accepted")

	_, err = NewUniverse([]Candidate{"a", ""})
	assert.NotNil(t, err, "Empty candidate id was accepted")
}

func TestNewMaskCanonicalizes(t *testing.T) {
	universe, err := NewUniverse([]Candidate{"c", "a", "b"})
	require.Nil(t, err)

	// Out of order and with a duplicate; the mask must come out in universe
	// order with the duplicate collapsed.
	mask, err := NewMask(universe, []Candidate{"b", "a", "b"})
	require.Nil(t, err, "Failed to create mask")
	assert.Equal(t, []Candidate{"a", "b"}, mask.Members())
	assert.Equal(t, 2, mask.Len())
	assert.True(t, mask.Contains("a"))
	assert.False(t, mask.Contains("c"))
}

func TestNewMaskRejectsForeignCandidates(t *testing.T) {
	universe, err := NewUniverse([]Candidate{"a", "b"})
	require.Nil(t, err)

	_, err = NewMask(universe, []Candidate{"a", "x"})
	assert.NotNil(t, err, "Candidate outside the universe was accepted")
}

func TestMaskKeyEquality(t *testing.T) {
	universe, err := NewUniverse([]Candidate{"c", "a", "b"})
	require.Nil(t, err)

	first, err := NewMask(universe, []Candidate{"a", "c"})
	require.Nil(t, err)
	second, err := NewMask(universe, []Candidate{"c", "a", "a"})
	require.Nil(t, err)
	third, err := NewMask(universe, []Candidate{"c", "b"})
	require.Nil(t, err)

	assert.Equal(t, first.Key(), second.Key(), "Masks over the same members should share a key")
	assert.True(t, first.Equal(second))
	assert.NotEqual(t, first.Key(), third.Key(), "Masks over different members should have distinct keys")
	assert.False(t, first.Equal(third))
}

func TestMaskKeyUnambiguous(t *testing.T) {
	// Candidate ids containing separators must not collide in the key.
	universe, err := NewUniverse([]Candidate{"a,b", "a", "b"})
	require.Nil(t, err)

	joined, err := NewMask(universe, []Candidate{"a,b"})
	require.Nil(t, err)
	split, err := NewMask(universe, []Candidate{"a", "b"})
	require.Nil(t, err)

	assert.NotEqual(t, joined.Key(), split.Key(), "Distinct masks collided on their key")
}

func TestEmptyMask(t *testing.T) {
	universe, err := NewUniverse([]Candidate{"a"})
	require.Nil(t, err)

	mask, err := NewMask(universe, nil)
	require.Nil(t, err)
	assert.Equal(t, 0, mask.Len())
	assert.Equal(t, "", mask.Key())
	assert.Equal(t, "{}", mask.String())
}
