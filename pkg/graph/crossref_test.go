package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrossReferenceRegisterIsOrderedSet(t *testing.T) {
	idx := NewCrossReferenceIndex()

	assert.True(t, idx.Register("Crystal structure", "A"))
	assert.True(t, idx.Register("crystal_structure", "B"))
	assert.False(t, idx.Register("CRYSTAL STRUCTURE", "A"), "re-register is a no-op")
	assert.False(t, idx.Register("", "C"))
	assert.False(t, idx.Register("X", ""))

	assert.Equal(t, []string{"A", "B"}, idx.Lookup("Crystal_Structure"))
	assert.Nil(t, idx.Lookup("unknown"))
	assert.Equal(t, 1, idx.Len())
}

func TestCrossReferenceLookupReturnsCopy(t *testing.T) {
	idx := NewCrossReferenceIndex()
	idx.Register("X", "A")

	ids := idx.Lookup("X")
	ids[0] = "mutated"
	assert.Equal(t, []string{"A"}, idx.Lookup("X"))

	entries := idx.Entries()
	entries["x"][0] = "mutated"
	assert.Equal(t, []string{"A"}, idx.Lookup("X"))
}

func TestCrossReferenceFromEntries(t *testing.T) {
	idx := NewCrossReferenceIndexFrom(map[string][]string{
		"Foo_Bar": {"A", "B", "A"},
		"baz":     {"C"},
	})
	assert.Equal(t, []string{"A", "B"}, idx.Lookup("foo bar"))
	assert.Equal(t, []string{"C"}, idx.Lookup("Baz"))
	assert.Equal(t, 2, idx.Len())
}
