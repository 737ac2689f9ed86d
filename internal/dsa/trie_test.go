package dsa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriePrefixLookup(t *testing.T) {
	tr := NewTrie[int]()
	tr.Insert("3f2a9c", 1)
	tr.Insert("3f2b00", 2)
	tr.Insert("a01234", 3)

	assert.Equal(t, []string{"3f2a9c", "3f2b00"}, tr.WithPrefix("3f2", 0))
	assert.Equal(t, []string{"3f2a9c"}, tr.WithPrefix("3f2", 1))
	assert.Equal(t, []string{"a01234"}, tr.WithPrefix("a", 0))
	assert.Empty(t, tr.WithPrefix("zz", 0))
	assert.Len(t, tr.WithPrefix("", 0), 3)

	v, ok := tr.Get("3f2b00")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = tr.Get("3f2")
	assert.False(t, ok)
}

func TestTrieInsertDeleteClear(t *testing.T) {
	tr := NewTrie[struct{}]()
	tr.Insert("a", struct{}{})
	tr.Insert("a", struct{}{})
	tr.Insert("b", struct{}{})
	assert.Equal(t, 2, tr.Len())

	assert.True(t, tr.Delete("a"))
	assert.False(t, tr.Delete("a"))
	assert.Equal(t, 1, tr.Len())

	tr.Clear()
	assert.Zero(t, tr.Len())
	assert.Empty(t, tr.WithPrefix("", 0))
}
