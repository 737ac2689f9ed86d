// Package dsa provides the prefix index used to resolve abbreviated record
// ids. Uses go-radix for a compressed prefix tree (radix tree).
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix with typed values and a key count.
//
// Time Complexity: O(k) per operation where k is key length.
// Not safe for concurrent use.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie creates a new empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert adds or replaces a key.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Get looks up an exact key.
func (t *Trie[V]) Get(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	return v, ok
}

// Delete removes a key and reports whether it was present.
func (t *Trie[V]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	return deleted
}

// WithPrefix returns up to limit keys starting with prefix, in
// lexicographic order. A limit <= 0 means all.
func (t *Trie[V]) WithPrefix(prefix string, limit int) []string {
	var keys []string
	t.tree.WalkPrefix(prefix, func(k string, _ interface{}) bool {
		keys = append(keys, k)
		return limit > 0 && len(keys) >= limit
	})
	return keys
}

// Len returns the number of keys.
func (t *Trie[V]) Len() int {
	return t.tree.Len()
}

// Clear removes all keys.
func (t *Trie[V]) Clear() {
	t.tree = radix.New()
}
