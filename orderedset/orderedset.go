// Package orderedset implements the ordered-set façade (C5): a set of
// fixed-size keys held in key order, each key copied into memory owned by
// a pluggable allocator rather than left on the Go heap.
package orderedset

import (
	"unsafe"

	"github.com/orizon-lang/cmagic/allocator"
	"github.com/orizon-lang/cmagic/avltree"
	"github.com/orizon-lang/cmagic/internal/assert"
)

// Set holds unique keys of type K in ascending order. Every key is copied
// into its own allocator-owned block on insert; Set never stores a
// pointer into caller-managed memory.
type Set[K any] struct {
	magic   assert.Magic
	tree    *avltree.Tree
	alloc   *allocator.Allocator
	compare func(a, b K) int
	keySize uintptr
}

// New creates an empty set ordered by compare, copying keys via alloc.
func New[K any](compare func(a, b K) int, alloc *allocator.Allocator) *Set[K] {
	var zero K

	s := &Set[K]{
		magic:   assert.MagicSet,
		alloc:   alloc,
		compare: compare,
		keySize: unsafe.Sizeof(zero),
	}
	s.tree = avltree.New(s.compareRaw, alloc)

	return s
}

func (s *Set[K]) compareRaw(a, b unsafe.Pointer) int {
	return s.compare(*(*K)(a), *(*K)(b))
}

func (s *Set[K]) checkMagic() {
	assert.That(s.magic == assert.MagicSet, "orderedset: use of a zero-value or corrupted Set")
}

// Size returns the number of keys currently in the set.
func (s *Set[K]) Size() int {
	s.checkMagic()
	return s.tree.Size()
}

// Allocate reserves storage for a key comparing equal to key and links
// it into the set, WITHOUT copying key's bytes into that storage — the
// returned Iterator's key is left uninitialized and must be filled in
// with Iterator.SetKey before the set is used again, mirroring
// cmagic_set_allocate's split from cmagic_set_insert. If an equal key is
// already present, Allocate reports existed=true and the returned
// Iterator addresses the existing, already-initialized entry instead of
// reserving a duplicate. A zero Iterator (Valid() == false) means the
// allocator is exhausted.
func (s *Set[K]) Allocate(key K) (it Iterator[K], existed bool) {
	s.checkMagic()

	if found := s.tree.Find(unsafe.Pointer(&key)); found.Valid() {
		return Iterator[K]{it: found}, true
	}

	raw := s.alloc.Allocate(s.keySize)
	if raw == nil {
		return Iterator[K]{}, false
	}

	reserved, exists := s.tree.Reserve(unsafe.Pointer(&key), raw, nil)
	if exists {
		// Single-threaded by contract; only reachable if compare is
		// inconsistent with an equality check made moments earlier.
		s.alloc.Release(raw)
		return Iterator[K]{it: reserved}, true
	}

	if !reserved.Valid() {
		s.alloc.Release(raw)
		return Iterator[K]{}, false
	}

	return Iterator[K]{it: reserved}, false
}

// Insert adds key to the set, reporting whether it was newly added.
func (s *Set[K]) Insert(key K) bool {
	it, existed := s.Allocate(key)
	if existed || !it.Valid() {
		return false
	}

	it.SetKey(key)

	return true
}

// Erase removes key from the set, reporting whether it had been present.
func (s *Set[K]) Erase(key K) bool {
	s.checkMagic()

	removedKey, _, ok := s.tree.Erase(unsafe.Pointer(&key))
	if !ok {
		return false
	}

	s.alloc.Release(removedKey)

	return true
}

// Find returns an Iterator addressing key, or an invalid Iterator if it
// is not present.
func (s *Set[K]) Find(key K) Iterator[K] {
	s.checkMagic()
	return Iterator[K]{it: s.tree.Find(unsafe.Pointer(&key))}
}

// First returns an Iterator addressing the smallest key, or an invalid
// Iterator if the set is empty.
func (s *Set[K]) First() Iterator[K] {
	s.checkMagic()
	return Iterator[K]{it: s.tree.First()}
}

// Last returns an Iterator addressing the largest key, or an invalid
// Iterator if the set is empty.
func (s *Set[K]) Last() Iterator[K] {
	s.checkMagic()
	return Iterator[K]{it: s.tree.Last()}
}

// Close releases every key's storage and leaves the set empty. The set
// may be reused afterward; its magic tag is untouched.
func (s *Set[K]) Close() {
	s.checkMagic()
	s.tree.Clear(func(key, value unsafe.Pointer) {
		s.alloc.Release(key)
	})
}

// Iterator addresses one key in a Set.
type Iterator[K any] struct {
	it avltree.Iterator
}

// Valid reports whether the iterator addresses a real key.
func (it Iterator[K]) Valid() bool {
	return it.it.Valid()
}

// Key returns the key this iterator addresses.
func (it Iterator[K]) Key() K {
	return *(*K)(it.it.Key())
}

// SetKey writes key into the storage this iterator addresses. Only
// meaningful right after Allocate reserves a new, uninitialized entry
// (existed == false); key must compare equal to the key passed to
// Allocate, since the tree has already been positioned using it.
func (it Iterator[K]) SetKey(key K) {
	*(*K)(it.it.Key()) = key
}

// Next returns the next key in ascending order, or an invalid Iterator if
// it addressed the largest key.
func (it Iterator[K]) Next() Iterator[K] {
	return Iterator[K]{it: it.it.Next()}
}

// Prev returns the previous key in ascending order, or an invalid
// Iterator if it addressed the smallest key.
func (it Iterator[K]) Prev() Iterator[K] {
	return Iterator[K]{it: it.it.Prev()}
}
