// Package orderedmap implements the ordered-map façade (C6): a map of
// fixed-size keys to fixed-size values held in key order, each entry
// copied into memory owned by a pluggable allocator.
package orderedmap

import (
	"unsafe"

	"github.com/orizon-lang/cmagic/allocator"
	"github.com/orizon-lang/cmagic/avltree"
	"github.com/orizon-lang/cmagic/internal/assert"
)

// Destructor is invoked with the still-valid key and value addresses
// immediately before their storage is released, mirroring
// cmagic_map_erase's destructor(key_to_delete, value_to_delete)
// signature — the callback sees raw addresses, not copies, so it can
// identify the exact entry being destroyed. Passed per call (to Erase,
// Close, or Upsert replacing an existing value), not fixed at
// construction time; any of those calls may pass nil to skip it.
type Destructor func(key, value unsafe.Pointer)

// Map holds key/value pairs keyed by K in ascending key order. Both the
// key and the value are copied into their own allocator-owned blocks.
type Map[K any, V any] struct {
	magic   assert.Magic
	tree    *avltree.Tree
	alloc   *allocator.Allocator
	compare func(a, b K) int
	keySize uintptr
	valSize uintptr
}

// New creates an empty map ordered by compare, copying keys and values
// via alloc.
func New[K any, V any](compare func(a, b K) int, alloc *allocator.Allocator) *Map[K, V] {
	var zeroK K
	var zeroV V

	m := &Map[K, V]{
		magic:   assert.MagicMap,
		alloc:   alloc,
		compare: compare,
		keySize: unsafe.Sizeof(zeroK),
		valSize: unsafe.Sizeof(zeroV),
	}
	m.tree = avltree.New(m.compareRaw, alloc)

	return m
}

func (m *Map[K, V]) compareRaw(a, b unsafe.Pointer) int {
	return m.compare(*(*K)(a), *(*K)(b))
}

func (m *Map[K, V]) checkMagic() {
	assert.That(m.magic == assert.MagicMap, "orderedmap: use of a zero-value or corrupted Map")
}

// Size returns the number of entries currently in the map.
func (m *Map[K, V]) Size() int {
	m.checkMagic()
	return m.tree.Size()
}

// Put inserts key/value if key is absent, reporting whether it was newly
// added. If key is already present, Put leaves the existing entry
// untouched — use Upsert to replace it.
func (m *Map[K, V]) Put(key K, value V) bool {
	m.checkMagic()

	if m.tree.Find(unsafe.Pointer(&key)).Valid() {
		return false
	}

	keyRaw := m.alloc.Allocate(m.keySize)
	if keyRaw == nil {
		return false
	}

	valRaw := m.alloc.Allocate(m.valSize)
	if valRaw == nil {
		m.alloc.Release(keyRaw)
		return false
	}

	*(*K)(keyRaw) = key
	*(*V)(valRaw) = value

	it, exists := m.tree.Insert(keyRaw, valRaw)
	if exists || !it.Valid() {
		// Single-threaded by contract; only reachable on tree node
		// allocation failure or an inconsistent comparator.
		m.alloc.Release(valRaw)
		m.alloc.Release(keyRaw)

		return false
	}

	return true
}

// Upsert inserts key/value, replacing any existing value for an equal
// key. If destructor is non-nil and an existing value is replaced, it is
// invoked with the old entry's key and value addresses before they are
// overwritten. Reports true if a new entry was added, false if an
// existing one was replaced.
func (m *Map[K, V]) Upsert(key K, value V, destructor Destructor) bool {
	m.checkMagic()

	if it := m.tree.Find(unsafe.Pointer(&key)); it.Valid() {
		if destructor != nil {
			destructor(it.Key(), it.Value())
		}

		*(*V)(it.Value()) = value

		return false
	}

	return m.Put(key, value)
}

// Get returns the value associated with key and reports whether key was
// present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	m.checkMagic()

	it := m.tree.Find(unsafe.Pointer(&key))
	if !it.Valid() {
		return value, false
	}

	return *(*V)(it.Value()), true
}

// Erase removes key's entry. If destructor is non-nil, it is invoked
// with the entry's key and value addresses before their storage is
// released, mirroring cmagic_map_erase(map, key, destructor). Reports
// whether key had been present.
func (m *Map[K, V]) Erase(key K, destructor Destructor) bool {
	m.checkMagic()

	removedKey, removedValue, ok := m.tree.Erase(unsafe.Pointer(&key))
	if !ok {
		return false
	}

	if destructor != nil {
		destructor(removedKey, removedValue)
	}

	m.alloc.Release(removedValue)
	m.alloc.Release(removedKey)

	return true
}

// Find returns an Iterator addressing key's entry, or an invalid Iterator
// if key is not present.
func (m *Map[K, V]) Find(key K) Iterator[K, V] {
	m.checkMagic()
	return Iterator[K, V]{it: m.tree.Find(unsafe.Pointer(&key))}
}

// First returns an Iterator addressing the entry with the smallest key,
// or an invalid Iterator if the map is empty.
func (m *Map[K, V]) First() Iterator[K, V] {
	m.checkMagic()
	return Iterator[K, V]{it: m.tree.First()}
}

// Last returns an Iterator addressing the entry with the largest key, or
// an invalid Iterator if the map is empty.
func (m *Map[K, V]) Last() Iterator[K, V] {
	m.checkMagic()
	return Iterator[K, V]{it: m.tree.Last()}
}

// Close releases every entry's storage and leaves the map empty. If
// destructor is non-nil, it is invoked with each entry's key and value
// addresses before release.
func (m *Map[K, V]) Close(destructor Destructor) {
	m.checkMagic()
	m.tree.Clear(func(key, value unsafe.Pointer) {
		if destructor != nil {
			destructor(key, value)
		}

		m.alloc.Release(value)
		m.alloc.Release(key)
	})
}

// Iterator addresses one entry in a Map.
type Iterator[K any, V any] struct {
	it avltree.Iterator
}

// Valid reports whether the iterator addresses a real entry.
func (it Iterator[K, V]) Valid() bool {
	return it.it.Valid()
}

// Key returns the entry's key.
func (it Iterator[K, V]) Key() K {
	return *(*K)(it.it.Key())
}

// Value returns the entry's value.
func (it Iterator[K, V]) Value() V {
	return *(*V)(it.it.Value())
}

// SetValue overwrites the entry's value in place, without a round trip
// through Erase/Put. The value pointer is mutable by the caller exactly
// as spec.md §4.4.1 describes for the underlying tree.
func (it Iterator[K, V]) SetValue(value V) {
	*(*V)(it.it.Value()) = value
}

// Next returns the next entry in ascending key order, or an invalid
// Iterator if it addressed the entry with the largest key.
func (it Iterator[K, V]) Next() Iterator[K, V] {
	return Iterator[K, V]{it: it.it.Next()}
}

// Prev returns the previous entry in ascending key order, or an invalid
// Iterator if it addressed the entry with the smallest key.
func (it Iterator[K, V]) Prev() Iterator[K, V] {
	return Iterator[K, V]{it: it.it.Prev()}
}
