package orderedmap

import (
	"testing"
	"unsafe"

	"github.com/orizon-lang/cmagic/allocator"
)

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func TestMapPutGetOrder(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())

	pairs := []struct {
		key   int
		value string
	}{
		{3, "three"},
		{8, "eight"},
		{1, "one"},
		{5, "five"},
		{2, "two"},
	}

	for _, p := range pairs {
		if !m.Put(p.key, p.value) {
			t.Fatalf("Put(%d, %q) reported already present", p.key, p.value)
		}
	}

	if m.Size() != len(pairs) {
		t.Fatalf("Size() = %d, want %d", m.Size(), len(pairs))
	}

	if v, ok := m.Get(8); !ok || v != "eight" {
		t.Fatalf("Get(8) = (%q, %v), want (\"eight\", true)", v, ok)
	}

	if _, ok := m.Get(42); ok {
		t.Fatal("Get(42) should report not found")
	}

	var keys []int
	for it := m.First(); it.Valid(); it = it.Next() {
		keys = append(keys, it.Key())
	}

	want := []int{1, 2, 3, 5, 8}
	if len(keys) != len(want) {
		t.Fatalf("iteration length = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys[%d] = %d, want %d", i, keys[i], want[i])
		}
	}
}

func TestMapPutDoesNotOverwrite(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())

	m.Put(1, "first")
	if m.Put(1, "second") {
		t.Fatal("Put on an existing key must report false")
	}

	if v, _ := m.Get(1); v != "first" {
		t.Fatalf("Get(1) = %q, want \"first\" (Put must not overwrite)", v)
	}
}

func TestMapUpsertReplacesAndDestructs(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())

	var destructedKeys []int
	var destructedValues []string
	destructor := func(key, value unsafe.Pointer) {
		destructedKeys = append(destructedKeys, *(*int)(key))
		destructedValues = append(destructedValues, *(*string)(value))
	}

	if added := m.Upsert(1, "first", destructor); !added {
		t.Fatal("first Upsert must report added=true")
	}

	if len(destructedValues) != 0 {
		t.Fatal("destructor must not run when Upsert adds a brand new entry")
	}

	if added := m.Upsert(1, "second", destructor); added {
		t.Fatal("replacing Upsert must report added=false")
	}

	if v, _ := m.Get(1); v != "second" {
		t.Fatalf("Get(1) = %q, want \"second\"", v)
	}

	if len(destructedValues) != 1 || destructedValues[0] != "first" || destructedKeys[0] != 1 {
		t.Fatalf("destructor calls = keys=%v values=%v, want keys=[1] values=[\"first\"]", destructedKeys, destructedValues)
	}
}

func TestMapUpsertWithNilDestructor(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())

	m.Upsert(1, "first", nil)
	m.Upsert(1, "second", nil)

	if v, _ := m.Get(1); v != "second" {
		t.Fatalf("Get(1) = %q, want \"second\"", v)
	}
}

func TestMapEraseInvokesPerCallDestructor(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())
	m.Put(1, "one")

	var gotKey int
	var gotValue string
	destructor := func(key, value unsafe.Pointer) {
		gotKey = *(*int)(key)
		gotValue = *(*string)(value)
	}

	if !m.Erase(1, destructor) {
		t.Fatal("Erase(1) reported not found")
	}

	if gotKey != 1 || gotValue != "one" {
		t.Fatalf("destructor saw (%d, %q), want (1, \"one\")", gotKey, gotValue)
	}

	if m.Erase(1, destructor) {
		t.Fatal("second Erase(1) must report not found")
	}
}

func TestMapEraseWithNilDestructor(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())
	m.Put(1, "one")

	if !m.Erase(1, nil) {
		t.Fatal("Erase(1) with a nil destructor must still remove the entry")
	}

	if _, ok := m.Get(1); ok {
		t.Fatal("entry must be gone after Erase")
	}
}

func TestMapCloseReleasesEverything(t *testing.T) {
	h := allocator.NewHeapAllocator()
	m := New[int, string](compareInt, h.Vtable())

	m.Put(1, "one")
	m.Put(2, "two")

	var destructed int
	m.Close(func(key, value unsafe.Pointer) { destructed++ })

	if m.Size() != 0 {
		t.Fatalf("Size() after Close = %d, want 0", m.Size())
	}

	if destructed != 2 {
		t.Fatalf("destructor invoked %d times, want 2", destructed)
	}

	if stats := h.Stats(); stats.Allocations != 0 {
		t.Fatalf("allocator still reports %d live allocations after Close", stats.Allocations)
	}
}

func TestMapIteratorSetValueMutatesInPlace(t *testing.T) {
	m := New[int, string](compareInt, allocator.Heap())
	m.Put(1, "one")

	it := m.Find(1)
	if !it.Valid() {
		t.Fatal("Find(1) failed")
	}

	it.SetValue("uno")

	if v, _ := m.Get(1); v != "uno" {
		t.Fatalf("Get(1) after SetValue = %q, want \"uno\"", v)
	}
}
