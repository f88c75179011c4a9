package orderedset

import (
	"testing"

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

func TestSetAllocateReservesWithoutCopying(t *testing.T) {
	s := New[int](compareInt, allocator.Heap())

	it, existed := s.Allocate(7)
	if existed {
		t.Fatal("Allocate on an empty set must report existed=false")
	}
	if !it.Valid() {
		t.Fatal("Allocate must return a valid iterator")
	}

	// The set must already be positioned for key 7 (Size reflects the
	// reservation) even though SetKey hasn't run yet.
	if s.Size() != 1 {
		t.Fatalf("Size() after Allocate = %d, want 1", s.Size())
	}

	it.SetKey(7)

	if s.Find(7).Key() != 7 {
		t.Fatal("Find(7) failed after SetKey completed the reservation")
	}

	// Allocating an already-present key must not reserve a duplicate.
	again, existed := s.Allocate(7)
	if !existed {
		t.Fatal("Allocate on an existing key must report existed=true")
	}
	if again.Key() != 7 {
		t.Fatal("Allocate on an existing key must address the existing entry")
	}
	if s.Size() != 1 {
		t.Fatalf("Size() after re-Allocate = %d, want 1", s.Size())
	}
}

func TestSetInsertFindOrder(t *testing.T) {
	s := New[int](compareInt, allocator.Heap())

	for _, v := range []int{5, 1, 3, 2, 4} {
		if !s.Insert(v) {
			t.Fatalf("Insert(%d) reported already present", v)
		}
	}

	if s.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", s.Size())
	}

	if s.Insert(3) {
		t.Fatal("re-inserting 3 must report false")
	}

	var got []int
	for it := s.First(); it.Valid(); it = it.Next() {
		got = append(got, it.Key())
	}

	want := []int{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("iteration length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if it := s.Find(3); !it.Valid() || it.Key() != 3 {
		t.Fatal("Find(3) failed")
	}

	if it := s.Find(99); it.Valid() {
		t.Fatal("Find(99) should be invalid")
	}
}

func TestSetEraseRemovesKey(t *testing.T) {
	s := New[int](compareInt, allocator.Heap())
	for _, v := range []int{1, 2, 3} {
		s.Insert(v)
	}

	if !s.Erase(2) {
		t.Fatal("Erase(2) reported not found")
	}

	if s.Erase(2) {
		t.Fatal("second Erase(2) must report not found")
	}

	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}

	if it := s.Find(2); it.Valid() {
		t.Fatal("2 must no longer be found after erase")
	}
}

func TestSetCloseReleasesStorage(t *testing.T) {
	h := allocator.NewHeapAllocator()
	s := New[int](compareInt, h.Vtable())

	for _, v := range []int{1, 2, 3} {
		s.Insert(v)
	}

	if stats := h.Stats(); stats.Allocations == 0 {
		t.Fatal("expected live allocations before Close")
	}

	s.Close()

	if s.Size() != 0 {
		t.Fatalf("Size() after Close = %d, want 0", s.Size())
	}

	if stats := h.Stats(); stats.Allocations != 0 {
		t.Fatalf("allocator still reports %d live allocations after Close", stats.Allocations)
	}
}

func TestSetBoundsIterators(t *testing.T) {
	s := New[int](compareInt, allocator.Heap())

	if s.First().Valid() || s.Last().Valid() {
		t.Fatal("an empty set's First/Last must be invalid")
	}

	s.Insert(10)

	first := s.First()
	if first.Prev().Valid() {
		t.Fatal("Prev of the only entry must be invalid")
	}
	if first.Next().Valid() {
		t.Fatal("Next of the only entry must be invalid")
	}
}
