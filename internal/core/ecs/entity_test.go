package ecs

import "testing"

func TestAllocatorNeverReturnsZero(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < 100; i++ {
		if id := a.Create(); id.IsZero() {
			t.Fatalf("allocation %d returned the zero GUID", i)
		}
	}
}

func TestAllocatorReleaseInvalidatesStaleRefs(t *testing.T) {
	a := NewAllocator()
	id := a.Create()
	if !a.Alive(id) {
		t.Fatalf("fresh id %x not alive", uint64(id))
	}
	if !a.Release(id) {
		t.Fatalf("first release failed")
	}
	if a.Alive(id) {
		t.Fatalf("released id still alive")
	}
	if a.Release(id) {
		t.Fatalf("double release reported success")
	}

	reused := a.Create()
	if reused.Index() != id.Index() {
		t.Fatalf("expected free list reuse of index %d, got %d", id.Index(), reused.Index())
	}
	if reused == id {
		t.Fatalf("reused slot kept the old generation")
	}
	if a.Live() != 1 {
		t.Fatalf("live = %d, want 1", a.Live())
	}
}

func TestStoreLookupMissing(t *testing.T) {
	s := NewStore[int]()
	v := 7
	s.Set(NewGUID(3, 1), &v)
	if _, ok := s.Get(NewGUID(3, 2)); ok {
		t.Fatalf("lookup with wrong generation should miss")
	}
	got, ok := s.Get(NewGUID(3, 1))
	if !ok || *got != 7 {
		t.Fatalf("lookup = %v,%v", got, ok)
	}
	s.Remove(NewGUID(3, 1))
	if s.Len() != 0 {
		t.Fatalf("len after remove = %d", s.Len())
	}
}
