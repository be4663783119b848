package world

import (
	"testing"
	"time"
)

func TestSchedulerOrderAndCancel(t *testing.T) {
	s := NewScheduler()
	var got []string
	s.After(300*time.Millisecond, func() { got = append(got, "c") })
	s.After(100*time.Millisecond, func() { got = append(got, "a") })
	b := s.After(200*time.Millisecond, func() { got = append(got, "b") })
	s.After(100*time.Millisecond, func() { got = append(got, "a2") })

	if !s.Cancel(b) {
		t.Fatalf("cancel of pending action failed")
	}
	if s.Cancel(b) {
		t.Fatalf("second cancel reported success")
	}
	if n := s.Advance(150 * time.Millisecond); n != 2 {
		t.Fatalf("ran %d actions, want 2", n)
	}
	s.Advance(time.Second)
	want := []string{"a", "a2", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("%d actions left", s.Len())
	}
}

func TestSchedulerRescheduleFromAction(t *testing.T) {
	s := NewScheduler()
	n := 0
	var again func()
	again = func() {
		n++
		if n < 3 {
			s.After(100*time.Millisecond, again)
		}
	}
	s.After(100*time.Millisecond, again)
	for i := 0; i < 5; i++ {
		s.Advance(100 * time.Millisecond)
	}
	if n != 3 {
		t.Fatalf("ran %d times, want 3", n)
	}
}
