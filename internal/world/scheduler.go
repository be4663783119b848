package world

import (
	"container/heap"
	"time"
)

// TimerID names a scheduled action so it can be cancelled before it fires.
type TimerID uint64

type timer struct {
	id    TimerID
	at    time.Duration
	seq   uint64
	fn    func()
	index int
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler runs deferred actions on partition time. Cancellation is
// cooperative: an action is either removed before its fire time or it runs.
type Scheduler struct {
	now    time.Duration
	timers timerHeap
	byID   map[TimerID]*timer
	nextID TimerID
	seq    uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{byID: make(map[TimerID]*timer)}
}

// After schedules fn to run once d has elapsed.
func (s *Scheduler) After(d time.Duration, fn func()) TimerID {
	s.nextID++
	s.seq++
	t := &timer{id: s.nextID, at: s.now + d, seq: s.seq, fn: fn}
	heap.Push(&s.timers, t)
	s.byID[t.id] = t
	return t.id
}

// Cancel removes a pending action. It reports false if the action already
// ran or was cancelled.
func (s *Scheduler) Cancel(id TimerID) bool {
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.timers, t.index)
	delete(s.byID, id)
	return true
}

// Advance moves partition time forward by dt and runs every action whose
// fire time has passed, in fire-time order. Actions scheduled while running
// with a zero delay run in the same call.
func (s *Scheduler) Advance(dt time.Duration) int {
	s.now += dt
	n := 0
	for len(s.timers) > 0 && s.timers[0].at <= s.now {
		t := heap.Pop(&s.timers).(*timer)
		delete(s.byID, t.id)
		t.fn()
		n++
	}
	return n
}

func (s *Scheduler) Len() int           { return len(s.timers) }
func (s *Scheduler) Now() time.Duration { return s.now }
