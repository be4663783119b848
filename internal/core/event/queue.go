package event

// Queue is a double-buffered single-goroutine queue. Items emitted while the
// front buffer is being processed land in the back buffer and are seen on the
// next Swap, so handlers may emit freely during dispatch.
type Queue[T any] struct {
	front []T
	back  []T
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		front: make([]T, 0, 32),
		back:  make([]T, 0, 32),
	}
}

// Emit queues an item into the back buffer.
func (q *Queue[T]) Emit(v T) {
	q.back = append(q.back, v)
}

// Swap rotates back→front and clears the new back buffer.
func (q *Queue[T]) Swap() []T {
	q.front, q.back = q.back, q.front[:0]
	return q.front
}

// Pending reports whether anything is waiting in the back buffer.
func (q *Queue[T]) Pending() bool {
	return len(q.back) > 0
}

// DispatchAll swaps and delivers until no more items are emitted, bounded by
// maxRounds so a handler that always re-emits cannot spin forever.
func (q *Queue[T]) DispatchAll(maxRounds int, fn func(T)) int {
	n := 0
	for round := 0; round < maxRounds && q.Pending(); round++ {
		for _, v := range q.Swap() {
			fn(v)
			n++
		}
	}
	return n
}
