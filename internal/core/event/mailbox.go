package event

import (
	"errors"
	"sync"
)

// ErrMailboxFull is returned by Post when the mailbox is at capacity.
var ErrMailboxFull = errors.New("mailbox full")

// Mailbox is a bounded, mutex-guarded queue for messages posted from other
// goroutines. The owner drains it once per tick; it is the only path by which
// another goroutine may hand work to a partition.
type Mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	spare []T
	limit int
}

func NewMailbox[T any](limit int) *Mailbox[T] {
	if limit <= 0 {
		limit = 1024
	}
	return &Mailbox[T]{
		items: make([]T, 0, 64),
		spare: make([]T, 0, 64),
		limit: limit,
	}
}

// Post enqueues msg. Safe for concurrent use.
func (m *Mailbox[T]) Post(msg T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) >= m.limit {
		return ErrMailboxFull
	}
	m.items = append(m.items, msg)
	return nil
}

// Drain swaps out everything posted so far and returns it in post order.
// The returned slice is valid until the next Drain.
func (m *Mailbox[T]) Drain() []T {
	m.mu.Lock()
	out := m.items
	m.items = m.spare[:0]
	m.spare = out
	m.mu.Unlock()
	return out
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
