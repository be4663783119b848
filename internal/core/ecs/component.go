package ecs

// Store is a generic typed map store keyed by GUID.
// No reflect, no interface{}: pure generics.
// Accessed only from the owning partition goroutine.
type Store[T any] struct {
	data map[GUID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[GUID]*T, 256),
	}
}

func (s *Store[T]) Set(id GUID, c *T) {
	s.data[id] = c
}

// Get returns the value for id, or (nil, false) when id is not resident.
func (s *Store[T]) Get(id GUID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Remove(id GUID) {
	delete(s.data, id)
}

func (s *Store[T]) Has(id GUID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

// Each visits every value. fn must not add or remove entries.
func (s *Store[T]) Each(fn func(GUID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}
