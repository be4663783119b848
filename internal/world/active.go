package world

import (
	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// Roster is an ordered entity set whose iteration survives removal of any
// element, including the one under the cursor. The active-entity set and the
// observer set are both rosters.
type Roster struct {
	items  []*object.Entity
	index  map[ecs.GUID]int
	cursor int // position of the element being visited, -1 when idle
}

func NewRoster() *Roster {
	return &Roster{index: make(map[ecs.GUID]int), cursor: -1}
}

// Add appends e. Adding a present entity is a no-op and reports false.
func (r *Roster) Add(e *object.Entity) bool {
	if _, ok := r.index[e.GUID]; ok {
		return false
	}
	r.index[e.GUID] = len(r.items)
	r.items = append(r.items, e)
	return true
}

// Remove deletes e, keeping the order of the remaining elements. When called
// from inside Each, the cursor is moved back so the element that slid into
// the freed slot is still visited.
func (r *Roster) Remove(id ecs.GUID) bool {
	i, ok := r.index[id]
	if !ok {
		return false
	}
	copy(r.items[i:], r.items[i+1:])
	r.items[len(r.items)-1] = nil
	r.items = r.items[:len(r.items)-1]
	delete(r.index, id)
	for j := i; j < len(r.items); j++ {
		r.index[r.items[j].GUID] = j
	}
	if r.cursor >= 0 && i <= r.cursor {
		r.cursor--
	}
	return true
}

func (r *Roster) Has(id ecs.GUID) bool {
	_, ok := r.index[id]
	return ok
}

func (r *Roster) Len() int { return len(r.items) }

// Each visits elements in insertion order. fn may add or remove any element;
// elements added during the walk are visited in the same walk.
// Each is not reentrant and panics when nested.
func (r *Roster) Each(fn func(e *object.Entity)) {
	if r.cursor >= 0 {
		invariant("nested roster walk")
	}
	for r.cursor = 0; r.cursor < len(r.items); r.cursor++ {
		fn(r.items[r.cursor])
	}
	r.cursor = -1
}

// Slice returns a copy of the current elements.
func (r *Roster) Slice() []*object.Entity {
	out := make([]*object.Entity, len(r.items))
	copy(out, r.items)
	return out
}
