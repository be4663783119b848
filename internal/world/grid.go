package world

import (
	"time"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// GridState is the lifecycle state of a grid.
type GridState uint8

const (
	GridNotCreated GridState = iota
	GridIdle                 // static data loaded, no spawns
	GridActive               // spawns loaded, entities resident
	GridRemoval              // unloading in progress
)

func (s GridState) String() string {
	switch s {
	case GridNotCreated:
		return "not-created"
	case GridIdle:
		return "idle"
	case GridActive:
		return "active"
	case GridRemoval:
		return "removal"
	}
	return "unknown"
}

// bucket is an insertion-ordered GUID set with O(1) removal.
type bucket struct {
	ids []ecs.GUID
	idx map[ecs.GUID]int
}

func (b *bucket) add(id ecs.GUID) {
	if b.idx == nil {
		b.idx = make(map[ecs.GUID]int)
	}
	if _, ok := b.idx[id]; ok {
		return
	}
	b.idx[id] = len(b.ids)
	b.ids = append(b.ids, id)
}

func (b *bucket) remove(id ecs.GUID) bool {
	i, ok := b.idx[id]
	if !ok {
		return false
	}
	last := len(b.ids) - 1
	if i != last {
		b.ids[i] = b.ids[last]
		b.idx[b.ids[i]] = i
	}
	b.ids = b.ids[:last]
	delete(b.idx, id)
	return true
}

func (b *bucket) has(id ecs.GUID) bool {
	_, ok := b.idx[id]
	return ok
}

func (b *bucket) len() int { return len(b.ids) }

// Cell is the fine-resolution tile. Observers and other entities are kept in
// separate buckets so visibility can scan either side alone.
type Cell struct {
	Coord     object.CellPair
	objects   bucket
	observers bucket
	visited   uint64 // tick number of the last update visit
}

func (c *Cell) bucketFor(e *object.Entity) *bucket {
	if e.IsObserver() {
		return &c.observers
	}
	return &c.objects
}

// Len returns the number of entities in the cell.
func (c *Cell) Len() int { return c.objects.len() + c.observers.len() }

// Grid is the coarse-resolution tile: the unit of loading and unloading.
type Grid struct {
	Coord GridCoord

	state      GridState
	locks      int  // active-set entities homed here
	unloadLock bool // set by callers that must keep the grid resident
	expiry     time.Duration
	terrain    *Terrain
	residents  int
	cells      [CellsPerGrid][CellsPerGrid]*Cell
}

func newGrid(c GridCoord) *Grid {
	g := &Grid{Coord: c, state: GridIdle}
	for x := 0; x < CellsPerGrid; x++ {
		for y := 0; y < CellsPerGrid; y++ {
			g.cells[x][y] = &Cell{Coord: object.CellPair{
				X: c.X*CellsPerGrid + int32(x),
				Y: c.Y*CellsPerGrid + int32(y),
			}}
		}
	}
	return g
}

func (g *Grid) State() GridState   { return g.state }
func (g *Grid) Locks() int         { return g.locks }
func (g *Grid) Residents() int     { return g.residents }
func (g *Grid) Terrain() *Terrain  { return g.terrain }
func (g *Grid) UnloadLocked() bool { return g.unloadLock }

// cell returns the cell at global coordinates c, which must lie in g.
func (g *Grid) cell(c object.CellPair) *Cell {
	return g.cells[c.X-g.Coord.X*CellsPerGrid][c.Y-g.Coord.Y*CellsPerGrid]
}

func (g *Grid) insert(e *object.Entity) {
	c := g.cell(e.Cell)
	b := c.bucketFor(e)
	if b.has(e.GUID) {
		return
	}
	b.add(e.GUID)
	g.residents++
}

func (g *Grid) erase(e *object.Entity) bool {
	if !g.cell(e.Cell).bucketFor(e).remove(e.GUID) {
		return false
	}
	g.residents--
	return true
}

// each visits every resident GUID. The visit works on a copy so fn may move
// or remove entities.
func (g *Grid) each(fn func(ecs.GUID)) {
	ids := make([]ecs.GUID, 0, g.residents)
	for x := range g.cells {
		for _, c := range g.cells[x] {
			ids = append(ids, c.observers.ids...)
			ids = append(ids, c.objects.ids...)
		}
	}
	for _, id := range ids {
		fn(id)
	}
}
