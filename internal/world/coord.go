package world

import (
	"errors"
	"math"

	"github.com/l1jgo/worldcore/internal/object"
)

// Map geometry. A map is GridsPerMap×GridsPerMap grids centred on the
// origin; each grid is split into CellsPerGrid×CellsPerGrid cells. Grids are
// the load/unload unit, cells the per-tick visitation unit.
const (
	GridsPerMap  = 64
	CellsPerGrid = 8
	CellsPerMap  = GridsPerMap * CellsPerGrid

	GridSize    = float32(533.33333)
	CellSize    = GridSize / CellsPerGrid
	MapHalfSize = GridSize * GridsPerMap / 2
)

var (
	// ErrInvalidPosition is returned for NaN, infinite or out-of-bounds coordinates.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrTileLoad wraps persistent-store failures while activating a grid.
	ErrTileLoad = errors.New("tile load failed")
	// ErrNotResident is returned by lookups for GUIDs not owned by the partition.
	ErrNotResident = errors.New("entity not resident")
	// ErrPartitionClosed is returned once a partition has been torn down.
	ErrPartitionClosed = errors.New("partition closed")
)

// GridCoord addresses a grid within one map.
type GridCoord struct {
	X, Y int32
}

// Valid reports whether c lies inside the map.
func (c GridCoord) Valid() bool {
	return c.X >= 0 && c.X < GridsPerMap && c.Y >= 0 && c.Y < GridsPerMap
}

// Origin returns the world coordinates of the grid's low corner.
func (c GridCoord) Origin() (float32, float32) {
	return float32(c.X)*GridSize - MapHalfSize, float32(c.Y)*GridSize - MapHalfSize
}

// TileCoord is a grid qualified with its map, as the store addresses it.
type TileCoord struct {
	Map  uint32
	Grid GridCoord
}

// Bounds limit the walkable area of a map. The zero value means the whole map.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float32
}

func (b Bounds) isZero() bool { return b == Bounds{} }

// Contains reports whether (x, y) lies inside b, or inside the map when b is zero.
func (b Bounds) Contains(x, y float32) bool {
	if b.isZero() {
		lim := MapHalfSize - 0.5
		return x > -lim && x < lim && y > -lim && y < lim
	}
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// ValidatePosition rejects positions the partition cannot index.
func ValidatePosition(p object.Position, b Bounds) error {
	if !p.Finite() || !b.Contains(p.X, p.Y) {
		return ErrInvalidPosition
	}
	return nil
}

func cellIndex(v float32) int32 {
	i := int32(math.Floor(float64((v + MapHalfSize) / CellSize)))
	if i < 0 {
		return 0
	}
	if i >= CellsPerMap {
		return CellsPerMap - 1
	}
	return i
}

// CellOf returns the global cell coordinates of a world position.
func CellOf(x, y float32) object.CellPair {
	return object.CellPair{X: cellIndex(x), Y: cellIndex(y)}
}

// GridOfCell returns the grid containing c.
func GridOfCell(c object.CellPair) GridCoord {
	return GridCoord{X: c.X / CellsPerGrid, Y: c.Y / CellsPerGrid}
}

// GridOf returns the grid containing a world position.
func GridOf(x, y float32) GridCoord {
	return GridOfCell(CellOf(x, y))
}

// cellArea is an inclusive rectangle of global cell coordinates.
type cellArea struct {
	lo, hi object.CellPair
}

// areaAround returns the cells touched by a square of half-width r around (x, y).
func areaAround(x, y, r float32) cellArea {
	return cellArea{
		lo: object.CellPair{X: cellIndex(x - r), Y: cellIndex(y - r)},
		hi: object.CellPair{X: cellIndex(x + r), Y: cellIndex(y + r)},
	}
}

// grids returns the inclusive grid rectangle covered by a.
func (a cellArea) grids() (GridCoord, GridCoord) {
	return GridOfCell(a.lo), GridOfCell(a.hi)
}

// distToGrid returns the distance from (x, y) to the nearest point of grid g.
func distToGrid(x, y float32, g GridCoord) float32 {
	ox, oy := g.Origin()
	dx := axisGap(x, ox, ox+GridSize)
	dy := axisGap(y, oy, oy+GridSize)
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

func axisGap(v, lo, hi float32) float32 {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	}
	return 0
}
