package object

import "math"

// Position is a world-space location plus facing in radians.
type Position struct {
	X, Y, Z float32
	O       float32
}

// Finite reports whether every coordinate is a real number.
func (p Position) Finite() bool {
	for _, v := range [4]float32{p.X, p.Y, p.Z, p.O} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Dist2D is the planar distance between p and q.
func (p Position) Dist2D(q Position) float32 {
	dx := float64(p.X - q.X)
	dy := float64(p.Y - q.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

// CellPair is a fine-resolution cell coordinate. The world package owns
// the mapping from positions to cells.
type CellPair struct {
	X, Y int32
}

// Motion is the movement state replicated in the CREATE header of living
// entities and advanced by the entity-update visitor.
type Motion struct {
	Flags  uint32
	Speed  float32 // world units per second
	Dest   Position
	Moving bool
}

// Motion flags.
const (
	MoveForward uint32 = 1 << iota
	MoveWalking
	MoveRooted
)
