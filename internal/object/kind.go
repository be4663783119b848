package object

import "fmt"

// Kind is the closed set of entity kinds. Every switch over Kind in the
// encoder is exhaustive; adding a kind breaks the guard below until every
// schema table and encoder switch has been extended.
type Kind uint8

const (
	KindPlayer Kind = iota
	KindCreature
	KindGameObject
	KindCorpse

	KindCount
)

// Compile-time guard: fails with "index out of range" when KindCount changes.
var _ = [1]struct{}{}[KindCount-4]

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindCreature:
		return "creature"
	case KindGameObject:
		return "gameobject"
	case KindCorpse:
		return "corpse"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k < KindCount }

// IsUnit reports whether the kind carries the unit field block.
func (k Kind) IsUnit() bool { return k == KindPlayer || k == KindCreature }

// Capability flags drive the shape of the CREATE header.
type Capability uint8

const (
	CapPosition Capability = 1 << iota // stationary position + orientation
	CapLiving                          // motion state (flags, speed, destination)
	CapTarget                          // attached target GUID
	CapSelf                            // block describes the receiving observer itself
)

func (c Capability) Has(f Capability) bool { return c&f != 0 }
