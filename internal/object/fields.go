package object

import (
	"math"
	"math/bits"

	"github.com/l1jgo/worldcore/internal/core/ecs"
)

// Mask is a field bitmap, one bit per schema slot, grouped in 32-bit blocks.
type Mask []uint32

// NewMask returns an empty mask able to hold n fields.
func NewMask(n int) Mask {
	return make(Mask, (n+31)/32)
}

func (m Mask) Set(i int)      { m[i>>5] |= 1 << (uint(i) & 31) }
func (m Mask) Unset(i int)    { m[i>>5] &^= 1 << (uint(i) & 31) }
func (m Mask) Has(i int) bool { return m[i>>5]&(1<<(uint(i)&31)) != 0 }

func (m Mask) Clear() {
	for i := range m {
		m[i] = 0
	}
}

func (m Mask) IsZero() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}

// Or merges o into m. Both masks must come from the same schema.
func (m Mask) Or(o Mask) {
	for i := range m {
		m[i] |= o[i]
	}
}

func (m Mask) Count() int {
	n := 0
	for _, w := range m {
		n += bits.OnesCount32(w)
	}
	return n
}

// FieldTable holds the typed field values of one entity plus the dirty bitmap
// of fields changed since the last replication pass. Slots are allocated once
// at construction; the schema never grows.
type FieldTable struct {
	schema *Schema
	values []uint64
	dirty  Mask
	// onChange fires on the first change after the dirty bitmap was cleared.
	onChange func()
}

func NewFieldTable(s *Schema) *FieldTable {
	return &FieldTable{
		schema: s,
		values: make([]uint64, s.Len()),
		dirty:  NewMask(s.Len()),
	}
}

func (t *FieldTable) Schema() *Schema { return t.schema }
func (t *FieldTable) Len() int        { return len(t.values) }
func (t *FieldTable) Dirty() Mask     { return t.dirty }

// Raw returns the stored bits of field i.
func (t *FieldTable) Raw(i int) uint64 { return t.values[i] }

func (t *FieldTable) Int(i int) uint32             { return uint32(t.values[i]) }
func (t *FieldTable) Float(i int) float32          { return math.Float32frombits(uint32(t.values[i])) }
func (t *FieldTable) Flags(i int) uint32           { return uint32(t.values[i]) }
func (t *FieldTable) GUID(i int) ecs.GUID          { return ecs.GUID(t.values[i]) }
func (t *FieldTable) HasFlag(i int, f uint32) bool { return uint32(t.values[i])&f == f }

// setRaw stores v when it differs from the current value and marks the slot dirty.
func (t *FieldTable) setRaw(i int, v uint64) bool {
	if t.values[i] == v {
		return false
	}
	t.values[i] = v
	first := t.dirty.IsZero()
	t.dirty.Set(i)
	if first && t.onChange != nil {
		t.onChange()
	}
	return true
}

func (t *FieldTable) SetInt(i int, v uint32) bool     { return t.setRaw(i, uint64(v)) }
func (t *FieldTable) SetFloat(i int, v float32) bool  { return t.setRaw(i, uint64(math.Float32bits(v))) }
func (t *FieldTable) SetFlags(i int, v uint32) bool   { return t.setRaw(i, uint64(v)) }
func (t *FieldTable) SetGUID(i int, v ecs.GUID) bool  { return t.setRaw(i, uint64(v)) }
func (t *FieldTable) AddFlag(i int, f uint32) bool    { return t.setRaw(i, t.values[i]|uint64(f)) }
func (t *FieldTable) RemoveFlag(i int, f uint32) bool { return t.setRaw(i, t.values[i]&^uint64(f)) }

// ClearDirty resets the dirty bitmap after a replication pass.
func (t *FieldTable) ClearDirty() { t.dirty.Clear() }

// NonDefault returns the mask of fields holding a non-zero value.
func (t *FieldTable) NonDefault() Mask {
	m := NewMask(len(t.values))
	for i, v := range t.values {
		if v != 0 {
			m.Set(i)
		}
	}
	return m
}
