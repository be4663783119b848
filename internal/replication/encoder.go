package replication

import (
	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/object"
)

// Block opcodes.
const (
	BlockCreate     byte = 0
	BlockCreateFull byte = 1
	BlockUpdate     byte = 2
	BlockDestroy    byte = 3
)

// Delivery is the observer-side state change an encoded block implies. It is
// applied only after the packet carrying the block was accepted by the
// session, so a failed flush leaves the observer's pending bits intact.
type Delivery struct {
	vs        *object.ViewState
	projected []uint64
	created   bool
}

// Commit records the block as delivered.
func (d Delivery) Commit() {
	if d.vs == nil {
		return
	}
	copy(d.vs.Projected, d.projected)
	d.vs.Pending.Clear()
	if d.created {
		d.vs.Created = true
	}
}

// Encoder accumulates replication blocks for one observer into a single
// S_OPCODE_UPDATE_OBJECT packet:
//
//	opcode | map u16 | block count u32 | blocks...
//
// The encoder is a per-(entity, observer) projection: every block is built
// from the entity's current state seen through the receiving observer.
type Encoder struct {
	w       *packet.Writer
	countAt int
	blocks  uint32
	stamp   uint32
}

func NewEncoder(mapID uint16, stamp uint32) *Encoder {
	enc := &Encoder{w: packet.NewWriter()}
	enc.Reset(mapID, stamp)
	return enc
}

// Reset prepares the encoder for a new packet. stamp is the tick time in
// milliseconds written into motion headers.
func (enc *Encoder) Reset(mapID uint16, stamp uint32) {
	enc.w.Reset()
	enc.w.WriteC(packet.S_OPCODE_UPDATE_OBJECT)
	enc.w.WriteH(mapID)
	enc.countAt = enc.w.Reserve(4)
	enc.blocks = 0
	enc.stamp = stamp
}

func (enc *Encoder) Blocks() int { return int(enc.blocks) }
func (enc *Encoder) Empty() bool { return enc.blocks == 0 }

// Bytes finalises the block count and returns the packet.
func (enc *Encoder) Bytes() []byte {
	enc.w.PatchDU(enc.countAt, enc.blocks)
	return enc.w.Bytes()
}

// Create writes a CREATE (or CREATE_FULL) block carrying every visible field
// holding a non-default value. The output depends only on current state, the
// viewer and the stamp, so it can be resent at any time.
func (enc *Encoder) Create(e, viewer *object.Entity, vs *object.ViewState, full bool) Delivery {
	op := BlockCreate
	if full {
		op = BlockCreateFull
	}
	enc.w.WriteC(op)
	enc.w.WritePackedGUID(uint64(e.GUID))
	enc.w.WriteC(byte(e.Kind))
	enc.writeHeader(e, viewer)

	proj := enc.project(e, viewer)
	mask := e.Fields.NonDefault()
	for slot, i := range e.Fields.Schema().Conditional {
		if proj[slot] != 0 {
			mask.Set(i)
		} else {
			mask.Unset(i)
		}
	}
	for i := 0; i < e.Fields.Len(); i++ {
		if mask.Has(i) && !Visible(e, i, viewer) {
			mask.Unset(i)
		}
	}
	enc.writeFields(e, mask, proj)
	enc.blocks++
	return Delivery{vs: vs, projected: proj, created: true}
}

// Update writes an UPDATE block with the fields pending for this observer
// plus any conditional field whose projection changed since the last send.
// It reports false and writes nothing when there is nothing to send.
func (enc *Encoder) Update(e, viewer *object.Entity, vs *object.ViewState) (Delivery, bool) {
	proj := enc.project(e, viewer)
	mask := object.NewMask(e.Fields.Len())
	for i := 0; i < e.Fields.Len(); i++ {
		if vs.Pending.Has(i) && Visible(e, i, viewer) {
			mask.Set(i)
		}
	}
	schema := e.Fields.Schema()
	for slot, i := range schema.Conditional {
		if proj[slot] != vs.Projected[slot] && Visible(e, i, viewer) {
			mask.Set(i)
		}
	}
	d := Delivery{vs: vs, projected: proj}
	if mask.IsZero() {
		return d, false
	}
	enc.w.WriteC(BlockUpdate)
	enc.w.WritePackedGUID(uint64(e.GUID))
	enc.writeFields(e, mask, proj)
	enc.blocks++
	return d, true
}

// Destroy writes a DESTROY block.
func (enc *Encoder) Destroy(g ecs.GUID, despawnAnim bool) {
	enc.w.WriteC(BlockDestroy)
	enc.w.WritePackedGUID(uint64(g))
	var anim byte
	if despawnAnim {
		anim = 1
	}
	enc.w.WriteC(anim)
	enc.blocks++
}

func (enc *Encoder) project(e, viewer *object.Entity) []uint64 {
	schema := e.Fields.Schema()
	proj := make([]uint64, len(schema.Conditional))
	for slot, i := range schema.Conditional {
		proj[slot] = Project(e, i, viewer)
	}
	return proj
}

func (enc *Encoder) valueFor(e *object.Entity, i int, proj []uint64) uint64 {
	if slot := e.Fields.Schema().ConditionalSlot(i); slot >= 0 {
		return proj[slot]
	}
	return e.Fields.Raw(i)
}

// writeHeader emits the capability-driven CREATE header. Its shape follows
// the capability byte rather than a fixed layout.
func (enc *Encoder) writeHeader(e, viewer *object.Entity) {
	caps := e.Capabilities()
	if e.GUID == viewer.GUID {
		caps |= object.CapSelf
	}
	enc.w.WriteC(byte(caps))

	switch {
	case caps.Has(object.CapLiving):
		m := e.Motion
		enc.w.WriteDU(m.Flags)
		enc.w.WriteDU(enc.stamp)
		writePosition(enc.w, e.Pos)
		enc.w.WriteF(m.Speed)
		if m.Moving {
			enc.w.WriteC(1)
			writePosition(enc.w, m.Dest)
		} else {
			enc.w.WriteC(0)
		}
	case caps.Has(object.CapPosition):
		writePosition(enc.w, e.Pos)
	}
	if caps.Has(object.CapTarget) {
		enc.w.WritePackedGUID(uint64(e.Fields.GUID(object.UnitTarget)))
	}
}

// writeFields emits blockCount, the presence bitmask and one payload per set bit.
func (enc *Encoder) writeFields(e *object.Entity, mask object.Mask, proj []uint64) {
	enc.w.WriteC(byte(len(mask)))
	for _, word := range mask {
		enc.w.WriteDU(word)
	}
	schema := e.Fields.Schema()
	for i, def := range schema.Fields {
		if !mask.Has(i) {
			continue
		}
		v := enc.valueFor(e, i, proj)
		switch def.Type {
		case object.TypeGUID:
			enc.w.WritePackedGUID(v)
		default:
			enc.w.WriteDU(uint32(v))
		}
	}
}

func writePosition(w *packet.Writer, p object.Position) {
	w.WriteF(p.X)
	w.WriteF(p.Y)
	w.WriteF(p.Z)
	w.WriteF(p.O)
}
