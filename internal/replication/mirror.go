package replication

import (
	"errors"
	"fmt"

	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/object"
)

var (
	// ErrShortBlock is returned when a packet ends inside a block.
	ErrShortBlock = errors.New("replication block truncated")
	// ErrUnknownEntity is returned for an UPDATE naming an entity the
	// mirror never received a CREATE for.
	ErrUnknownEntity = errors.New("update for unknown entity")
)

// MirrorObject is the client-side copy of one entity.
type MirrorObject struct {
	GUID    uint64
	Kind    object.Kind
	Caps    object.Capability
	Pos     object.Position
	Motion  object.Motion
	Stamp   uint32
	Target  uint64
	Values  []uint64
	Full    bool
	Updates int
}

// Mirror applies replication packets the way a client would. Used by tests
// to check what an observer actually holds.
type Mirror struct {
	Objects   map[uint64]*MirrorObject
	Destroyed []uint64
	Animated  []uint64 // destroys that asked for the despawn animation
	MapID     uint16
	Transfers int
}

func NewMirror() *Mirror {
	return &Mirror{Objects: make(map[uint64]*MirrorObject)}
}

// Apply decodes one S_OPCODE_UPDATE_OBJECT packet. An S_OPCODE_TRANSFER
// notice discards every copy, as a client leaving the partition does.
func (m *Mirror) Apply(data []byte) error {
	r := packet.NewRawReader(data)
	switch op := r.ReadC(); op {
	case packet.S_OPCODE_UPDATE_OBJECT:
	case packet.S_OPCODE_TRANSFER:
		clear(m.Objects)
		m.Transfers++
		return nil
	default:
		return fmt.Errorf("unexpected opcode %#x", op)
	}
	m.MapID = r.ReadH()
	count := r.ReadDU()
	for n := uint32(0); n < count; n++ {
		if err := m.applyBlock(r); err != nil {
			return fmt.Errorf("block %d: %w", n, err)
		}
	}
	if r.Err() != nil {
		return ErrShortBlock
	}
	return nil
}

func (m *Mirror) applyBlock(r *packet.Reader) error {
	op := r.ReadC()
	guid := r.ReadPackedGUID()
	if r.Err() != nil {
		return ErrShortBlock
	}
	switch op {
	case BlockCreate, BlockCreateFull:
		kind := object.Kind(r.ReadC())
		if !kind.Valid() {
			return fmt.Errorf("invalid kind %d", kind)
		}
		obj := &MirrorObject{
			GUID:   guid,
			Kind:   kind,
			Values: make([]uint64, object.SchemaOf(kind).Len()),
			Full:   op == BlockCreateFull,
		}
		readHeader(r, obj)
		if err := readFields(r, obj); err != nil {
			return err
		}
		m.Objects[guid] = obj
	case BlockUpdate:
		obj, ok := m.Objects[guid]
		if !ok {
			return fmt.Errorf("%w: %#x", ErrUnknownEntity, guid)
		}
		if err := readFields(r, obj); err != nil {
			return err
		}
		obj.Updates++
	case BlockDestroy:
		if r.ReadC() != 0 {
			m.Animated = append(m.Animated, guid)
		}
		delete(m.Objects, guid)
		m.Destroyed = append(m.Destroyed, guid)
	default:
		return fmt.Errorf("unknown block opcode %d", op)
	}
	if r.Err() != nil {
		return ErrShortBlock
	}
	return nil
}

func readHeader(r *packet.Reader, obj *MirrorObject) {
	obj.Caps = object.Capability(r.ReadC())
	switch {
	case obj.Caps.Has(object.CapLiving):
		obj.Motion.Flags = r.ReadDU()
		obj.Stamp = r.ReadDU()
		obj.Pos = readPosition(r)
		obj.Motion.Speed = r.ReadF()
		if r.ReadC() == 1 {
			obj.Motion.Moving = true
			obj.Motion.Dest = readPosition(r)
		}
	case obj.Caps.Has(object.CapPosition):
		obj.Pos = readPosition(r)
	}
	if obj.Caps.Has(object.CapTarget) {
		obj.Target = r.ReadPackedGUID()
	}
}

func readFields(r *packet.Reader, obj *MirrorObject) error {
	words := int(r.ReadC())
	schema := object.SchemaOf(obj.Kind)
	if words != len(object.NewMask(schema.Len())) {
		return fmt.Errorf("mask has %d blocks, schema needs %d", words, len(object.NewMask(schema.Len())))
	}
	mask := make(object.Mask, words)
	for i := range mask {
		mask[i] = r.ReadDU()
	}
	for i, def := range schema.Fields {
		if !mask.Has(i) {
			continue
		}
		switch def.Type {
		case object.TypeGUID:
			obj.Values[i] = r.ReadPackedGUID()
		default:
			obj.Values[i] = uint64(r.ReadDU())
		}
	}
	return nil
}

func readPosition(r *packet.Reader) object.Position {
	return object.Position{X: r.ReadF(), Y: r.ReadF(), Z: r.ReadF(), O: r.ReadF()}
}
