package world

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/object"
)

// Message is work handed to a partition from another goroutine. Messages are
// applied in post order during the first phase of the next tick.
type Message interface {
	apply(p *Partition)
}

// EnterMessage brings an entity into the receiving partition. It is the
// second half of a transfer; Session is set for observers.
type EnterMessage struct {
	Entity  *object.Entity
	Session Session
	Home    PartitionID
	HomePos object.Position
}

func (m EnterMessage) apply(p *Partition) {
	var err error
	if m.Session != nil {
		_, err = p.AddObserver(m.Entity, m.Session, m.Home, m.HomePos)
	} else {
		err = p.Add(m.Entity)
	}
	if err == nil {
		return
	}
	p.log.Warn("轉入分區失敗", zap.Stringer("guid", m.Entity.GUID), zap.Error(err))
	if m.Session != nil && m.Home != p.id && p.rt.Router != nil {
		// Send the observer back to where it came from, at its entry point.
		m.Entity.SetPosition(m.HomePos)
		if rerr := p.rt.Router.Route(m.Home, m); rerr == nil {
			return
		}
	}
	p.rt.Alloc.Release(m.Entity.GUID)
}

// EventMessage raises a partition event.
type EventMessage struct {
	ID int32
}

func (m EventMessage) apply(p *Partition) { p.Event(m.ID) }

// ResetMessage asks an instance partition to reset. Other variants ignore it.
type ResetMessage struct{}

func (ResetMessage) apply(p *Partition) {
	if inst, ok := p.variant.(*Instance); ok {
		inst.RequestReset()
	}
}

// FuncMessage runs an arbitrary function on the partition goroutine.
type FuncMessage func(p *Partition)

func (f FuncMessage) apply(p *Partition) { f(p) }

// Transfer moves e to another partition. e leaves this partition at the
// next flush and is posted to dest only after it has been fully detached,
// so it is never owned by two partitions at once.
func (p *Partition) Transfer(e *object.Entity, dest PartitionID, arrive object.Position) error {
	if !p.resident(e) {
		return ErrNotResident
	}
	if dest == p.id {
		return p.Relocate(e, arrive)
	}
	if p.rt.Router == nil {
		return fmt.Errorf("transfer %s: no router", e.GUID)
	}
	p.remove(removal{e: e, dest: &dest, arrive: arrive})
	return nil
}

// handOff posts a detached entity to its destination. When the destination
// cannot take it, the entity is put back where it was.
func (p *Partition) handOff(e *object.Entity, o *Observer, dest PartitionID, arrive object.Position) {
	prev := e.Pos
	e.LastUpdate = 0
	e.SetPosition(arrive)
	msg := EnterMessage{Entity: e}
	if o != nil {
		// The client drops every copy it holds; the destination
		// re-creates what the observer can see there.
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_TRANSFER)
		w.WriteDU(dest.Map)
		w.WriteDU(dest.Instance)
		if err := o.Session.Send(w.Bytes()); err != nil {
			p.log.Debug("傳送通知送出失敗", zap.Stringer("guid", e.GUID), zap.Error(err))
		}
		msg.Session = o.Session
		msg.Home, msg.HomePos = o.Home, o.HomePos
		if p.variant.Kind() == KindOpenWorld {
			msg.Home, msg.HomePos = p.id, prev
		}
	}
	err := p.rt.Router.Route(dest, msg)
	if err == nil {
		p.log.Debug("實體轉出分區", zap.Stringer("guid", e.GUID), zap.Stringer("dest", dest))
		return
	}
	p.log.Warn("跨分區轉移失敗，退回原分區", zap.Stringer("guid", e.GUID), zap.Stringer("dest", dest), zap.Error(err))
	e.SetPosition(prev)
	if o != nil {
		_, err = p.AddObserver(e, o.Session, o.Home, o.HomePos)
	} else {
		err = p.Add(e)
	}
	if err != nil {
		p.log.Error("退回原分區失敗", zap.Stringer("guid", e.GUID), zap.Error(err))
		p.rt.Alloc.Release(e.GUID)
	}
}
