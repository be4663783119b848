package world

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/replication"
)

type destroyNote struct {
	id   ecs.GUID
	anim bool
}

// Observer binds a session to a player body. known is the observer side of
// the has-created relation; the entity side is each entity's viewer set.
type Observer struct {
	Body    *object.Entity
	Session Session
	Radius  float32
	// Home is the partition the observer returns to when a match or
	// instance it is visiting shuts down.
	Home     PartitionID
	HomePos  object.Position
	LastPing time.Time

	known    bucket
	destroys []destroyNote
	enc      *replication.Encoder
	deliver  []replication.Delivery
}

func (o *Observer) GUID() ecs.GUID { return o.Body.GUID }

// Knows reports whether the observer holds a client copy of id.
func (o *Observer) Knows(id ecs.GUID) bool { return o.known.has(id) }

// Known returns a copy of the observer's visible set.
func (o *Observer) Known() []ecs.GUID {
	out := make([]ecs.GUID, len(o.known.ids))
	copy(out, o.known.ids)
	return out
}

// AddObserver makes body resident and binds sess to it. body must be a
// player entity.
func (p *Partition) AddObserver(body *object.Entity, sess Session, home PartitionID, homePos object.Position) (*Observer, error) {
	if !body.IsObserver() {
		return nil, fmt.Errorf("observer %s: kind %s cannot observe", body.GUID, body.Kind)
	}
	o := &Observer{
		Body:    body,
		Session: sess,
		Radius:  p.settings.Radius,
		Home:    home,
		HomePos: homePos,
		enc:     replication.NewEncoder(uint16(p.id.Map), 0),
	}
	if body.ViewRadius > 0 {
		o.Radius = body.ViewRadius
	}
	if err := p.Add(body); err != nil {
		return nil, err
	}
	p.sessions[body.GUID] = o
	p.roster.Add(body)
	p.variant.observerJoined(o)
	p.log.Info("觀察者進入分區", zap.Stringer("guid", body.GUID), zap.Uint64("session", sess.ID()))
	return o, nil
}

// link records that o now holds a copy of e, on both sides at once.
func (p *Partition) link(o *Observer, e *object.Entity) {
	e.AddViewer(o.Body.GUID)
	o.known.add(e.GUID)
}

// unlink drops the relation on both sides. A DESTROY is queued only when the
// observer actually received the CREATE.
func (p *Partition) unlink(o *Observer, e *object.Entity, anim bool) {
	if vs, ok := e.Viewer(o.Body.GUID); ok {
		if vs.Created {
			o.destroys = append(o.destroys, destroyNote{id: e.GUID, anim: anim})
		}
		e.RemoveViewer(o.Body.GUID)
	}
	o.known.remove(e.GUID)
}
