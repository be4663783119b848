package world

import (
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// mergeDirty moves each changed entity's shared dirty bits into the pending
// mask of every observer holding a copy, then clears the shared bits. From
// here on each observer's pending mask is cleared only by its own delivery.
func (p *Partition) mergeDirty() {
	for _, e := range p.pending {
		if !e.PendingReplication() {
			continue
		}
		if !p.resident(e) {
			invariant("entity %s pending replication while not resident", e.GUID)
		}
		dirty := e.Fields.Dirty()
		e.EachViewer(func(_ ecs.GUID, vs *object.ViewState) {
			vs.Pending.Or(dirty)
		})
		e.Fields.ClearDirty()
		e.SetPendingReplication(false)
	}
	p.pending = p.pending[:0]
}

// flushObserver encodes everything o is owed into one packet: DESTROYs,
// then per known entity a CREATE when the copy was never delivered or an
// UPDATE otherwise. Observer state changes are committed only once the
// session accepted the packet.
func (p *Partition) flushObserver(o *Observer, stamp uint32) {
	enc := o.enc
	enc.Reset(uint16(p.id.Map), stamp)
	o.deliver = o.deliver[:0]
	viewer := o.Body

	for _, d := range o.destroys {
		enc.Destroy(d.id, d.anim)
	}
	for _, id := range o.known.ids {
		e, ok := p.entities.Get(id)
		if !ok {
			invariant("observer %s knows %s which is not resident", viewer.GUID, id)
		}
		vs, ok := e.Viewer(viewer.GUID)
		if !ok {
			invariant("observer %s knows %s but is not in its viewer set", viewer.GUID, id)
		}
		if !vs.Created {
			full := id == viewer.GUID || e.Life.SpawnedAtTick == p.tick
			o.deliver = append(o.deliver, enc.Create(e, viewer, vs, full))
			continue
		}
		if vs.Pending.IsZero() && len(e.Fields.Schema().Conditional) == 0 {
			continue
		}
		if d, ok := enc.Update(e, viewer, vs); ok {
			o.deliver = append(o.deliver, d)
		} else {
			d.Commit()
		}
	}
	if enc.Empty() {
		return
	}

	data := enc.Bytes()
	pkt := make([]byte, len(data))
	copy(pkt, data)
	if err := o.Session.Send(pkt); err != nil {
		p.stats.SendFailures++
		p.log.Debug("複寫封包送出失敗，保留待送狀態", zap.Stringer("guid", viewer.GUID), zap.Error(err))
		return
	}
	p.stats.PacketsSent++
	for _, d := range o.deliver {
		d.Commit()
	}
	o.destroys = o.destroys[:0]
}

// Validate checks that the has-created relation is symmetric and panics on
// the first violation.
func (p *Partition) Validate() {
	for gid, o := range p.sessions {
		for _, id := range o.known.ids {
			e, ok := p.entities.Get(id)
			if !ok {
				invariant("observer %s knows missing entity %s", gid, id)
			}
			if !e.HasViewer(gid) {
				invariant("observer %s knows %s but %s does not list it", gid, id, id)
			}
		}
	}
	p.entities.Each(func(id ecs.GUID, e *object.Entity) {
		for _, vid := range e.Viewers() {
			o, ok := p.sessions[vid]
			if !ok {
				invariant("entity %s lists viewer %s that is not an observer", id, vid)
			}
			if !o.known.has(id) {
				invariant("entity %s lists viewer %s that does not know it", id, vid)
			}
		}
	})
}
