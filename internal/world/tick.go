package world

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// Step 1: cross-goroutine messages.
func (p *Partition) drainMailbox(time.Duration) {
	for _, msg := range p.mailbox.Drain() {
		msg.apply(p)
	}
}

// Step 2: inbound observer packets. Closed sessions are logged out.
func (p *Partition) pumpSessions(time.Duration) {
	p.roster.Each(func(body *object.Entity) {
		o, ok := p.sessions[body.GUID]
		if !ok || body.Removed() {
			return
		}
		if o.Session.Closed() {
			p.log.Info("連線已關閉，移出分區", zap.Stringer("guid", body.GUID), zap.Uint64("session", o.Session.ID()))
			p.Remove(body)
			return
		}
		for _, data := range o.Session.Receive(p.settings.MaxPacketsPerTick) {
			if body.Removed() {
				break
			}
			if p.rt.Input != nil {
				p.rt.Input.HandlePacket(p, o, data)
			}
		}
	})
	p.cmd.apply()
}

// Step 3: the observers' own bodies.
func (p *Partition) tickObservers(dt time.Duration) {
	p.roster.Each(func(body *object.Entity) {
		p.updateEntity(body, dt)
	})
}

// Step 4: a new epoch invalidates every cell's visited marker at once.
func (p *Partition) resetVisited(time.Duration) {
	p.visitEpoch++
}

// Step 5: visit every cell in range of an observer or an active entity once,
// updating the entities found there, then recompute each observer's visible
// set. Intents emitted by hooks are applied afterwards.
func (p *Partition) visit(dt time.Duration) {
	p.roster.Each(func(body *object.Entity) {
		if o, ok := p.sessions[body.GUID]; ok {
			p.visitAround(body, o.Radius, dt)
		}
	})
	p.active.Each(func(e *object.Entity) {
		p.updateEntity(e, dt)
		p.visitAround(e, p.settings.Radius, dt)
	})
	p.cmd.apply()
	p.roster.Each(func(body *object.Entity) {
		if o, ok := p.sessions[body.GUID]; ok && !body.Removed() {
			p.resolve(o)
		}
	})
}

func (p *Partition) visitAround(e *object.Entity, radius float32, dt time.Duration) {
	if e.Removed() {
		return
	}
	p.forCells(areaAround(e.Pos.X, e.Pos.Y, radius), func(c *Cell) {
		if c.visited == p.visitEpoch {
			return
		}
		c.visited = p.visitEpoch
		p.stats.CellsVisited++
		p.grids[GridOfCell(c.Coord)].expiry = p.settings.GridExpiry
		if c.objects.len() == 0 {
			return
		}
		ids := make([]ecs.GUID, len(c.objects.ids))
		copy(ids, c.objects.ids)
		for _, id := range ids {
			if t, ok := p.entities.Get(id); ok {
				p.updateEntity(t, dt)
			}
		}
	})
}

// updateEntity is the entity-update visitor: motion, decay and the tick
// hook. Each entity is updated at most once per tick.
func (p *Partition) updateEntity(e *object.Entity, dt time.Duration) {
	if e.Removed() || e.LastUpdate == p.tick {
		return
	}
	e.LastUpdate = p.tick
	p.stats.EntitiesUpdated++
	p.advanceMotion(e, dt)
	if e.Removed() {
		return
	}
	p.advanceLife(e, dt)
	if e.Removed() {
		return
	}
	p.rt.hooks().OnTick(p.cmd, e, dt.Milliseconds())
}

func (p *Partition) advanceMotion(e *object.Entity, dt time.Duration) {
	m := &e.Motion
	if !m.Moving || m.Flags&object.MoveRooted != 0 || e.Life.Dead {
		return
	}
	step := m.Speed * float32(dt.Seconds())
	dist := e.Pos.Dist2D(m.Dest)
	next := m.Dest
	if dist > step && step > 0 {
		k := step / dist
		next.X = e.Pos.X + (m.Dest.X-e.Pos.X)*k
		next.Y = e.Pos.Y + (m.Dest.Y-e.Pos.Y)*k
		next.Z = e.Pos.Z + (m.Dest.Z-e.Pos.Z)*k
	} else {
		m.Moving = false
		m.Flags &^= object.MoveForward
	}
	if dist > 0 {
		next.O = float32(math.Atan2(float64(m.Dest.Y-e.Pos.Y), float64(m.Dest.X-e.Pos.X)))
	}
	if g, ok := p.grids[GridOf(next.X, next.Y)]; ok && g.terrain != nil {
		next.Z = g.terrain.HeightAt(g.Coord, next.X, next.Y)
	}
	if err := p.Relocate(e, next); err != nil {
		m.Moving = false
		m.Flags &^= object.MoveForward
	}
}

// advanceLife counts down corpse decay. Creatures from a spawn record come
// back after their respawn delay, if their grid is still active by then.
func (p *Partition) advanceLife(e *object.Entity, dt time.Duration) {
	if e.Kind == object.KindPlayer {
		return
	}
	if e.Kind != object.KindCorpse && !e.Life.Dead {
		return
	}
	if e.Life.DecayLeft <= 0 {
		return
	}
	e.Life.DecayLeft -= dt
	if e.Life.DecayLeft > 0 {
		return
	}
	p.Despawn(e.GUID, true)
	if e.SpawnID != 0 && e.Life.RespawnDelay > 0 {
		p.scheduleRespawn(e)
	}
}

func (p *Partition) scheduleRespawn(e *object.Entity) {
	rec := SpawnRecord{
		ID:           e.SpawnID,
		Kind:         e.Kind,
		Entry:        e.Fields.Int(object.ObjectEntry),
		Pos:          e.Spawn,
		RespawnDelay: e.Life.RespawnDelay,
		Active:       e.Active,
		Team:         e.Relations.Team,
		TrainerClass: e.Relations.TrainerClass,
		QuestEntry:   e.Relations.QuestEntry,
	}
	switch e.Kind {
	case object.KindCreature:
		rec.DisplayID = e.Fields.Int(object.UnitDisplayID)
		rec.Level = e.Fields.Int(object.UnitLevel)
		rec.Health = e.Fields.Int(object.UnitMaxHealth)
		rec.Faction = e.Fields.Int(object.UnitFaction)
		rec.NpcFlags = e.Fields.Flags(object.UnitNpcFlags)
	case object.KindGameObject:
		rec.DisplayID = e.Fields.Int(object.GameObjectDisplayID)
		rec.Faction = e.Fields.Int(object.GameObjectFaction)
	case object.KindCorpse:
		return
	}
	home := GridOf(rec.Pos.X, rec.Pos.Y)
	p.sched.After(rec.RespawnDelay, func() {
		if p.GridState(home) != GridActive {
			return
		}
		if _, err := p.Spawn(rec); err != nil {
			p.log.Warn("重生失敗", zap.Uint64("spawn", rec.ID), zap.Error(err))
		}
	})
}

// Step 6: removal list first, then one replication pass over a frozen state.
func (p *Partition) flush(time.Duration) {
	p.flushRemovals()
	p.mergeDirty()
	stamp := uint32(p.elapsed.Milliseconds())
	p.roster.Each(func(body *object.Entity) {
		if o, ok := p.sessions[body.GUID]; ok {
			p.flushObserver(o, stamp)
		}
	})
}

// Step 7.
func (p *Partition) housekeepingPhase(dt time.Duration) {
	if !p.variant.HousekeepingEnabled() {
		return
	}
	p.housekeeping(dt)
}

// Step 8.
func (p *Partition) scheduledPhase(dt time.Duration) {
	p.sched.Advance(dt)
	p.cmd.apply()
}

// Step 9.
func (p *Partition) variantPhase(dt time.Duration) {
	p.variant.tick(dt)
	p.cmd.apply()
	if p.settings.DebugValidate {
		p.Validate()
	}
}
