package world

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/event"
	coresys "github.com/l1jgo/worldcore/internal/core/system"
	"github.com/l1jgo/worldcore/internal/object"
)

// PartitionKind selects the lifecycle variant of a partition.
type PartitionKind uint8

const (
	KindOpenWorld PartitionKind = iota
	KindInstance
	KindMatch
)

func (k PartitionKind) String() string {
	switch k {
	case KindOpenWorld:
		return "open_world"
	case KindInstance:
		return "instance"
	case KindMatch:
		return "match"
	}
	return "unknown"
}

// PartitionID names a partition: a map plus an instance number, 0 for the
// open-world copy of the map.
type PartitionID struct {
	Map      uint32
	Instance uint32
}

func (id PartitionID) String() string { return fmt.Sprintf("%d/%d", id.Map, id.Instance) }

// Settings are the per-partition tunables, resolved from config and the map table.
type Settings struct {
	Radius            float32 // perception radius
	GreyZone          float32 // extra margin before an in-range entity is dropped
	GridExpiry        time.Duration
	MailboxSize       int
	MaxPacketsPerTick int
	CorpseDecay       time.Duration
	Bounds            Bounds
	DebugValidate     bool
}

func (s Settings) withDefaults() Settings {
	if s.Radius <= 0 {
		s.Radius = 100
	}
	if s.GreyZone < 0 {
		s.GreyZone = 0
	}
	if s.GridExpiry <= 0 {
		s.GridExpiry = time.Minute
	}
	if s.MaxPacketsPerTick <= 0 {
		s.MaxPacketsPerTick = 32
	}
	if s.CorpseDecay <= 0 {
		s.CorpseDecay = 60 * time.Second
	}
	return s
}

// removal is an entry of the pending-removal list.
type removal struct {
	e       *object.Entity
	anim    bool
	release bool // return the GUID to the allocator
	dest    *PartitionID
	arrive  object.Position
}

// Partition owns one map (or one instance of it): its grids, resident
// entities, observers and tick. A partition is mutated only by the goroutine
// that calls Tick; everything else reaches it through Post.
type Partition struct {
	id       PartitionID
	rt       *Runtime
	log      *zap.Logger
	settings Settings
	variant  Variant
	resolver Resolver

	ctx      context.Context
	grids    map[GridCoord]*Grid
	entities *ecs.Store[object.Entity]
	active   *Roster
	roster   *Roster // observer bodies
	sessions map[ecs.GUID]*Observer
	removals []removal
	pending  []*object.Entity

	mailbox *event.Mailbox[Message]
	cmd     *Commands
	sched   *Scheduler
	runner  *coresys.Runner

	tick       uint64
	elapsed    time.Duration
	inTick     bool
	visitEpoch uint64
	closed     bool

	onEvict func(o *Observer)
	stats   Stats
}

// Stats are per-tick counters, reset at the start of each tick.
type Stats struct {
	CellsVisited    int
	EntitiesUpdated int
	Entered         int
	Left            int
	PacketsSent     int
	SendFailures    int
	GridsLoaded     int
	GridsUnloaded   int
	UnloadsDeferred int
}

// NewPartition builds a partition and registers its tick phases.
func NewPartition(rt *Runtime, id PartitionID, s Settings, v Variant, log *zap.Logger) *Partition {
	s = s.withDefaults()
	if v == nil {
		v = NewOpenWorld()
	}
	p := &Partition{
		id:       id,
		rt:       rt,
		log:      log.With(zap.Uint32("map", id.Map), zap.Uint32("instance", id.Instance), zap.Stringer("kind", v.Kind())),
		settings: s,
		variant:  v,
		resolver: Resolver{Radius: s.Radius, GreyZone: s.GreyZone},
		ctx:      context.Background(),
		grids:    make(map[GridCoord]*Grid),
		entities: ecs.NewStore[object.Entity](),
		active:   NewRoster(),
		roster:   NewRoster(),
		sessions: make(map[ecs.GUID]*Observer),
		mailbox:  event.NewMailbox[Message](s.MailboxSize),
		sched:    NewScheduler(),
		runner:   coresys.NewRunner(),
	}
	p.cmd = newCommands(p)

	p.runner.Register(coresys.Func{P: coresys.PhaseMailbox, Fn: p.drainMailbox})
	p.runner.Register(coresys.Func{P: coresys.PhaseSessionIO, Fn: p.pumpSessions})
	p.runner.Register(coresys.Func{P: coresys.PhaseObserverTick, Fn: p.tickObservers})
	p.runner.Register(coresys.Func{P: coresys.PhaseVisitReset, Fn: p.resetVisited})
	p.runner.Register(coresys.Func{P: coresys.PhaseVisit, Fn: p.visit})
	p.runner.Register(coresys.Func{P: coresys.PhaseFlush, Fn: p.flush})
	p.runner.Register(coresys.Func{P: coresys.PhaseHousekeeping, Fn: p.housekeepingPhase})
	p.runner.Register(coresys.Func{P: coresys.PhaseScheduled, Fn: p.scheduledPhase})
	p.runner.Register(coresys.Func{P: coresys.PhaseVariant, Fn: p.variantPhase})
	v.attach(p)
	return p
}

func (p *Partition) ID() PartitionID        { return p.id }
func (p *Partition) Kind() PartitionKind    { return p.variant.Kind() }
func (p *Partition) Variant() Variant       { return p.variant }
func (p *Partition) Settings() Settings     { return p.settings }
func (p *Partition) Log() *zap.Logger       { return p.log }
func (p *Partition) TickCount() uint64      { return p.tick }
func (p *Partition) Elapsed() time.Duration { return p.elapsed }
func (p *Partition) Stats() Stats           { return p.stats }
func (p *Partition) Closed() bool           { return p.closed }
func (p *Partition) EntityCount() int       { return p.entities.Len() }
func (p *Partition) ObserverCount() int     { return p.roster.Len() }
func (p *Partition) ActiveCount() int       { return p.active.Len() }
func (p *Partition) Commands() *Commands    { return p.cmd }

// OnEvict installs the callback that takes observers out of a grid being
// force-unloaded. Without one, evicted observers are logged out.
func (p *Partition) OnEvict(fn func(o *Observer)) { p.onEvict = fn }

// Post hands msg to the partition from any goroutine. It is applied at the
// start of the next tick.
func (p *Partition) Post(msg Message) error {
	if err := p.mailbox.Post(msg); err != nil {
		return fmt.Errorf("partition %s: %w", p.id, err)
	}
	return nil
}

// Tick runs one fixed-order simulation step.
func (p *Partition) Tick(ctx context.Context, dt time.Duration) (err error) {
	if p.closed {
		return ErrPartitionClosed
	}
	ctx, span := p.rt.tracer().Start(ctx, "partition.tick", trace.WithAttributes(
		attribute.Int64("map", int64(p.id.Map)),
		attribute.Int64("instance", int64(p.id.Instance)),
		attribute.String("kind", p.variant.Kind().String()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("entities", p.entities.Len()),
			attribute.Int("observers", p.roster.Len()),
			attribute.Int("cells_visited", p.stats.CellsVisited),
			attribute.Int("packets_sent", p.stats.PacketsSent),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	p.ctx = ctx
	p.tick++
	p.elapsed += dt
	p.stats = Stats{}
	p.inTick = true
	p.runner.Tick(dt)
	p.inTick = false
	p.ctx = context.Background()
	return nil
}

// --- lookups ---

// Get returns a resident entity. Entities on the removal list are still
// resident until the end-of-tick flush.
func (p *Partition) Get(id ecs.GUID) (*object.Entity, bool) {
	return p.entities.Get(id)
}

// Observer returns the observer bound to a player body.
func (p *Partition) Observer(id ecs.GUID) (*Observer, bool) {
	o, ok := p.sessions[id]
	return o, ok
}

// EachObserver visits the observers present at the call, in join order.
// It walks a copy, so it may be called from any phase and fn may remove
// observers.
func (p *Partition) EachObserver(fn func(o *Observer)) {
	for _, e := range p.roster.Slice() {
		if o, ok := p.sessions[e.GUID]; ok {
			fn(o)
		}
	}
}

func (p *Partition) resident(e *object.Entity) bool {
	cur, ok := p.entities.Get(e.GUID)
	return ok && cur == e && !e.Removed()
}

// --- entity lifecycle ---

// Add makes e resident. This is the mandatory enter path: the destination
// grid is loaded synchronously when it is not active yet.
func (p *Partition) Add(e *object.Entity) error {
	if p.closed {
		return ErrPartitionClosed
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("add %s: invalid kind %d", e.GUID, e.Kind)
	}
	if err := ValidatePosition(e.Pos, p.settings.Bounds); err != nil {
		p.log.Warn("拒絕非法座標", zap.Stringer("guid", e.GUID),
			zap.Float32("x", e.Pos.X), zap.Float32("y", e.Pos.Y))
		return fmt.Errorf("add %s: %w", e.GUID, err)
	}
	if _, ok := p.entities.Get(e.GUID); ok {
		return fmt.Errorf("add %s: already resident", e.GUID)
	}
	if _, err := p.EnsureLoaded(GridOf(e.Pos.X, e.Pos.Y)); err != nil {
		return fmt.Errorf("add %s: %w", e.GUID, err)
	}
	p.insert(e)
	return nil
}

// insert links e into the arena and its cell. The grid must be active.
func (p *Partition) insert(e *object.Entity) {
	e.ClearRemoved()
	e.Cell = CellOf(e.Pos.X, e.Pos.Y)
	g := p.grids[GridOfCell(e.Cell)]
	if g == nil || g.state != GridActive {
		invariant("insert %s into grid %v that is not active", e.GUID, GridOfCell(e.Cell))
	}
	p.entities.Set(e.GUID, e)
	g.insert(e)
	g.expiry = p.settings.GridExpiry

	e.Life.SpawnedAtTick = p.currentTick()
	e.OnFieldChange(func() { p.markPending(e) })
	if !e.Fields.Dirty().IsZero() {
		p.markPending(e)
	}
	if e.Active {
		e.Active = false
		p.setActive(e, true)
	}
	p.rt.hooks().OnEntityEnterPartition(p.cmd, e)
}

// currentTick is the tick whose flush will first carry changes made now.
func (p *Partition) currentTick() uint64 {
	if p.inTick {
		return p.tick
	}
	return p.tick + 1
}

func (p *Partition) markPending(e *object.Entity) {
	if e.PendingReplication() {
		return
	}
	e.SetPendingReplication(true)
	p.pending = append(p.pending, e)
}

// Spawn builds a non-observer entity from rec and makes it resident.
func (p *Partition) Spawn(rec SpawnRecord) (*object.Entity, error) {
	e, err := p.build(rec)
	if err != nil {
		return nil, err
	}
	if err := p.Add(e); err != nil {
		p.rt.Alloc.Release(e.GUID)
		return nil, err
	}
	return e, nil
}

func (p *Partition) build(rec SpawnRecord) (*object.Entity, error) {
	if rec.Kind == object.KindPlayer || !rec.Kind.Valid() {
		return nil, fmt.Errorf("spawn %d: kind %s cannot be spawned from a record", rec.ID, rec.Kind)
	}
	if err := ValidatePosition(rec.Pos, p.settings.Bounds); err != nil {
		return nil, fmt.Errorf("spawn %d: %w", rec.ID, err)
	}
	e := object.New(p.rt.Alloc.Create(), rec.Kind, rec.Pos)
	f := e.Fields
	f.SetInt(object.ObjectEntry, rec.Entry)
	switch rec.Kind {
	case object.KindCreature:
		f.SetInt(object.UnitDisplayID, rec.DisplayID)
		f.SetInt(object.UnitLevel, rec.Level)
		f.SetInt(object.UnitHealth, rec.Health)
		f.SetInt(object.UnitMaxHealth, rec.Health)
		f.SetInt(object.UnitFaction, rec.Faction)
		f.SetFlags(object.UnitNpcFlags, rec.NpcFlags)
		f.SetFloat(object.UnitSpeed, 2.5)
		e.Motion.Speed = 2.5
		e.Relations.Team = rec.Team
		e.Relations.TrainerClass = rec.TrainerClass
	case object.KindGameObject:
		f.SetInt(object.GameObjectDisplayID, rec.DisplayID)
		f.SetInt(object.GameObjectFaction, rec.Faction)
		e.Relations.QuestEntry = rec.QuestEntry
	case object.KindCorpse:
		f.SetInt(object.CorpseDisplayID, rec.DisplayID)
		e.Life.DecayLeft = p.settings.CorpseDecay
	}
	e.SpawnID = rec.ID
	e.Life.RespawnDelay = rec.RespawnDelay
	e.Active = rec.Active
	f.ClearDirty()
	return e, nil
}

// Relocate moves e to pos. Invalid positions are rejected and logged and e
// keeps its last valid position. Crossing into a grid that is not active
// loads it before the move completes.
func (p *Partition) Relocate(e *object.Entity, pos object.Position) error {
	if !p.resident(e) {
		return ErrNotResident
	}
	if err := ValidatePosition(pos, p.settings.Bounds); err != nil {
		p.log.Warn("拒絕非法座標", zap.Stringer("guid", e.GUID),
			zap.Float32("x", pos.X), zap.Float32("y", pos.Y))
		return fmt.Errorf("relocate %s: %w", e.GUID, err)
	}
	cell := CellOf(pos.X, pos.Y)
	if cell == e.Cell {
		e.SetPosition(pos)
		return nil
	}
	from := p.grids[GridOfCell(e.Cell)]
	to := from
	if gc := GridOfCell(cell); gc != from.Coord {
		if _, err := p.EnsureLoaded(gc); err != nil {
			return fmt.Errorf("relocate %s: %w", e.GUID, err)
		}
		to = p.grids[gc]
	}
	from.erase(e)
	e.SetPosition(pos)
	e.Cell = cell
	to.insert(e)
	to.expiry = p.settings.GridExpiry
	if e.Active && to != from {
		from.locks--
		to.locks++
	}
	return nil
}

// SetActive adds e to or removes it from the active-entity set. Active
// entities lock their home grid.
func (p *Partition) SetActive(e *object.Entity, active bool) {
	if !p.resident(e) {
		return
	}
	p.setActive(e, active)
}

func (p *Partition) setActive(e *object.Entity, active bool) {
	if e.Active == active {
		return
	}
	g := p.grids[GridOfCell(e.Cell)]
	if active {
		p.active.Add(e)
		g.locks++
	} else {
		p.active.Remove(e.GUID)
		g.locks--
	}
	e.Active = active
}

// Remove places e on the removal list. It stays resident, and every
// reference to it stays valid, until the flush phase of this tick.
// Removing an entity twice is a lifecycle bug.
func (p *Partition) Remove(e *object.Entity) {
	p.remove(removal{e: e, release: true})
}

// Despawn removes a resident entity by GUID. It reports false when id is
// not resident.
func (p *Partition) Despawn(id ecs.GUID, anim bool) bool {
	e, ok := p.entities.Get(id)
	if !ok || e.Removed() {
		return false
	}
	p.remove(removal{e: e, anim: anim, release: true})
	return true
}

func (p *Partition) remove(r removal) {
	if r.e.Removed() || !p.entities.Has(r.e.GUID) {
		debugAssert("double removal of %s", r.e.GUID)
		return
	}
	r.e.MarkRemoved()
	p.removals = append(p.removals, r)
}

// flushRemovals physically detaches everything on the removal list. Leave
// hooks may remove further entities; those are detached in the same pass.
func (p *Partition) flushRemovals() {
	for i := 0; i < len(p.removals); i++ {
		p.detach(p.removals[i])
	}
	p.removals = p.removals[:0]
}

func (p *Partition) detach(r removal) {
	e := r.e
	for _, vid := range e.Viewers() {
		if o, ok := p.sessions[vid]; ok {
			p.unlink(o, e, r.anim)
		} else {
			e.RemoveViewer(vid)
		}
	}
	o, isObserver := p.sessions[e.GUID]
	if isObserver {
		for _, id := range o.known.ids {
			if k, ok := p.entities.Get(id); ok {
				k.RemoveViewer(e.GUID)
			}
		}
		o.known = bucket{}
		p.roster.Remove(e.GUID)
		delete(p.sessions, e.GUID)
		p.variant.observerLeft(o)
	}
	p.setActive(e, false)
	g := p.grids[GridOfCell(e.Cell)]
	if g == nil || !g.erase(e) {
		invariant("detach %s: not found in its cell", e.GUID)
	}
	p.entities.Remove(e.GUID)
	e.OnFieldChange(nil)
	e.SetPendingReplication(false)
	p.rt.hooks().OnEntityLeavePartition(p.cmd, e)

	switch {
	case r.dest != nil:
		p.handOff(e, o, *r.dest, r.arrive)
	case r.release:
		p.rt.Alloc.Release(e.GUID)
	}
}

// Kill marks a living entity dead. recipient, when set, becomes the loot
// owner; group extends the right to loot to recipient's group.
func (p *Partition) Kill(e *object.Entity, recipient ecs.GUID, group uint32) {
	if !e.Kind.IsUnit() || e.Life.Dead {
		return
	}
	e.Life.Dead = true
	e.Fields.SetInt(object.UnitHealth, 0)
	e.Fields.AddFlag(object.UnitDynamicFlags, object.DynDead)
	e.Fields.SetGUID(object.UnitTarget, 0)
	e.Motion.Moving = false
	e.Relations.LootRecipient = recipient
	e.Relations.LootGroup = group
	if e.Kind == object.KindCreature {
		e.Life.DecayLeft = p.settings.CorpseDecay
	}
}

// Schedule runs fn on this partition after d of partition time.
func (p *Partition) Schedule(d time.Duration, fn func()) TimerID { return p.sched.After(d, fn) }

// Cancel removes a scheduled action before it fires.
func (p *Partition) Cancel(id TimerID) bool { return p.sched.Cancel(id) }

// Event raises a partition event: the variant sees it first, then the hooks.
func (p *Partition) Event(id int32) {
	p.variant.onEvent(id)
	p.rt.hooks().OnPartitionEvent(p.cmd, id)
}

func (p *Partition) applyIntent(in intent) {
	switch in.kind {
	case intentSpawn:
		if _, err := p.Spawn(in.rec); err != nil {
			p.log.Warn("腳本生成失敗", zap.Uint64("spawn", in.rec.ID), zap.Error(err))
		}
	case intentDespawn:
		p.Despawn(in.target, in.flag)
	case intentRelocate:
		if e, ok := p.entities.Get(in.target); ok {
			_ = p.Relocate(e, in.pos)
		}
	case intentEvent:
		p.Event(in.event)
	case intentSetActive:
		if e, ok := p.entities.Get(in.target); ok {
			p.SetActive(e, in.flag)
		}
	}
}

// Close tears the partition down: every observer is evicted, every grid is
// force-unloaded and the partition rejects further ticks.
func (p *Partition) Close() {
	if p.closed {
		return
	}
	// Closed first so that nothing evacuated can be re-added.
	p.closed = true
	for c := range p.grids {
		p.Unload(c, true)
	}
	p.log.Info("分區已關閉")
}
