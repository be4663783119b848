package object

import (
	"time"

	"github.com/l1jgo/worldcore/internal/core/ecs"
)

// ViewState is the replication state of one (entity, observer) pair. Its
// presence in Entity.viewers is the entity side of the has-created relation.
type ViewState struct {
	// Pending holds fields changed since the last successful flush to this observer.
	Pending Mask
	// Projected holds the last value sent per conditional slot.
	Projected []uint64
	// Created is false while the CREATE block is still queued.
	Created bool
}

// Relations are server-side facts the conditional projections read. They are
// never replicated verbatim; all references are GUIDs resolved at use time.
type Relations struct {
	LootRecipient ecs.GUID
	LootGroup     uint32
	HasLoot       bool
	TrainerClass  uint32
	QuestEntry    uint32 // game objects: activatable only for observers on this quest
	Team          uint32
}

// Life tracks death, decay and respawn timers.
type Life struct {
	Dead          bool
	DecayLeft     time.Duration
	RespawnDelay  time.Duration
	SpawnedAtTick uint64
}

// Entity is the authoritative state of one world object. It is owned by
// exactly one partition at a time and mutated only by that partition's tick.
type Entity struct {
	GUID   ecs.GUID
	Kind   Kind
	Fields *FieldTable

	Pos    Position
	Spawn  Position
	Motion Motion
	Cell   CellPair
	Active bool

	// SpawnID names the persistent spawn record the entity came from, 0 for
	// summoned or logged-in entities.
	SpawnID uint64
	// LastUpdate is the partition tick of the last entity-update visit.
	LastUpdate uint64

	Relations Relations
	Life      Life

	// Observer-side data for player entities bound to a session.
	Team       uint32
	Class      uint32
	Group      uint32
	QuestLog   map[uint32]struct{}
	ViewRadius float32

	viewers map[ecs.GUID]*ViewState

	pendingReplication bool
	removed            bool
}

// New allocates an entity with the fixed schema of kind k.
func New(id ecs.GUID, k Kind, pos Position) *Entity {
	e := &Entity{
		GUID:    id,
		Kind:    k,
		Fields:  NewFieldTable(SchemaOf(k)),
		Pos:     pos,
		Spawn:   pos,
		viewers: make(map[ecs.GUID]*ViewState),
	}
	e.Fields.SetFloat(ObjectScale, 1)
	e.syncPosition()
	e.Fields.ClearDirty()
	return e
}

// OnFieldChange installs the callback fired on the first field change after
// each replication pass.
func (e *Entity) OnFieldChange(fn func()) { e.Fields.onChange = fn }

// Capabilities derives the CREATE header shape from current state.
func (e *Entity) Capabilities() Capability {
	var c Capability
	switch e.Kind {
	case KindPlayer, KindCreature:
		c |= CapLiving
		if !e.Fields.GUID(UnitTarget).IsZero() {
			c |= CapTarget
		}
	case KindGameObject, KindCorpse:
		c |= CapPosition
	}
	return c
}

// SetPosition stores p and mirrors it into the replicated position fields.
func (e *Entity) SetPosition(p Position) {
	e.Pos = p
	e.syncPosition()
}

func (e *Entity) syncPosition() {
	e.Fields.SetFloat(ObjectPosX, e.Pos.X)
	e.Fields.SetFloat(ObjectPosY, e.Pos.Y)
	e.Fields.SetFloat(ObjectPosZ, e.Pos.Z)
	e.Fields.SetFloat(ObjectFacing, e.Pos.O)
}

// IsObserver reports whether e is a player body; sessions attach to these.
func (e *Entity) IsObserver() bool { return e.Kind == KindPlayer }

// IsGhost reports whether a player entity is dead.
func (e *Entity) IsGhost() bool {
	return e.Kind == KindPlayer && e.Fields.HasFlag(PlayerFlags, PlayerGhost)
}

// OwnedBy reports whether observer o may see e's owner-only fields.
func (e *Entity) OwnedBy(o ecs.GUID) bool {
	if e.GUID == o {
		return true
	}
	switch e.Kind {
	case KindPlayer, KindCreature:
		return e.Fields.GUID(UnitOwner) == o
	case KindCorpse:
		return e.Fields.GUID(CorpseOwner) == o
	}
	return false
}

// HasQuest reports whether a player entity carries quest entry q.
func (e *Entity) HasQuest(q uint32) bool {
	_, ok := e.QuestLog[q]
	return ok
}

// --- has-created relation, entity side ---

// AddViewer records that observer o holds a client copy of e.
func (e *Entity) AddViewer(o ecs.GUID) *ViewState {
	if vs, ok := e.viewers[o]; ok {
		return vs
	}
	vs := &ViewState{
		Pending:   NewMask(e.Fields.Len()),
		Projected: make([]uint64, len(e.Fields.schema.Conditional)),
	}
	e.viewers[o] = vs
	return vs
}

func (e *Entity) RemoveViewer(o ecs.GUID) bool {
	if _, ok := e.viewers[o]; !ok {
		return false
	}
	delete(e.viewers, o)
	return true
}

func (e *Entity) Viewer(o ecs.GUID) (*ViewState, bool) {
	vs, ok := e.viewers[o]
	return vs, ok
}

func (e *Entity) HasViewer(o ecs.GUID) bool {
	_, ok := e.viewers[o]
	return ok
}

func (e *Entity) ViewerCount() int { return len(e.viewers) }

// Viewers returns a copy of the observer set so callers may unlink while iterating.
func (e *Entity) Viewers() []ecs.GUID {
	out := make([]ecs.GUID, 0, len(e.viewers))
	for g := range e.viewers {
		out = append(out, g)
	}
	return out
}

// EachViewer visits the observer set. fn must not add or remove viewers.
func (e *Entity) EachViewer(fn func(ecs.GUID, *ViewState)) {
	for g, vs := range e.viewers {
		fn(g, vs)
	}
}

// --- partition bookkeeping flags ---

func (e *Entity) PendingReplication() bool     { return e.pendingReplication }
func (e *Entity) SetPendingReplication(v bool) { e.pendingReplication = v }
func (e *Entity) Removed() bool                { return e.removed }
func (e *Entity) MarkRemoved()                 { e.removed = true }
func (e *Entity) ClearRemoved()                { e.removed = false }
