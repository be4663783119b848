package world

import (
	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/core/event"
	"github.com/l1jgo/worldcore/internal/object"
)

type intentKind uint8

const (
	intentSpawn intentKind = iota
	intentDespawn
	intentRelocate
	intentEvent
	intentSetActive
)

type intent struct {
	kind   intentKind
	target ecs.GUID
	rec    SpawnRecord
	pos    object.Position
	event  int32
	flag   bool
}

// maxCommandRounds bounds how many times hook-emitted intents may cascade
// inside one phase boundary.
const maxCommandRounds = 8

// Commands collects intents from hook callbacks. Intents are applied by the
// partition at phase boundaries, never while a roster is being walked.
type Commands struct {
	p     *Partition
	queue *event.Queue[intent]
}

func newCommands(p *Partition) *Commands {
	return &Commands{p: p, queue: event.NewQueue[intent]()}
}

func (c *Commands) MapID() uint32          { return c.p.id.Map }
func (c *Commands) Partition() PartitionID { return c.p.id }
func (c *Commands) Tick() uint64           { return c.p.tick }

// Lookup resolves a GUID to a resident entity. Callbacks may read and mutate
// the entity's fields directly; structural changes go through intents.
func (c *Commands) Lookup(id ecs.GUID) (*object.Entity, bool) {
	return c.p.Get(id)
}

// Spawn queues a new entity built from rec.
func (c *Commands) Spawn(rec SpawnRecord) {
	c.queue.Emit(intent{kind: intentSpawn, rec: rec})
}

// Despawn queues removal of id, with or without the despawn animation.
func (c *Commands) Despawn(id ecs.GUID, anim bool) {
	c.queue.Emit(intent{kind: intentDespawn, target: id, flag: anim})
}

// Relocate queues a move of id to pos.
func (c *Commands) Relocate(id ecs.GUID, pos object.Position) {
	c.queue.Emit(intent{kind: intentRelocate, target: id, pos: pos})
}

// Event queues a partition event, delivered through OnPartitionEvent.
func (c *Commands) Event(id int32) {
	c.queue.Emit(intent{kind: intentEvent, event: id})
}

// SetActive queues a change of id's active-set membership.
func (c *Commands) SetActive(id ecs.GUID, active bool) {
	c.queue.Emit(intent{kind: intentSetActive, target: id, flag: active})
}

// Pending reports whether intents are waiting for the next boundary.
func (c *Commands) Pending() bool { return c.queue.Pending() }

// apply runs every queued intent, including those emitted while applying.
func (c *Commands) apply() int {
	return c.queue.DispatchAll(maxCommandRounds, c.p.applyIntent)
}
