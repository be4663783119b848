package world

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// TerrainSamples is the number of height samples per grid axis.
const TerrainSamples = 17

// Terrain is the static height field of one grid.
type Terrain struct {
	Heights []float32 // TerrainSamples*TerrainSamples, row-major, low Y first
}

// HeightAt returns the nearest sample under (x, y), which must lie in grid g.
func (t *Terrain) HeightAt(g GridCoord, x, y float32) float32 {
	if t == nil || len(t.Heights) != TerrainSamples*TerrainSamples {
		return 0
	}
	ox, oy := g.Origin()
	step := GridSize / (TerrainSamples - 1)
	ix := clampSample(int((x - ox) / step))
	iy := clampSample(int((y - oy) / step))
	return t.Heights[iy*TerrainSamples+ix]
}

func clampSample(i int) int {
	if i < 0 {
		return 0
	}
	if i >= TerrainSamples {
		return TerrainSamples - 1
	}
	return i
}

// SpawnRecord is a persistent placement of a non-observer entity.
type SpawnRecord struct {
	ID           uint64
	Kind         object.Kind
	Entry        uint32
	Pos          object.Position
	DisplayID    uint32
	Level        uint32
	Health       uint32
	Faction      uint32
	NpcFlags     uint32
	Team         uint32
	TrainerClass uint32
	QuestEntry   uint32
	RespawnDelay time.Duration
	Active       bool // simulate even when unobserved
}

// Store is the persistent-store collaborator. Loads run synchronously on the
// partition goroutine that first touches the grid.
type Store interface {
	// LoadStaticTileData returns the terrain of one grid. Repeated loads of
	// the same grid share one copy until every holder has released it.
	LoadStaticTileData(ctx context.Context, mapID uint32, g GridCoord) (*Terrain, error)
	ReleaseStaticTileData(mapID uint32, g GridCoord)
	// LoadDynamicEntities returns the spawn records of one grid.
	LoadDynamicEntities(ctx context.Context, tc TileCoord) ([]SpawnRecord, error)
}

// Session is the transport side of an observer.
type Session interface {
	ID() uint64
	// Send queues one packet. It does not block; an error means the
	// packet was not accepted and must be resent later.
	Send(data []byte) error
	// Receive returns up to max inbound packets without blocking.
	Receive(max int) [][]byte
	Closed() bool
}

// InputHandler dispatches one inbound observer packet. It runs on the
// partition goroutine during I/O pumping.
type InputHandler interface {
	HandlePacket(p *Partition, o *Observer, data []byte)
}

// Hooks are the scripting/gameplay callbacks. They are invoked on the owning
// partition goroutine and must not retain cmd after returning.
type Hooks interface {
	OnEntityEnterPartition(cmd *Commands, e *object.Entity)
	OnEntityLeavePartition(cmd *Commands, e *object.Entity)
	OnTick(cmd *Commands, e *object.Entity, deltaMs int64)
	OnPartitionEvent(cmd *Commands, eventID int32)
}

// NopHooks implements Hooks with no behaviour.
type NopHooks struct{}

func (NopHooks) OnEntityEnterPartition(*Commands, *object.Entity) {}
func (NopHooks) OnEntityLeavePartition(*Commands, *object.Entity) {}
func (NopHooks) OnTick(*Commands, *object.Entity, int64)          {}
func (NopHooks) OnPartitionEvent(*Commands, int32)                {}

// Runtime is the process-wide context threaded through every partition: the
// GUID allocator and the collaborators. There is no package-level state.
type Runtime struct {
	Alloc  *ecs.Allocator
	Store  Store
	Hooks  Hooks
	Input  InputHandler
	Router Router
	Tracer trace.Tracer
}

// Router delivers a message to another partition's mailbox.
type Router interface {
	Route(dest PartitionID, msg Message) error
}

func (rt *Runtime) hooks() Hooks {
	if rt.Hooks == nil {
		return NopHooks{}
	}
	return rt.Hooks
}

func (rt *Runtime) tracer() trace.Tracer {
	if rt.Tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return rt.Tracer
}
