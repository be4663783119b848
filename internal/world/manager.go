package world

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// MapSpec describes how partitions of one map are built.
type MapSpec struct {
	ID       uint32
	Name     string
	Kind     PartitionKind
	Settings Settings
	Instance InstanceConfig
	Match    MatchConfig
}

// Manager owns every partition of the process. Partitions tick concurrently,
// one goroutine each per tick; the manager itself is only touched by the
// ticker goroutine, except Route and Partition which are safe for concurrent use.
type Manager struct {
	rt  *Runtime
	log *zap.Logger

	mu         sync.RWMutex
	maps       map[uint32]MapSpec
	partitions map[PartitionID]*Partition
	nextInst   uint32
}

func NewManager(rt *Runtime, specs []MapSpec, log *zap.Logger) *Manager {
	m := &Manager{
		rt:         rt,
		log:        log,
		maps:       make(map[uint32]MapSpec, len(specs)),
		partitions: make(map[PartitionID]*Partition),
	}
	for _, s := range specs {
		m.maps[s.ID] = s
	}
	if rt.Router == nil {
		rt.Router = m
	}
	return m
}

// Start creates the open-world partition of every open-world map.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, spec := range m.maps {
		if spec.Kind != KindOpenWorld {
			continue
		}
		m.createLocked(PartitionID{Map: id}, spec)
	}
	m.log.Info("世界分區已建立", zap.Int("partitions", len(m.partitions)))
}

func (m *Manager) createLocked(id PartitionID, spec MapSpec) *Partition {
	var v Variant
	switch spec.Kind {
	case KindInstance:
		v = NewInstance(spec.Instance)
	case KindMatch:
		v = NewMatch(spec.Match)
	default:
		v = NewOpenWorld()
	}
	p := NewPartition(m.rt, id, spec.Settings, v, m.log)
	p.OnEvict(func(o *Observer) {
		if o.Home == p.ID() {
			return
		}
		if err := p.Transfer(o.Body, o.Home, o.HomePos); err != nil {
			p.Log().Warn("無法送回玩家", zap.Stringer("guid", o.Body.GUID), zap.Error(err))
		}
	})
	m.partitions[id] = p
	return p
}

// CreateInstance starts a new instance or match partition of mapID.
func (m *Manager) CreateInstance(mapID uint32) (*Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	spec, ok := m.maps[mapID]
	if !ok {
		return nil, fmt.Errorf("map %d: unknown", mapID)
	}
	if spec.Kind == KindOpenWorld {
		return nil, fmt.Errorf("map %d: open world maps have no instances", mapID)
	}
	m.nextInst++
	p := m.createLocked(PartitionID{Map: mapID, Instance: m.nextInst}, spec)
	m.log.Info("建立副本分區", zap.Stringer("partition", p.ID()), zap.Stringer("kind", spec.Kind))
	return p, nil
}

// Partition returns a live partition.
func (m *Manager) Partition(id PartitionID) (*Partition, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partitions[id]
	return p, ok
}

// Map returns the settings of a map.
func (m *Manager) Map(id uint32) (MapSpec, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.maps[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.partitions)
}

// Route posts msg to the mailbox of dest.
func (m *Manager) Route(dest PartitionID, msg Message) error {
	p, ok := m.Partition(dest)
	if !ok {
		return fmt.Errorf("partition %s: %w", dest, ErrPartitionClosed)
	}
	return p.Post(msg)
}

// Transfer asks partition src to move entity id to dest. It may be called
// from any goroutine; the move happens on src during its next tick.
func (m *Manager) Transfer(src PartitionID, id ecs.GUID, dest PartitionID, arrive object.Position) error {
	return m.Route(src, FuncMessage(func(p *Partition) {
		e, ok := p.Get(id)
		if !ok {
			p.Log().Warn("轉移對象不在分區內", zap.Stringer("guid", id), zap.Stringer("dest", dest))
			return
		}
		if err := p.Transfer(e, dest, arrive); err != nil {
			p.Log().Warn("轉移失敗", zap.Stringer("guid", id), zap.Error(err))
		}
	}))
}

// Tick advances every partition by dt, each on its own goroutine, then
// closes the partitions whose variant has finished.
func (m *Manager) Tick(ctx context.Context, dt time.Duration) error {
	m.mu.RLock()
	parts := make([]*Partition, 0, len(m.partitions))
	for _, p := range m.partitions {
		parts = append(parts, p)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		p := p
		g.Go(func() error {
			return p.Tick(gctx, dt)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Close outside the lock: closing hands observers to other partitions
	// through Route.
	var done []*Partition
	m.mu.Lock()
	for id, p := range m.partitions {
		if p.Variant().Done() {
			done = append(done, p)
			delete(m.partitions, id)
		}
	}
	m.mu.Unlock()
	for _, p := range done {
		p.Close()
		m.log.Info("分區已回收", zap.Stringer("partition", p.ID()))
	}
	return nil
}

// Shutdown closes every partition.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	parts := m.partitions
	m.partitions = make(map[PartitionID]*Partition)
	m.mu.Unlock()
	for _, p := range parts {
		p.Close()
	}
}
