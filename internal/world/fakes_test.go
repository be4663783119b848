package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/replication"
)

const testDT = 100 * time.Millisecond

// gridCenter is the middle of grid (32,32), whose low corner is the origin.
var gridCenter = object.Position{X: 266, Y: 266}

type memStore struct {
	mu          sync.Mutex
	spawns      map[TileCoord][]SpawnRecord
	fail        map[GridCoord]bool
	staticLoads map[GridCoord]int
	dynLoads    map[GridCoord]int
	releases    map[GridCoord]int
}

func newMemStore() *memStore {
	return &memStore{
		spawns:      make(map[TileCoord][]SpawnRecord),
		fail:        make(map[GridCoord]bool),
		staticLoads: make(map[GridCoord]int),
		dynLoads:    make(map[GridCoord]int),
		releases:    make(map[GridCoord]int),
	}
}

func (s *memStore) add(mapID uint32, rec SpawnRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc := TileCoord{Map: mapID, Grid: GridOf(rec.Pos.X, rec.Pos.Y)}
	s.spawns[tc] = append(s.spawns[tc], rec)
}

func (s *memStore) LoadStaticTileData(_ context.Context, _ uint32, g GridCoord) (*Terrain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticLoads[g]++
	return &Terrain{}, nil
}

func (s *memStore) ReleaseStaticTileData(_ uint32, g GridCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[g]++
}

func (s *memStore) LoadDynamicEntities(_ context.Context, tc TileCoord) ([]SpawnRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynLoads[tc.Grid]++
	if s.fail[tc.Grid] {
		return nil, errors.New("connection reset")
	}
	return append([]SpawnRecord(nil), s.spawns[tc]...), nil
}

func (s *memStore) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.dynLoads {
		n += v
	}
	return n
}

// fakeSession decodes every accepted packet into a client-side mirror.
type fakeSession struct {
	id      uint64
	fail    bool
	closed  bool
	inbox   [][]byte
	packets int
	mirror  *replication.Mirror
	errs    []error
}

func newFakeSession(id uint64) *fakeSession {
	return &fakeSession{id: id, mirror: replication.NewMirror()}
}

func (s *fakeSession) ID() uint64 { return s.id }

func (s *fakeSession) Send(data []byte) error {
	if s.fail {
		return errors.New("send buffer full")
	}
	s.packets++
	if err := s.mirror.Apply(data); err != nil {
		s.errs = append(s.errs, err)
	}
	return nil
}

func (s *fakeSession) Receive(max int) [][]byte {
	n := len(s.inbox)
	if n > max {
		n = max
	}
	out := s.inbox[:n]
	s.inbox = s.inbox[n:]
	return out
}

func (s *fakeSession) Closed() bool { return s.closed }

func (s *fakeSession) sees(id ecs.GUID) bool {
	_, ok := s.mirror.Objects[uint64(id)]
	return ok
}

func (s *fakeSession) destroyed(id ecs.GUID) bool {
	for _, d := range s.mirror.Destroyed {
		if d == uint64(id) {
			return true
		}
	}
	return false
}

func (s *fakeSession) animated(id ecs.GUID) bool {
	for _, d := range s.mirror.Animated {
		if d == uint64(id) {
			return true
		}
	}
	return false
}

func testSettings() Settings {
	return Settings{Radius: 100, GreyZone: 20, GridExpiry: time.Minute}
}

func newTestPartition(t *testing.T, store *memStore, s Settings, v Variant) *Partition {
	t.Helper()
	rt := &Runtime{Alloc: ecs.NewAllocator(), Store: store}
	return NewPartition(rt, PartitionID{Map: 1}, s, v, zaptest.NewLogger(t))
}

func tick(t *testing.T, p *Partition) {
	t.Helper()
	if err := p.Tick(context.Background(), testDT); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

func addObserver(t *testing.T, p *Partition, pos object.Position, sid uint64) (*Observer, *fakeSession) {
	t.Helper()
	body := object.New(p.rt.Alloc.Create(), object.KindPlayer, pos)
	body.Team = 1
	body.Fields.SetInt(object.UnitHealth, 100)
	body.Fields.SetInt(object.UnitMaxHealth, 100)
	sess := newFakeSession(sid)
	o, err := p.AddObserver(body, sess, p.ID(), pos)
	if err != nil {
		t.Fatalf("add observer: %v", err)
	}
	return o, sess
}

func spawnCreature(t *testing.T, p *Partition, pos object.Position) *object.Entity {
	t.Helper()
	e, err := p.Spawn(SpawnRecord{Kind: object.KindCreature, Entry: 100, Pos: pos, Health: 50, Level: 3})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	return e
}

type recordingHooks struct {
	NopHooks
	enters, leaves, ticks int
	events                []int32
	onTick                func(cmd *Commands, e *object.Entity)
}

func (h *recordingHooks) OnEntityEnterPartition(*Commands, *object.Entity) { h.enters++ }
func (h *recordingHooks) OnEntityLeavePartition(*Commands, *object.Entity) { h.leaves++ }
func (h *recordingHooks) OnPartitionEvent(_ *Commands, id int32)           { h.events = append(h.events, id) }
func (h *recordingHooks) OnTick(cmd *Commands, e *object.Entity, _ int64) {
	h.ticks++
	if h.onTick != nil {
		h.onTick(cmd, e)
	}
}
