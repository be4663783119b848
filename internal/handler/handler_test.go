package handler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/world"
)

type emptyStore struct{}

func (emptyStore) LoadStaticTileData(context.Context, uint32, world.GridCoord) (*world.Terrain, error) {
	return &world.Terrain{}, nil
}
func (emptyStore) ReleaseStaticTileData(uint32, world.GridCoord) {}
func (emptyStore) LoadDynamicEntities(context.Context, world.TileCoord) ([]world.SpawnRecord, error) {
	return nil, nil
}

type fakeConn struct {
	id     uint64
	inbox  [][]byte
	sent   [][]byte
	state  packet.SessionState
	closed bool
}

func (c *fakeConn) ID() uint64 { return c.id }
func (c *fakeConn) Send(data []byte) error {
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}
func (c *fakeConn) Receive(max int) [][]byte {
	n := min(len(c.inbox), max)
	out := c.inbox[:n]
	c.inbox = c.inbox[n:]
	return out
}
func (c *fakeConn) Closed() bool                    { return c.closed }
func (c *fakeConn) Close()                          { c.closed = true }
func (c *fakeConn) State() packet.SessionState      { return c.state }
func (c *fakeConn) SetState(st packet.SessionState) { c.state = st }

// lastSent returns the most recent packet with the given opcode.
func (c *fakeConn) lastSent(op byte) []byte {
	for i := len(c.sent) - 1; i >= 0; i-- {
		if len(c.sent[i]) > 0 && c.sent[i][0] == op {
			return c.sent[i]
		}
	}
	return nil
}

type testWorld struct {
	m  *world.Manager
	gw *Gateway
	rt *world.Runtime
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()
	log := zaptest.NewLogger(t)
	deps := &Deps{Log: log}
	rt := &world.Runtime{Alloc: ecs.NewAllocator(), Store: emptyStore{}, Input: NewInput(deps)}
	s := world.Settings{Radius: 100, GreyZone: 20, GridExpiry: time.Minute}
	m := world.NewManager(rt, []world.MapSpec{
		{ID: 1, Name: "說話之島", Kind: world.KindOpenWorld, Settings: s},
		{ID: 2, Name: "副本", Kind: world.KindInstance, Settings: s},
	}, log)
	deps.Manager = m
	m.Start()
	t.Cleanup(m.Shutdown)
	return &testWorld{m: m, gw: NewGateway(deps, rt.Alloc, time.Second), rt: rt}
}

func (w *testWorld) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := w.m.Tick(context.Background(), 100*time.Millisecond); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
}

func (w *testWorld) partition(t *testing.T, id world.PartitionID) *world.Partition {
	t.Helper()
	p, ok := w.m.Partition(id)
	if !ok {
		t.Fatalf("partition %s missing", id)
	}
	return p
}

func enterPacket(mapID uint32, x, y float32, team uint32) []byte {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_ENTER)
	w.WriteDU(mapID)
	w.WriteF(x)
	w.WriteF(y)
	w.WriteF(0)
	w.WriteDU(team)
	return w.Bytes()
}

func posPacket(op byte, vals ...float32) []byte {
	w := packet.NewWriterWithOpcode(op)
	for _, v := range vals {
		w.WriteF(v)
	}
	return w.Bytes()
}

// enter connects a session at (x, y) on map 1 and returns its observer.
func (w *testWorld) enter(t *testing.T, x, y float32) (*fakeConn, *world.Observer) {
	t.Helper()
	c := &fakeConn{id: 1, inbox: [][]byte{enterPacket(1, x, y, 1)}}
	now := time.Now()
	w.gw.Accept(c, now)
	w.gw.Poll(now)
	if w.gw.Pending() != 0 || c.closed {
		t.Fatalf("enter not processed: pending=%d closed=%v", w.gw.Pending(), c.closed)
	}
	w.tick(t, 1)
	var found *world.Observer
	w.partition(t, world.PartitionID{Map: 1}).EachObserver(func(o *world.Observer) { found = o })
	if found == nil {
		t.Fatalf("observer not in partition")
	}
	return c, found
}

func TestEnterPlacesObserver(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	if c.state != packet.StateInWorld {
		t.Fatalf("state = %s", c.state)
	}
	ack := c.sent[0]
	if ack[0] != packet.S_OPCODE_ENTER_OK {
		t.Fatalf("first packet %#x", ack[0])
	}
	r := packet.NewReader(ack)
	if ecs.GUID(r.ReadQ()) != o.GUID() || r.ReadDU() != 1 {
		t.Fatalf("ack does not name the body")
	}
	if o.Body.Team != 1 || o.Home != (world.PartitionID{Map: 1}) {
		t.Fatalf("team=%d home=%s", o.Body.Team, o.Home)
	}
	if c.lastSent(packet.S_OPCODE_UPDATE_OBJECT) == nil {
		t.Fatalf("no replication after entering")
	}
}

func TestEnterRejected(t *testing.T) {
	w := newTestWorld(t)
	now := time.Now()
	instance := &fakeConn{id: 1, inbox: [][]byte{enterPacket(2, 10, 10, 0)}}
	bad := &fakeConn{id: 2, inbox: [][]byte{enterPacket(1, 1e9, 10, 0)}}
	idle := &fakeConn{id: 3}
	for _, c := range []*fakeConn{instance, bad, idle} {
		w.gw.Accept(c, now)
	}
	w.gw.Poll(now)
	if !instance.closed || !bad.closed || idle.closed {
		t.Fatalf("closed: instance=%v bad=%v idle=%v", instance.closed, bad.closed, idle.closed)
	}
	w.gw.Poll(now.Add(2 * time.Second))
	if !idle.closed || w.gw.Pending() != 0 {
		t.Fatalf("idle session not timed out")
	}
	if w.rt.Alloc.Live() != 0 {
		t.Fatalf("%d GUIDs leaked", w.rt.Alloc.Live())
	}
}

func TestMoveWalksToDestination(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	c.inbox = append(c.inbox, posPacket(packet.C_OPCODE_MOVE, 270, 266, 0))
	w.tick(t, 1)
	if !o.Body.Motion.Moving {
		t.Fatalf("not moving after C_MOVE")
	}
	w.tick(t, 10)
	if o.Body.Motion.Moving || o.Body.Pos.X != 270 {
		t.Fatalf("moving=%v pos=%+v", o.Body.Motion.Moving, o.Body.Pos)
	}
}

func TestStopLimitsDrift(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	c.inbox = append(c.inbox, posPacket(packet.C_OPCODE_STOP, 267, 266, 0, 1.5))
	w.tick(t, 1)
	if o.Body.Pos.X != 267 || o.Body.Pos.O != 1.5 {
		t.Fatalf("small correction not taken: %+v", o.Body.Pos)
	}
	c.inbox = append(c.inbox, posPacket(packet.C_OPCODE_STOP, 400, 266, 0, 0.5))
	w.tick(t, 1)
	if o.Body.Pos.X != 267 || o.Body.Pos.O != 0.5 {
		t.Fatalf("far stop accepted: %+v", o.Body.Pos)
	}
}

func teleportPacket(mapID uint32, x, y float32) []byte {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_TELEPORT)
	w.WriteDU(mapID)
	w.WriteF(x)
	w.WriteF(y)
	w.WriteF(0)
	return w.Bytes()
}

func TestTeleportWithinMap(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	c.inbox = append(c.inbox, teleportPacket(1, 400, 400))
	w.tick(t, 1)
	if o.Body.Pos.X != 400 || o.Body.Pos.Y != 400 {
		t.Fatalf("pos = %+v", o.Body.Pos)
	}
}

func TestTeleportIntoInstance(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	start := o.Body.Pos
	c.inbox = append(c.inbox, teleportPacket(2, 100, 100))
	w.tick(t, 2)

	note := c.lastSent(packet.S_OPCODE_TRANSFER)
	if note == nil {
		t.Fatalf("no transfer notice")
	}
	r := packet.NewReader(note)
	dest := world.PartitionID{Map: r.ReadDU(), Instance: r.ReadDU()}
	if dest.Map != 2 || dest.Instance == 0 {
		t.Fatalf("dest = %s", dest)
	}
	inst := w.partition(t, dest)
	moved, ok := inst.Observer(o.GUID())
	if !ok {
		t.Fatalf("observer not in instance")
	}
	if moved.Home != (world.PartitionID{Map: 1}) || moved.HomePos != start {
		t.Fatalf("home = %s %+v", moved.Home, moved.HomePos)
	}
	if w.partition(t, world.PartitionID{Map: 1}).ObserverCount() != 0 {
		t.Fatalf("observer still in the open world")
	}
}

func TestLogout(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	c.inbox = append(c.inbox, []byte{packet.C_OPCODE_LOGOUT})
	w.tick(t, 1)
	if !c.closed || c.lastSent(packet.S_OPCODE_LOGOUT_OK) == nil {
		t.Fatalf("closed=%v", c.closed)
	}
	if w.partition(t, world.PartitionID{Map: 1}).ObserverCount() != 0 {
		t.Fatalf("body still resident")
	}
	if w.rt.Alloc.Alive(o.GUID()) {
		t.Fatalf("body GUID not released")
	}
}

func TestPing(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	p := packet.NewWriterWithOpcode(packet.C_OPCODE_PING)
	p.WriteDU(77)
	c.inbox = append(c.inbox, p.Bytes())
	w.tick(t, 1)
	pong := c.lastSent(packet.S_OPCODE_PONG)
	if pong == nil || packet.NewReader(pong).ReadDU() != 77 {
		t.Fatalf("pong = %v", pong)
	}
	if o.LastPing.IsZero() {
		t.Fatalf("LastPing not recorded")
	}
}

func TestTruncatedMoveIgnored(t *testing.T) {
	w := newTestWorld(t)
	c, o := w.enter(t, 266, 266)
	c.inbox = append(c.inbox, []byte{packet.C_OPCODE_MOVE, 1, 2})
	w.tick(t, 1)
	if o.Body.Motion.Moving {
		t.Fatalf("truncated move accepted")
	}
}
