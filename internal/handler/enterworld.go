package handler

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// Conn is a connected session that has not entered the world yet.
type Conn interface {
	world.Session
	SetState(packet.SessionState)
	Close()
}

type pendingConn struct {
	conn  Conn
	since time.Time
}

// Gateway holds new sessions until they send C_ENTER and hands them to
// their partition through its mailbox. It runs on the ticker goroutine.
type Gateway struct {
	deps    *Deps
	alloc   *ecs.Allocator
	timeout time.Duration
	pending []pendingConn
}

func NewGateway(deps *Deps, alloc *ecs.Allocator, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{deps: deps, alloc: alloc, timeout: timeout}
}

// Accept queues a freshly connected session.
func (g *Gateway) Accept(c Conn, now time.Time) {
	g.pending = append(g.pending, pendingConn{conn: c, since: now})
}

// Pending returns the number of sessions waiting to enter.
func (g *Gateway) Pending() int { return len(g.pending) }

// Poll handles the enter requests that arrived since the last call and
// drops sessions that closed or idled past the timeout.
func (g *Gateway) Poll(now time.Time) {
	kept := g.pending[:0]
	for _, pc := range g.pending {
		c := pc.conn
		if c.Closed() {
			continue
		}
		entered := false
		for _, data := range c.Receive(4) {
			if len(data) == 0 || data[0] != packet.C_OPCODE_ENTER {
				g.deps.Log.Debug("進入世界前收到非預期封包", zap.Uint64("session", c.ID()))
				continue
			}
			if err := g.enter(c, packet.NewReader(data)); err != nil {
				g.deps.Log.Warn("進入世界失敗", zap.Uint64("session", c.ID()), zap.Error(err))
				c.Close()
			}
			entered = true
			break
		}
		if entered {
			continue
		}
		if now.Sub(pc.since) > g.timeout {
			g.deps.Log.Info("等待進入世界逾時", zap.Uint64("session", c.ID()))
			c.Close()
			continue
		}
		kept = append(kept, pc)
	}
	clear(g.pending[len(kept):])
	g.pending = kept
}

// enter processes C_ENTER: [u32 map][f32 x][f32 y][f32 z][u32 team].
// Only open-world maps can be entered directly.
func (g *Gateway) enter(c Conn, r *packet.Reader) error {
	mapID := r.ReadDU()
	pos := object.Position{X: r.ReadF(), Y: r.ReadF(), Z: r.ReadF()}
	team := r.ReadDU()
	if err := r.Err(); err != nil {
		return err
	}
	m := g.deps.Manager
	spec, ok := m.Map(mapID)
	if !ok || spec.Kind != world.KindOpenWorld {
		return fmt.Errorf("map %d cannot be entered directly", mapID)
	}
	if err := world.ValidatePosition(pos, spec.Settings.Bounds); err != nil {
		return fmt.Errorf("enter at %.1f,%.1f: %w", pos.X, pos.Y, err)
	}

	body := object.New(g.alloc.Create(), object.KindPlayer, pos)
	body.Team = team
	body.Motion.Speed = g.deps.runSpeed()
	f := body.Fields
	f.SetInt(object.UnitHealth, 100)
	f.SetInt(object.UnitMaxHealth, 100)
	f.SetInt(object.UnitLevel, 1)
	f.SetFloat(object.UnitSpeed, body.Motion.Speed)
	f.ClearDirty()

	// The acknowledgement goes out before the partition can queue any
	// replication for this session.
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_ENTER_OK)
	w.WriteQ(uint64(body.GUID))
	w.WriteDU(mapID)
	_ = c.Send(w.Bytes())

	dest := world.PartitionID{Map: mapID}
	c.SetState(packet.StateInWorld)
	msg := world.EnterMessage{Entity: body, Session: c, Home: dest, HomePos: pos}
	if err := m.Route(dest, msg); err != nil {
		g.alloc.Release(body.GUID)
		return err
	}
	g.deps.Log.Info(fmt.Sprintf("玩家進入世界  session=%d  guid=%s  map=%d", c.ID(), body.GUID, mapID))
	return nil
}
