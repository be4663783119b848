package handler

import (
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// HandleMove processes C_MOVE: [f32 x][f32 y][f32 z] destination.
// The body walks there during the entity-update visit; the server never
// takes the client's current position on trust.
func HandleMove(c *Context, r *packet.Reader) {
	dest := object.Position{X: r.ReadF(), Y: r.ReadF(), Z: r.ReadF()}
	if r.Err() != nil {
		return
	}
	body := c.O.Body
	if body.Life.Dead {
		return
	}
	if err := world.ValidatePosition(dest, c.P.Settings().Bounds); err != nil {
		c.Deps.Log.Warn("拒絕非法移動目標", zap.Stringer("guid", body.GUID),
			zap.Float32("x", dest.X), zap.Float32("y", dest.Y))
		return
	}

	m := &body.Motion
	if m.Speed <= 0 {
		m.Speed = c.Deps.runSpeed()
		body.Fields.SetFloat(object.UnitSpeed, m.Speed)
	}
	m.Dest = dest
	m.Moving = true
	m.Flags |= object.MoveForward
}

// HandleStop processes C_STOP: [f32 x][f32 y][f32 z][f32 o].
// The reported position is accepted only within MaxStopDrift of the
// server's; the facing is always taken.
func HandleStop(c *Context, r *packet.Reader) {
	at := object.Position{X: r.ReadF(), Y: r.ReadF(), Z: r.ReadF(), O: r.ReadF()}
	if r.Err() != nil {
		return
	}
	body := c.O.Body
	m := &body.Motion
	m.Moving = false
	m.Flags &^= object.MoveForward

	next := body.Pos
	next.O = at.O
	if body.Pos.Dist2D(at) <= c.Deps.maxStopDrift() {
		next = at
	}
	if err := c.P.Relocate(body, next); err != nil {
		c.Deps.Log.Debug("停止位置無效", zap.Stringer("guid", body.GUID), zap.Error(err))
	}
}
