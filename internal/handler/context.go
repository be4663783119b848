package handler

import (
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/world"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Manager *world.Manager
	Log     *zap.Logger
	// RunSpeed is the speed given to observer bodies, in units per second.
	RunSpeed float32
	// MaxStopDrift bounds how far a STOP may pull the body away from the
	// server-tracked position.
	MaxStopDrift float32
}

func (d *Deps) runSpeed() float32 {
	if d.RunSpeed > 0 {
		return d.RunSpeed
	}
	return 7
}

func (d *Deps) maxStopDrift() float32 {
	if d.MaxStopDrift > 0 {
		return d.MaxStopDrift
	}
	return 3
}

// Context is what a handler sees for one inbound packet. It is only valid
// during the call, on the partition goroutine.
type Context struct {
	P    *world.Partition
	O    *world.Observer
	Deps *Deps
}

// Input dispatches observer packets through the opcode registry. It is the
// partition's world.InputHandler.
type Input struct {
	reg  *packet.Registry
	deps *Deps
}

func NewInput(deps *Deps) *Input {
	reg := packet.NewRegistry(deps.Log)
	RegisterAll(reg, deps)
	return &Input{reg: reg, deps: deps}
}

// HandlePacket implements world.InputHandler.
func (in *Input) HandlePacket(p *world.Partition, o *world.Observer, data []byte) {
	state := packet.StateInWorld
	if s, ok := o.Session.(interface{ State() packet.SessionState }); ok {
		state = s.State()
	}
	ctx := &Context{P: p, O: o, Deps: in.deps}
	if err := in.reg.Dispatch(ctx, state, data); err != nil {
		in.deps.Log.Debug("封包處理失敗", zap.Stringer("guid", o.GUID()), zap.Error(err))
	}
}

// RegisterAll registers all in-world packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	inWorld := []packet.SessionState{packet.StateInWorld}

	reg.Register(packet.C_OPCODE_PING, inWorld,
		func(ctx any, r *packet.Reader) {
			HandlePing(ctx.(*Context), r)
		},
	)
	reg.Register(packet.C_OPCODE_MOVE, inWorld,
		func(ctx any, r *packet.Reader) {
			HandleMove(ctx.(*Context), r)
		},
	)
	reg.Register(packet.C_OPCODE_STOP, inWorld,
		func(ctx any, r *packet.Reader) {
			HandleStop(ctx.(*Context), r)
		},
	)
	reg.Register(packet.C_OPCODE_TELEPORT, inWorld,
		func(ctx any, r *packet.Reader) {
			HandleTeleport(ctx.(*Context), r)
		},
	)
	reg.Register(packet.C_OPCODE_LOGOUT, inWorld,
		func(ctx any, r *packet.Reader) {
			HandleLogout(ctx.(*Context), r)
		},
	)
}
