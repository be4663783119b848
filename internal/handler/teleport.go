package handler

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/net/packet"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// HandleTeleport processes C_TELEPORT: [u32 map][f32 x][f32 y][f32 z].
// A destination on the current map is a relocation inside the partition;
// anything else is a transfer. Instance and match maps get a fresh
// partition per request.
func HandleTeleport(c *Context, r *packet.Reader) {
	mapID := r.ReadDU()
	pos := object.Position{X: r.ReadF(), Y: r.ReadF(), Z: r.ReadF()}
	if r.Err() != nil {
		return
	}
	body := c.O.Body
	log := c.Deps.Log.With(zap.Stringer("guid", body.GUID), zap.Uint32("map", mapID))

	if err := world.ValidatePosition(pos, world.Bounds{}); err != nil {
		log.Warn("拒絕非法傳送座標", zap.Float32("x", pos.X), zap.Float32("y", pos.Y))
		return
	}
	body.Motion.Moving = false

	if mapID == c.P.ID().Map {
		if err := c.P.Relocate(body, pos); err != nil {
			log.Warn("同圖傳送失敗", zap.Error(err))
		}
		return
	}

	dest, err := resolveDestination(c.Deps.Manager, mapID)
	if err != nil {
		log.Warn("傳送目的地無效", zap.Error(err))
		return
	}
	if err := c.P.Transfer(body, dest, pos); err != nil {
		log.Warn("跨分區傳送失敗", zap.Error(err))
		return
	}
	log.Info("玩家傳送", zap.Stringer("from", c.P.ID()), zap.Stringer("to", dest))
}

// resolveDestination picks the partition a teleport to mapID lands in.
func resolveDestination(m *world.Manager, mapID uint32) (world.PartitionID, error) {
	if m == nil {
		return world.PartitionID{}, fmt.Errorf("no partition manager")
	}
	spec, ok := m.Map(mapID)
	if !ok {
		return world.PartitionID{}, fmt.Errorf("map %d: unknown", mapID)
	}
	if spec.Kind == world.KindOpenWorld {
		return world.PartitionID{Map: mapID}, nil
	}
	p, err := m.CreateInstance(mapID)
	if err != nil {
		return world.PartitionID{}, err
	}
	return p.ID(), nil
}
