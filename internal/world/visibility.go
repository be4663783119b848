package world

import (
	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// Resolver holds the visibility thresholds. An entity becomes visible inside
// the perception radius and stays visible until it leaves the radius plus
// the grey zone, so entities hovering on the boundary do not flicker.
type Resolver struct {
	Radius   float32
	GreyZone float32
}

func (r Resolver) Enters(dist, radius float32) bool { return dist <= radius }
func (r Resolver) Stays(dist, radius float32) bool  { return dist <= radius+r.GreyZone }

// Diff is the outcome of one visibility pass for one observer.
type Diff struct {
	Enter []ecs.GUID // CREATE queued
	Stay  []ecs.GUID // still visible with changes to send
	Leave []ecs.GUID // DESTROY queued (when the CREATE had been delivered)
}

// resolve recomputes o's visible set and applies the difference to both
// sides of the has-created relation.
func (p *Partition) resolve(o *Observer) Diff {
	var d Diff
	body := o.Body
	radius := o.Radius

	p.loadAround(body, radius+p.settings.GreyZone)

	// Leave pass over the current set. Removal from the bucket swaps the
	// last element in, so walk a copy.
	for _, id := range o.Known() {
		e, ok := p.entities.Get(id)
		if !ok {
			o.known.remove(id)
			o.destroys = append(o.destroys, destroyNote{id: id})
			d.Leave = append(d.Leave, id)
			continue
		}
		if e.Removed() {
			// Unlinked by detach, which carries the despawn animation.
			continue
		}
		if !p.resolver.Stays(body.Pos.Dist2D(e.Pos), radius) {
			p.unlink(o, e, false)
			d.Leave = append(d.Leave, id)
			continue
		}
		if vs, ok := e.Viewer(body.GUID); ok && (!vs.Pending.IsZero() || e.PendingReplication()) {
			d.Stay = append(d.Stay, id)
		}
	}

	// Enter pass over the cells in range.
	p.forCells(areaAround(body.Pos.X, body.Pos.Y, radius), func(c *Cell) {
		enter := func(id ecs.GUID) {
			if o.known.has(id) {
				return
			}
			e, ok := p.entities.Get(id)
			if !ok || e.Removed() {
				return
			}
			if p.resolver.Enters(body.Pos.Dist2D(e.Pos), radius) {
				p.link(o, e)
				d.Enter = append(d.Enter, id)
			}
		}
		for _, id := range c.observers.ids {
			enter(id)
		}
		for _, id := range c.objects.ids {
			enter(id)
		}
	})

	p.stats.Entered += len(d.Enter)
	p.stats.Left += len(d.Leave)
	return d
}

// loadAround activates every grid within reach of e. Observers pull the
// grids they can see into memory the same way entering a grid does.
func (p *Partition) loadAround(e *object.Entity, reach float32) {
	lo, hi := areaAround(e.Pos.X, e.Pos.Y, reach).grids()
	for x := lo.X; x <= hi.X; x++ {
		for y := lo.Y; y <= hi.Y; y++ {
			c := GridCoord{X: x, Y: y}
			if distToGrid(e.Pos.X, e.Pos.Y, c) > reach {
				continue
			}
			if g, ok := p.grids[c]; ok && g.state == GridActive {
				g.expiry = p.settings.GridExpiry
				continue
			}
			if _, err := p.EnsureLoaded(c); err != nil {
				p.log.Warn("視野格子載入失敗", zap.Int32("gx", x), zap.Int32("gy", y), zap.Error(err))
			}
		}
	}
}

// forCells calls fn for every cell of an active grid inside a.
func (p *Partition) forCells(a cellArea, fn func(c *Cell)) {
	for x := a.lo.X; x <= a.hi.X; x++ {
		for y := a.lo.Y; y <= a.hi.Y; y++ {
			cp := object.CellPair{X: x, Y: y}
			g, ok := p.grids[GridOfCell(cp)]
			if !ok || g.state != GridActive {
				continue
			}
			fn(g.cell(cp))
		}
	}
}
