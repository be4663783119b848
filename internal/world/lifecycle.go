package world

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/object"
)

// GridState returns the lifecycle state of c; absent grids are NotCreated.
func (p *Partition) GridState(c GridCoord) GridState {
	if g, ok := p.grids[c]; ok {
		return g.state
	}
	return GridNotCreated
}

// Grid returns the grid at c when it exists.
func (p *Partition) Grid(c GridCoord) (*Grid, bool) {
	g, ok := p.grids[c]
	return g, ok
}

// GridCount returns the number of created grids.
func (p *Partition) GridCount() int { return len(p.grids) }

// EnsureCreated allocates the grid at c and loads its static data once.
// A static-data failure is logged and leaves the grid without terrain.
func (p *Partition) EnsureCreated(c GridCoord) *Grid {
	if g, ok := p.grids[c]; ok {
		return g
	}
	g := newGrid(c)
	g.expiry = p.settings.GridExpiry
	if p.rt.Store != nil {
		t, err := p.rt.Store.LoadStaticTileData(p.ctx, p.id.Map, c)
		if err != nil {
			p.log.Warn("地形載入失敗", zap.Int32("gx", c.X), zap.Int32("gy", c.Y), zap.Error(err))
		} else {
			g.terrain = t
		}
	}
	p.grids[c] = g
	return g
}

// EnsureLoaded activates the grid at c, loading its spawn records
// synchronously. It reports true only for the call that performed the
// activation. On a store failure the grid stays Idle and empty.
func (p *Partition) EnsureLoaded(c GridCoord) (bool, error) {
	if !c.Valid() {
		return false, fmt.Errorf("grid %d,%d: %w", c.X, c.Y, ErrInvalidPosition)
	}
	g := p.EnsureCreated(c)
	switch g.state {
	case GridActive:
		g.expiry = p.settings.GridExpiry
		return false, nil
	case GridRemoval:
		return false, fmt.Errorf("grid %d,%d is unloading", c.X, c.Y)
	}

	var recs []SpawnRecord
	if p.rt.Store != nil {
		var err error
		recs, err = p.rt.Store.LoadDynamicEntities(p.ctx, TileCoord{Map: p.id.Map, Grid: c})
		if err != nil {
			p.log.Error("格子生成資料載入失敗", zap.Int32("gx", c.X), zap.Int32("gy", c.Y), zap.Error(err))
			return false, fmt.Errorf("%w: grid %d,%d: %w", ErrTileLoad, c.X, c.Y, err)
		}
	}

	// Build everything before the grid turns active so a bad record never
	// leaves a half-populated grid behind.
	spawns := make([]*object.Entity, 0, len(recs))
	for _, rec := range recs {
		if GridOf(rec.Pos.X, rec.Pos.Y) != c {
			p.log.Warn("生成點不在所屬格子內", zap.Uint64("spawn", rec.ID), zap.Int32("gx", c.X), zap.Int32("gy", c.Y))
			continue
		}
		e, err := p.build(rec)
		if err != nil {
			p.log.Warn("略過無效生成點", zap.Uint64("spawn", rec.ID), zap.Error(err))
			continue
		}
		spawns = append(spawns, e)
	}

	g.state = GridActive
	g.expiry = p.settings.GridExpiry
	for _, e := range spawns {
		p.insert(e)
	}
	p.stats.GridsLoaded++
	p.log.Debug("格子已載入", zap.Int32("gx", c.X), zap.Int32("gy", c.Y), zap.Int("spawns", len(spawns)))
	return true, nil
}

// SetUnloadLock pins or releases the grid at c. A pinned grid is skipped by
// housekeeping but can still be force-unloaded.
func (p *Partition) SetUnloadLock(c GridCoord, locked bool) {
	if g, ok := p.grids[c]; ok {
		g.unloadLock = locked
	}
}

// ActiveObjectsNearGrid reports whether an observer or an active entity is
// within the grid's visibility envelope.
func (p *Partition) ActiveObjectsNearGrid(c GridCoord) bool {
	for _, e := range p.roster.items {
		reach := p.settings.Radius
		if o, ok := p.sessions[e.GUID]; ok {
			reach = o.Radius
		}
		if distToGrid(e.Pos.X, e.Pos.Y, c) <= reach+p.settings.GreyZone {
			return true
		}
	}
	for _, e := range p.active.items {
		if distToGrid(e.Pos.X, e.Pos.Y, c) <= p.settings.Radius+p.settings.GreyZone {
			return true
		}
	}
	return false
}

// Unload releases the grid at c. Without force it refuses, changing
// nothing, while the grid is locked or has observers or active entities in
// range. On success every resident is moved to its respawn point or
// removed, and the grid returns to NotCreated.
func (p *Partition) Unload(c GridCoord, force bool) bool {
	g, ok := p.grids[c]
	if !ok || g.state == GridRemoval {
		return false
	}
	if !force && (g.locks > 0 || p.ActiveObjectsNearGrid(c)) {
		p.stats.UnloadsDeferred++
		p.log.Debug("格子使用中，延後卸載", zap.Int32("gx", c.X), zap.Int32("gy", c.Y), zap.Int("locks", g.locks))
		return false
	}

	g.state = GridRemoval
	g.each(func(id ecs.GUID) {
		e, ok := p.entities.Get(id)
		if !ok || e.Removed() {
			return
		}
		p.evacuate(e, g)
	})
	p.flushRemovals()
	if g.residents != 0 {
		invariant("grid %d,%d still has %d residents after unload", c.X, c.Y, g.residents)
	}
	if g.terrain != nil && p.rt.Store != nil {
		p.rt.Store.ReleaseStaticTileData(p.id.Map, c)
	}
	g.terrain = nil
	g.state = GridNotCreated
	delete(p.grids, c)
	p.stats.GridsUnloaded++
	p.log.Debug("格子已卸載", zap.Int32("gx", c.X), zap.Int32("gy", c.Y), zap.Bool("force", force))
	return true
}

// evacuate takes e out of a grid being unloaded.
func (p *Partition) evacuate(e *object.Entity, g *Grid) {
	if e.IsObserver() {
		if o, ok := p.sessions[e.GUID]; ok && p.onEvict != nil && !e.Removed() {
			p.onEvict(o)
		}
		if !e.Removed() {
			p.Remove(e)
		}
		return
	}
	home := GridOf(e.Spawn.X, e.Spawn.Y)
	if e.SpawnID != 0 && home != g.Coord && p.GridState(home) == GridActive {
		if err := p.Relocate(e, e.Spawn); err == nil {
			return
		}
	}
	p.Remove(e)
}

// housekeeping counts down grid expiry timers and unloads the grids whose
// timer lapsed. Refused unloads are retried on the next pass.
func (p *Partition) housekeeping(dt time.Duration) {
	for c, g := range p.grids {
		if g.unloadLock {
			continue
		}
		if g.expiry > 0 {
			g.expiry -= dt
		}
		if g.expiry > 0 {
			continue
		}
		p.Unload(c, false)
	}
}
