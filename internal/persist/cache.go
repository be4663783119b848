package persist

import (
	"context"
	"sync"

	"github.com/l1jgo/worldcore/internal/world"
)

type cachedTerrain struct {
	t    *world.Terrain
	refs int
}

// terrainCache shares one decoded height field between every partition
// holding the same grid, so instances of a map reuse the open world's copy.
type terrainCache struct {
	mu      sync.Mutex
	entries map[world.TileCoord]*cachedTerrain
}

func newTerrainCache() *terrainCache {
	return &terrainCache{entries: make(map[world.TileCoord]*cachedTerrain)}
}

// acquire returns the cached terrain of tc, calling fetch on a miss. A nil
// terrain (no row) is not cached and needs no release.
func (c *terrainCache) acquire(ctx context.Context, tc world.TileCoord, fetch func(context.Context) (*world.Terrain, error)) (*world.Terrain, error) {
	c.mu.Lock()
	if e, ok := c.entries[tc]; ok {
		e.refs++
		c.mu.Unlock()
		return e.t, nil
	}
	c.mu.Unlock()

	t, err := fetch(ctx)
	if err != nil || t == nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another partition may have loaded the same grid meanwhile.
	if e, ok := c.entries[tc]; ok {
		e.refs++
		return e.t, nil
	}
	c.entries[tc] = &cachedTerrain{t: t, refs: 1}
	return t, nil
}

func (c *terrainCache) release(tc world.TileCoord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[tc]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(c.entries, tc)
	}
}

func (c *terrainCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
