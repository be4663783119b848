package persist

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

func openTestStore(t *testing.T) *TileStore {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "tiles.db"),
	}
	s, err := Open(testContext(t), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func slopeTerrain() *world.Terrain {
	t := &world.Terrain{Heights: make([]float32, world.TerrainSamples*world.TerrainSamples)}
	for i := range t.Heights {
		t.Heights[i] = float32(i) * 0.25
	}
	return t
}

func TestTerrainCodec(t *testing.T) {
	in := slopeTerrain()
	blob, err := EncodeTerrain(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeTerrain(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in.Heights {
		if in.Heights[i] != out.Heights[i] {
			t.Fatalf("sample %d: %v != %v", i, out.Heights[i], in.Heights[i])
		}
	}

	if _, err := EncodeTerrain(&world.Terrain{Heights: []float32{1, 2}}); err == nil {
		t.Fatalf("short terrain encoded")
	}
	if _, err := DecodeTerrain(bytes.Repeat([]byte{0xff}, 16)); err == nil {
		t.Fatalf("garbage decoded")
	}
	short := terrainEncoder.EncodeAll([]byte{1, 2, 3, 4}, nil)
	if _, err := DecodeTerrain(short); err == nil {
		t.Fatalf("short payload decoded")
	}
}

func TestTerrainSharedUntilReleased(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)
	g := world.GridCoord{X: 32, Y: 32}
	if err := s.PutTerrain(ctx, 1, g, slopeTerrain()); err != nil {
		t.Fatalf("put: %v", err)
	}

	a, err := s.LoadStaticTileData(ctx, 1, g)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b, err := s.LoadStaticTileData(ctx, 1, g)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a != b {
		t.Fatalf("second load did not share the cached copy")
	}
	if got := a.HeightAt(g, 0, 0); got < 0 {
		t.Fatalf("height = %v", got)
	}

	s.ReleaseStaticTileData(1, g)
	if s.cache.len() != 1 {
		t.Fatalf("released while still held")
	}
	s.ReleaseStaticTileData(1, g)
	if s.cache.len() != 0 {
		t.Fatalf("cache kept %d entries", s.cache.len())
	}
}

func TestMissingTerrainIsFlat(t *testing.T) {
	s := openTestStore(t)
	tr, err := s.LoadStaticTileData(testContext(t), 9, world.GridCoord{X: 1, Y: 2})
	if err != nil || tr != nil {
		t.Fatalf("missing terrain = %v, %v", tr, err)
	}
	if s.cache.len() != 0 {
		t.Fatalf("missing terrain cached")
	}
}

func TestSpawnsByGrid(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)
	recs := []world.SpawnRecord{
		{ID: 1, Kind: object.KindCreature, Entry: 45, Pos: object.Position{X: 560, Y: 266, O: 1.5}, Health: 80, RespawnDelay: 30 * time.Second},
		{ID: 2, Kind: object.KindGameObject, Entry: 9, Pos: object.Position{X: 600, Y: 300}},
		{ID: 3, Kind: object.KindCreature, Entry: 46, Pos: object.Position{X: 10, Y: 10}, Active: true},
	}
	if err := s.PutSpawns(ctx, 1, recs); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.LoadDynamicEntities(ctx, world.TileCoord{Map: 1, Grid: world.GridOf(560, 266)})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("grid spawns = %+v", got)
	}
	c := got[0]
	if c.Kind != object.KindCreature || c.Entry != 45 || c.Pos.O != 1.5 || c.Health != 80 || c.RespawnDelay != 30*time.Second {
		t.Fatalf("record = %+v", c)
	}

	centre, err := s.LoadDynamicEntities(ctx, world.TileCoord{Map: 1, Grid: world.GridOf(10, 10)})
	if err != nil || len(centre) != 1 || !centre[0].Active {
		t.Fatalf("centre spawns = %+v, %v", centre, err)
	}

	// A re-import replaces the map's records.
	if err := s.PutSpawns(ctx, 1, recs[:1]); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err = s.LoadDynamicEntities(ctx, world.TileCoord{Map: 1, Grid: world.GridOf(560, 266)})
	if err != nil || len(got) != 1 {
		t.Fatalf("after replace = %+v, %v", got, err)
	}
}

func TestPutSpawnsRejects(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)
	if err := s.PutSpawns(ctx, 1, []world.SpawnRecord{{ID: 1, Kind: object.KindPlayer}}); err == nil {
		t.Fatalf("player spawn stored")
	}
	if err := s.PutSpawns(ctx, 1, []world.SpawnRecord{{ID: 1, Kind: object.KindCreature, Pos: object.Position{X: 1e9}}}); err == nil {
		t.Fatalf("off-map spawn stored")
	}
	dup := []world.SpawnRecord{
		{ID: 5, Kind: object.KindCreature},
		{ID: 5, Kind: object.KindCreature},
	}
	if err := s.PutSpawns(ctx, 1, dup); err == nil {
		t.Fatalf("duplicate ids stored")
	}
}

func TestCacheConcurrentAcquire(t *testing.T) {
	s := openTestStore(t)
	ctx := testContext(t)
	g := world.GridCoord{X: 3, Y: 4}
	if err := s.PutTerrain(ctx, 2, g, slopeTerrain()); err != nil {
		t.Fatalf("put: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	out := make([]*world.Terrain, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tr, err := s.LoadStaticTileData(ctx, 2, g)
			if err != nil {
				t.Errorf("load: %v", err)
			}
			out[i] = tr
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if out[i] != out[0] {
			t.Fatalf("loader %d got a private copy", i)
		}
	}
	for i := 0; i < n; i++ {
		s.ReleaseStaticTileData(2, g)
	}
	if s.cache.len() != 0 {
		t.Fatalf("cache kept %d entries", s.cache.len())
	}
}
