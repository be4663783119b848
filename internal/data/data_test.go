package data

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestParseMaps(t *testing.T) {
	cfg := testConfig(t)
	raw := []byte(`
maps:
  - map_id: 0
    name: continent
  - map_id: 30
    name: crypt
    kind: instance
    idle_timeout: 2m
  - map_id: 489
    name: arena
    kind: match
    radius: 300
    warmup: 30s
    score_limit: 3
    min_x: -500
    min_y: -500
    max_x: 500
    max_y: 500
`)
	specs, err := ParseMaps(raw, cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 3 {
		t.Fatalf("specs = %d", len(specs))
	}
	ow, inst, match := specs[0], specs[1], specs[2]
	if ow.Kind != world.KindOpenWorld || ow.Settings.Radius != cfg.World.OpenWorldRadius {
		t.Fatalf("open world = %+v", ow)
	}
	if inst.Kind != world.KindInstance || inst.Settings.Radius != cfg.World.InstanceRadius {
		t.Fatalf("instance = %+v", inst)
	}
	if inst.Instance.IdleTimeout != 2*time.Minute {
		t.Fatalf("idle timeout = %s", inst.Instance.IdleTimeout)
	}
	if match.Kind != world.KindMatch || match.Settings.Radius != 300 || match.Match.ScoreLimit != 3 {
		t.Fatalf("match = %+v", match)
	}
	if match.Match.Duration != cfg.World.MatchDuration || match.Match.Warmup != 30*time.Second {
		t.Fatalf("match timing = %+v", match.Match)
	}
	if !match.Settings.Bounds.Contains(0, 0) || match.Settings.Bounds.Contains(600, 0) {
		t.Fatalf("bounds = %+v", match.Settings.Bounds)
	}
}

func TestParseMapsRejects(t *testing.T) {
	cfg := testConfig(t)
	for name, doc := range map[string]string{
		"empty":     "maps: []",
		"duplicate": "maps:\n  - map_id: 1\n  - map_id: 1\n",
		"kind":      "maps:\n  - map_id: 1\n    kind: dungeon\n",
		"bounds":    "maps:\n  - map_id: 1\n    min_x: 10\n    max_x: 5\n    max_y: 5\n",
	} {
		if _, err := ParseMaps([]byte(doc), cfg); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestLoadSpawns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawns.yaml")
	doc := `
spawns:
  - id: 1
    map_id: 0
    entry: 45
    x: 560
    y: 266
    health: 80
    respawn: 30s
  - id: 2
    map_id: 0
    kind: gameobject
    entry: 9
    x: 10
    y: 10
  - id: 3
    map_id: 30
    entry: 46
    x: 0
    y: 0
    active: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	spawns, err := LoadSpawns(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(spawns[0]) != 2 || len(spawns[30]) != 1 {
		t.Fatalf("spawns = %+v", spawns)
	}
	c := spawns[0][0]
	if c.Kind != object.KindCreature || c.Pos.X != 560 || c.RespawnDelay != 30*time.Second {
		t.Fatalf("creature = %+v", c)
	}
	if spawns[0][1].Kind != object.KindGameObject {
		t.Fatalf("gameobject kind = %s", spawns[0][1].Kind)
	}
	if !spawns[30][0].Active {
		t.Fatalf("active flag lost")
	}
}

func TestLoadSpawnsRejectsPlayersAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	for name, doc := range map[string]string{
		"player":    "spawns:\n  - id: 1\n    kind: player\n",
		"duplicate": "spawns:\n  - id: 1\n  - id: 1\n",
		"zero id":   "spawns:\n  - entry: 4\n",
		"position":  "spawns:\n  - id: 1\n    x: 99999\n",
	} {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
		if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadSpawns(path); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func terrainDump(grids ...[2]int) string {
	var b strings.Builder
	b.WriteString("# test terrain\n")
	for _, g := range grids {
		b.WriteString(strings.Join([]string{strconv.Itoa(g[0]), strconv.Itoa(g[1])}, " "))
		b.WriteByte('\n')
		for y := 0; y < world.TerrainSamples; y++ {
			row := make([]string, world.TerrainSamples)
			for x := range row {
				row[x] = strconv.Itoa(y)
			}
			b.WriteString(strings.Join(row, " "))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func TestReadTerrain(t *testing.T) {
	grids, err := ReadTerrain(strings.NewReader(terrainDump([2]int{32, 32}, [2]int{33, 32})))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(grids) != 2 || grids[1].Grid != (world.GridCoord{X: 33, Y: 32}) {
		t.Fatalf("grids = %+v", grids)
	}
	h := grids[0].Terrain.Heights
	if len(h) != world.TerrainSamples*world.TerrainSamples || h[world.TerrainSamples*5] != 5 {
		t.Fatalf("heights = %v", h[:world.TerrainSamples+1])
	}
}

func TestReadTerrainTruncated(t *testing.T) {
	dump := terrainDump([2]int{1, 1})
	lines := strings.Split(strings.TrimSpace(dump), "\n")
	if _, err := ReadTerrain(strings.NewReader(strings.Join(lines[:len(lines)-1], "\n"))); err == nil {
		t.Fatalf("truncated dump accepted")
	}
	if _, err := ReadTerrain(strings.NewReader("64 0\n")); err == nil {
		t.Fatalf("out of range grid accepted")
	}
}
