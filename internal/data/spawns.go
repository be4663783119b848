package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// SpawnEntry is one placement in a spawn list YAML.
type SpawnEntry struct {
	ID           uint64        `yaml:"id"`
	MapID        uint32        `yaml:"map_id"`
	Kind         string        `yaml:"kind"` // creature or gameobject
	Entry        uint32        `yaml:"entry"`
	X            float32       `yaml:"x"`
	Y            float32       `yaml:"y"`
	Z            float32       `yaml:"z"`
	O            float32       `yaml:"o"`
	DisplayID    uint32        `yaml:"display_id"`
	Level        uint32        `yaml:"level"`
	Health       uint32        `yaml:"health"`
	Faction      uint32        `yaml:"faction"`
	NpcFlags     uint32        `yaml:"npc_flags"`
	Team         uint32        `yaml:"team"`
	TrainerClass uint32        `yaml:"trainer_class"`
	QuestEntry   uint32        `yaml:"quest_entry"`
	Respawn      time.Duration `yaml:"respawn"`
	Active       bool          `yaml:"active"`
}

type spawnListFile struct {
	Spawns []SpawnEntry `yaml:"spawns"`
}

// MapSpawns groups the records of one map.
type MapSpawns map[uint32][]world.SpawnRecord

// LoadSpawns reads a spawn list YAML. Players cannot be placed from a list.
func LoadSpawns(path string) (MapSpawns, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spawn list %s: %w", path, err)
	}
	var file spawnListFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse spawn list: %w", err)
	}

	out := make(MapSpawns)
	ids := make(map[uint64]bool, len(file.Spawns))
	for _, s := range file.Spawns {
		if s.ID == 0 || ids[s.ID] {
			return nil, fmt.Errorf("spawn %d: id must be unique and non-zero", s.ID)
		}
		ids[s.ID] = true
		rec, err := s.record()
		if err != nil {
			return nil, fmt.Errorf("spawn %d: %w", s.ID, err)
		}
		out[s.MapID] = append(out[s.MapID], rec)
	}
	return out, nil
}

func (s SpawnEntry) record() (world.SpawnRecord, error) {
	var kind object.Kind
	switch s.Kind {
	case "", "creature":
		kind = object.KindCreature
	case "gameobject":
		kind = object.KindGameObject
	default:
		return world.SpawnRecord{}, fmt.Errorf("kind %q cannot be spawned", s.Kind)
	}
	pos := object.Position{X: s.X, Y: s.Y, Z: s.Z, O: s.O}
	if err := world.ValidatePosition(pos, world.Bounds{}); err != nil {
		return world.SpawnRecord{}, err
	}
	return world.SpawnRecord{
		ID:           s.ID,
		Kind:         kind,
		Entry:        s.Entry,
		Pos:          pos,
		DisplayID:    s.DisplayID,
		Level:        s.Level,
		Health:       s.Health,
		Faction:      s.Faction,
		NpcFlags:     s.NpcFlags,
		Team:         s.Team,
		TrainerClass: s.TrainerClass,
		QuestEntry:   s.QuestEntry,
		RespawnDelay: s.Respawn,
		Active:       s.Active,
	}, nil
}

// GridTerrain is the height field of one grid read from a terrain dump.
type GridTerrain struct {
	Grid    world.GridCoord
	Terrain world.Terrain
}

// ReadTerrain parses a terrain dump: per grid one header line "gx gy"
// followed by TerrainSamples lines of TerrainSamples heights each.
// Blank lines and lines starting with # are skipped.
func ReadTerrain(r io.Reader) ([]GridTerrain, error) {
	const n = world.TerrainSamples
	var out []GridTerrain
	var cur *GridTerrain
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if cur == nil {
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: want grid header \"gx gy\"", line)
			}
			gx, err1 := strconv.Atoi(fields[0])
			gy, err2 := strconv.Atoi(fields[1])
			if err1 != nil || err2 != nil || gx < 0 || gy < 0 || gx >= world.GridsPerMap || gy >= world.GridsPerMap {
				return nil, fmt.Errorf("line %d: bad grid %q", line, text)
			}
			out = append(out, GridTerrain{Grid: world.GridCoord{X: int32(gx), Y: int32(gy)}})
			cur = &out[len(out)-1]
			cur.Terrain.Heights = make([]float32, 0, n*n)
			continue
		}
		if len(fields) != n {
			return nil, fmt.Errorf("line %d: want %d heights, got %d", line, n, len(fields))
		}
		for _, f := range fields {
			h, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cur.Terrain.Heights = append(cur.Terrain.Heights, float32(h))
		}
		if len(cur.Terrain.Heights) == n*n {
			cur = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fmt.Errorf("grid %d,%d: truncated height field", cur.Grid.X, cur.Grid.Y)
	}
	return out, nil
}
