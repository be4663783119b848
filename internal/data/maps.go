package data

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/world"
)

// MapInfo is one entry of maps.yaml. Zero values fall back to the
// [world] section of the server config.
type MapInfo struct {
	MapID uint32 `yaml:"map_id"`
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"` // open_world, instance or match

	Radius   float32 `yaml:"radius"`
	GreyZone float32 `yaml:"grey_zone"`

	MinX float32 `yaml:"min_x"`
	MinY float32 `yaml:"min_y"`
	MaxX float32 `yaml:"max_x"`
	MaxY float32 `yaml:"max_y"`

	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	ResetInterval time.Duration `yaml:"reset_interval"`

	Warmup     time.Duration `yaml:"warmup"`
	Duration   time.Duration `yaml:"duration"`
	ScoreLimit int           `yaml:"score_limit"`
}

type mapListFile struct {
	Maps []MapInfo `yaml:"maps"`
}

// LoadMaps reads the map list at path and builds one world.MapSpec per map.
func LoadMaps(path string, cfg *config.Config) ([]world.MapSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map list %s: %w", path, err)
	}
	return ParseMaps(raw, cfg)
}

// ParseMaps is LoadMaps over an in-memory document.
func ParseMaps(raw []byte, cfg *config.Config) ([]world.MapSpec, error) {
	var file mapListFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse map list: %w", err)
	}
	if len(file.Maps) == 0 {
		return nil, fmt.Errorf("map list is empty")
	}

	seen := make(map[uint32]bool, len(file.Maps))
	specs := make([]world.MapSpec, 0, len(file.Maps))
	for _, mi := range file.Maps {
		if seen[mi.MapID] {
			return nil, fmt.Errorf("map %d: duplicate entry", mi.MapID)
		}
		seen[mi.MapID] = true
		spec, err := mi.spec(cfg)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (mi MapInfo) spec(cfg *config.Config) (world.MapSpec, error) {
	wc := cfg.World
	kind, err := parseKind(mi.Kind)
	if err != nil {
		return world.MapSpec{}, fmt.Errorf("map %d: %w", mi.MapID, err)
	}

	radius := mi.Radius
	if radius <= 0 {
		switch kind {
		case world.KindInstance:
			radius = wc.InstanceRadius
		case world.KindMatch:
			radius = wc.MatchRadius
		default:
			radius = wc.OpenWorldRadius
		}
	}
	grey := mi.GreyZone
	if grey <= 0 {
		grey = wc.GreyZone
	}
	bounds := world.Bounds{MinX: mi.MinX, MinY: mi.MinY, MaxX: mi.MaxX, MaxY: mi.MaxY}
	if bounds != (world.Bounds{}) && (bounds.MinX >= bounds.MaxX || bounds.MinY >= bounds.MaxY) {
		return world.MapSpec{}, fmt.Errorf("map %d: empty bounds", mi.MapID)
	}

	spec := world.MapSpec{
		ID:   mi.MapID,
		Name: mi.Name,
		Kind: kind,
		Settings: world.Settings{
			Radius:            radius,
			GreyZone:          grey,
			GridExpiry:        wc.GridExpiry,
			MailboxSize:       wc.MailboxSize,
			MaxPacketsPerTick: cfg.Network.MaxPacketsPerTick,
			CorpseDecay:       wc.CorpseDecay,
			Bounds:            bounds,
			DebugValidate:     wc.DebugValidate,
		},
		Instance: world.InstanceConfig{
			IdleTimeout:   orDuration(mi.IdleTimeout, wc.InstanceIdleTimeout),
			ResetInterval: orDuration(mi.ResetInterval, wc.InstanceResetInterval),
		},
		Match: world.MatchConfig{
			Warmup:     mi.Warmup,
			Duration:   orDuration(mi.Duration, wc.MatchDuration),
			ScoreLimit: mi.ScoreLimit,
		},
	}
	return spec, nil
}

func parseKind(s string) (world.PartitionKind, error) {
	switch s {
	case "", "open_world":
		return world.KindOpenWorld, nil
	case "instance":
		return world.KindInstance, nil
	case "match":
		return world.KindMatch, nil
	}
	return 0, fmt.Errorf("unknown map kind %q", s)
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}
