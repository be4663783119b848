package persist

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/object"
	"github.com/l1jgo/worldcore/internal/world"
)

// tileSource is one SQL backend of the tile store.
type tileSource interface {
	terrain(ctx context.Context, tc world.TileCoord) ([]byte, error) // nil blob: no row
	spawns(ctx context.Context, tc world.TileCoord) ([]world.SpawnRecord, error)
	putTerrain(ctx context.Context, tc world.TileCoord, blob []byte) error
	putSpawns(ctx context.Context, mapID uint32, recs []world.SpawnRecord) error
	close()
}

// TileStore serves static terrain and spawn records to partitions and
// accepts bulk imports from the tile packer.
type TileStore struct {
	src   tileSource
	cache *terrainCache
	log   *zap.Logger
}

var _ world.Store = (*TileStore)(nil)

// Open connects to the configured backend and applies migrations.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*TileStore, error) {
	var src tileSource
	switch cfg.Driver {
	case "postgres":
		db, err := NewDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, err
		}
		src = &pgSource{db: db}
	case "sqlite":
		db, err := OpenSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := RunSQLiteMigrations(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		src = &sqliteSource{db: db}
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	log.Info("資料庫已連線", zap.String("driver", cfg.Driver))
	return &TileStore{src: src, cache: newTerrainCache(), log: log}, nil
}

func (s *TileStore) Close() { s.src.close() }

func (s *TileStore) LoadStaticTileData(ctx context.Context, mapID uint32, g world.GridCoord) (*world.Terrain, error) {
	tc := world.TileCoord{Map: mapID, Grid: g}
	return s.cache.acquire(ctx, tc, func(ctx context.Context) (*world.Terrain, error) {
		blob, err := s.src.terrain(ctx, tc)
		if err != nil || blob == nil {
			return nil, err
		}
		return DecodeTerrain(blob)
	})
}

func (s *TileStore) ReleaseStaticTileData(mapID uint32, g world.GridCoord) {
	s.cache.release(world.TileCoord{Map: mapID, Grid: g})
}

func (s *TileStore) LoadDynamicEntities(ctx context.Context, tc world.TileCoord) ([]world.SpawnRecord, error) {
	recs, err := s.src.spawns(ctx, tc)
	if err != nil {
		return nil, err
	}
	s.log.Debug("載入生成點", zap.Uint32("map", tc.Map), zap.Int32("gx", tc.Grid.X), zap.Int32("gy", tc.Grid.Y), zap.Int("count", len(recs)))
	return recs, nil
}

// PutTerrain stores or replaces the height field of one grid.
func (s *TileStore) PutTerrain(ctx context.Context, mapID uint32, g world.GridCoord, t *world.Terrain) error {
	blob, err := EncodeTerrain(t)
	if err != nil {
		return err
	}
	return s.src.putTerrain(ctx, world.TileCoord{Map: mapID, Grid: g}, blob)
}

// PutSpawns replaces the spawn records of mapID in a single transaction.
// Every record must lie on the map.
func (s *TileStore) PutSpawns(ctx context.Context, mapID uint32, recs []world.SpawnRecord) error {
	for _, r := range recs {
		if r.Kind == object.KindPlayer || !r.Kind.Valid() {
			return fmt.Errorf("spawn %d: kind %s cannot be stored", r.ID, r.Kind)
		}
		if err := world.ValidatePosition(r.Pos, world.Bounds{}); err != nil {
			return fmt.Errorf("spawn %d: %w", r.ID, err)
		}
	}
	return s.src.putSpawns(ctx, mapID, recs)
}

// scanner is satisfied by pgx.Rows and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const spawnColumns = `id, kind, entry, x, y, z, o, display_id, level, health, faction,
	npc_flags, team, trainer_class, quest_entry, respawn_ms, active`

func scanSpawn(row scanner) (world.SpawnRecord, error) {
	var (
		id, kind, entry, display, level, health, faction int64
		npcFlags, team, trainer, quest, respawnMs        int64
		x, y, z, o                                       float64
		active                                           bool
	)
	if err := row.Scan(&id, &kind, &entry, &x, &y, &z, &o, &display, &level, &health, &faction,
		&npcFlags, &team, &trainer, &quest, &respawnMs, &active); err != nil {
		return world.SpawnRecord{}, err
	}
	return world.SpawnRecord{
		ID:           uint64(id),
		Kind:         object.Kind(kind),
		Entry:        uint32(entry),
		Pos:          object.Position{X: float32(x), Y: float32(y), Z: float32(z), O: float32(o)},
		DisplayID:    uint32(display),
		Level:        uint32(level),
		Health:       uint32(health),
		Faction:      uint32(faction),
		NpcFlags:     uint32(npcFlags),
		Team:         uint32(team),
		TrainerClass: uint32(trainer),
		QuestEntry:   uint32(quest),
		RespawnDelay: time.Duration(respawnMs) * time.Millisecond,
		Active:       active,
	}, nil
}

// spawnArgs returns the insert arguments of r, in spawnInsertColumns order.
func spawnArgs(mapID uint32, r world.SpawnRecord) []any {
	g := world.GridOf(r.Pos.X, r.Pos.Y)
	return []any{
		int64(r.ID), int64(mapID), g.X, g.Y, int64(r.Kind), int64(r.Entry),
		float64(r.Pos.X), float64(r.Pos.Y), float64(r.Pos.Z), float64(r.Pos.O),
		int64(r.DisplayID), int64(r.Level), int64(r.Health), int64(r.Faction),
		int64(r.NpcFlags), int64(r.Team), int64(r.TrainerClass), int64(r.QuestEntry),
		r.RespawnDelay.Milliseconds(), r.Active,
	}
}

const spawnInsertColumns = `id, map_id, gx, gy, kind, entry, x, y, z, o, display_id, level, health,
	faction, npc_flags, team, trainer_class, quest_entry, respawn_ms, active`
