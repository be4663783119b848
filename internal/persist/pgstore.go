package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/l1jgo/worldcore/internal/world"
)

type pgSource struct {
	db *DB
}

func (s *pgSource) close() { s.db.Close() }

func (s *pgSource) terrain(ctx context.Context, tc world.TileCoord) ([]byte, error) {
	var blob []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT heights FROM tile_terrain WHERE map_id = $1 AND gx = $2 AND gy = $3`,
		int64(tc.Map), tc.Grid.X, tc.Grid.Y,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load terrain: %w", err)
	}
	return blob, nil
}

func (s *pgSource) spawns(ctx context.Context, tc world.TileCoord) ([]world.SpawnRecord, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT `+spawnColumns+` FROM spawn_records
		 WHERE map_id = $1 AND gx = $2 AND gy = $3 ORDER BY id`,
		int64(tc.Map), tc.Grid.X, tc.Grid.Y,
	)
	if err != nil {
		return nil, fmt.Errorf("load spawns: %w", err)
	}
	defer rows.Close()

	var out []world.SpawnRecord
	for rows.Next() {
		r, err := scanSpawn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spawn: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgSource) putTerrain(ctx context.Context, tc world.TileCoord, blob []byte) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO tile_terrain (map_id, gx, gy, heights) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (map_id, gx, gy) DO UPDATE SET heights = EXCLUDED.heights`,
		int64(tc.Map), tc.Grid.X, tc.Grid.Y, blob,
	)
	if err != nil {
		return fmt.Errorf("put terrain: %w", err)
	}
	return nil
}

func (s *pgSource) putSpawns(ctx context.Context, mapID uint32, recs []world.SpawnRecord) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("spawns begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM spawn_records WHERE map_id = $1`, int64(mapID)); err != nil {
		return fmt.Errorf("spawns clear: %w", err)
	}
	for _, r := range recs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO spawn_records (`+spawnInsertColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			spawnArgs(mapID, r)...,
		); err != nil {
			return fmt.Errorf("spawns insert %d: %w", r.ID, err)
		}
	}
	return tx.Commit(ctx)
}
