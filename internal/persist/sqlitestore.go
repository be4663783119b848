package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/l1jgo/worldcore/internal/world"
)

type sqliteSource struct {
	db *sql.DB
}

func (s *sqliteSource) close() { s.db.Close() }

func (s *sqliteSource) terrain(ctx context.Context, tc world.TileCoord) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT heights FROM tile_terrain WHERE map_id = ? AND gx = ? AND gy = ?`,
		int64(tc.Map), tc.Grid.X, tc.Grid.Y,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load terrain: %w", err)
	}
	return blob, nil
}

func (s *sqliteSource) spawns(ctx context.Context, tc world.TileCoord) ([]world.SpawnRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+spawnColumns+` FROM spawn_records
		 WHERE map_id = ? AND gx = ? AND gy = ? ORDER BY id`,
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

func (s *sqliteSource) putTerrain(ctx context.Context, tc world.TileCoord, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tile_terrain (map_id, gx, gy, heights) VALUES (?, ?, ?, ?)
		 ON CONFLICT (map_id, gx, gy) DO UPDATE SET heights = excluded.heights`,
		int64(tc.Map), tc.Grid.X, tc.Grid.Y, blob,
	)
	if err != nil {
		return fmt.Errorf("put terrain: %w", err)
	}
	return nil
}

func (s *sqliteSource) putSpawns(ctx context.Context, mapID uint32, recs []world.SpawnRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("spawns begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM spawn_records WHERE map_id = ?`, int64(mapID)); err != nil {
		return fmt.Errorf("spawns clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO spawn_records (`+spawnInsertColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("spawns prepare: %w", err)
	}
	defer stmt.Close()
	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx, spawnArgs(mapID, r)...); err != nil {
			return fmt.Errorf("spawns insert %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}
