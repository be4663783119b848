// tilepack imports static world data into the tile store.
//
// Usage:
//
//	go run ./cmd/tilepack <command> [-config path] [-spawns path] [-terrain dir]
//
// Commands: spawns, terrain, all
//
// Terrain dumps are read from <terrain dir>/<map id>.txt; see
// data.ReadTerrain for the format.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/data"
	"github.com/l1jgo/worldcore/internal/persist"
)

func printUsage() {
	fmt.Println("Usage: tilepack <command> [-config path] [-spawns path] [-terrain dir]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  spawns   import spawn records from a YAML spawn list")
	fmt.Println("  terrain  import height fields from <terrain dir>/<map id>.txt")
	fmt.Println("  all      spawns, then terrain")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	cfgPath := fs.String("config", "", "server config (TOML); empty uses defaults and environment")
	spawnPath := fs.String("spawns", filepath.Join("data", "yaml", "spawns.yaml"), "spawn list YAML")
	terrainDir := fs.String("terrain", filepath.Join("data", "terrain"), "terrain dump directory")
	_ = fs.Parse(os.Args[2:])

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	store, err := persist.Open(ctx, cfg.Database, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	importers := map[string]func() error{
		"spawns":  func() error { return importSpawns(ctx, store, *spawnPath) },
		"terrain": func() error { return importTerrain(ctx, store, *terrainDir) },
	}

	var order []string
	if cmd == "all" {
		order = []string{"spawns", "terrain"}
	} else if _, ok := importers[cmd]; ok {
		order = []string{cmd}
	} else {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	for _, name := range order {
		if err := importers[name](); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR [%s]: %v\n", name, err)
			os.Exit(1)
		}
	}
	fmt.Println("Done!")
}

func importSpawns(ctx context.Context, store *persist.TileStore, path string) error {
	spawns, err := data.LoadSpawns(path)
	if err != nil {
		return err
	}
	maps := make([]uint32, 0, len(spawns))
	for id := range spawns {
		maps = append(maps, id)
	}
	sort.Slice(maps, func(i, j int) bool { return maps[i] < maps[j] })
	for _, id := range maps {
		if err := store.PutSpawns(ctx, id, spawns[id]); err != nil {
			return fmt.Errorf("map %d: %w", id, err)
		}
		fmt.Printf("  map %d: %d spawns\n", id, len(spawns[id]))
	}
	return nil
}

func importTerrain(ctx context.Context, store *persist.TileStore, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".txt" {
			continue
		}
		mapID, err := strconv.ParseUint(strings.TrimSuffix(name, ".txt"), 10, 32)
		if err != nil {
			continue // not a map dump
		}
		n, err := importTerrainFile(ctx, store, uint32(mapID), filepath.Join(dir, name))
		if err != nil {
			return err
		}
		fmt.Printf("  map %d: %d grids\n", mapID, n)
	}
	return nil
}

func importTerrainFile(ctx context.Context, store *persist.TileStore, mapID uint32, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	grids, err := data.ReadTerrain(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for i := range grids {
		if err := store.PutTerrain(ctx, mapID, grids[i].Grid, &grids[i].Terrain); err != nil {
			return 0, fmt.Errorf("%s: grid %d,%d: %w", path, grids[i].Grid.X, grids[i].Grid.Y, err)
		}
	}
	return len(grids), nil
}
