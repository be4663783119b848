package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Network.TickRate != 100*time.Millisecond {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Server.StartTime == 0 {
		t.Fatalf("start time not set")
	}
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldd.toml")
	body := `
[database]
driver = "sqlite"
dsn = "file:world.db"

[world]
grey_zone = 30
grid_expiry = "2m"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WORLDCORE_DATABASE_DSN", "file:override.db")
	t.Setenv("WORLDCORE_NETWORK_TICK_RATE", "50ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "file:override.db" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.World.GreyZone != 30 || cfg.World.GridExpiry != 2*time.Minute {
		t.Fatalf("world = %+v", cfg.World)
	}
	if cfg.Network.TickRate != 50*time.Millisecond {
		t.Fatalf("tick rate = %s", cfg.Network.TickRate)
	}
	if cfg.World.OpenWorldRadius != 100 {
		t.Fatalf("untouched default lost: %v", cfg.World.OpenWorldRadius)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for name, env := range map[string][2]string{
		"driver":    {"WORLDCORE_DATABASE_DRIVER", "mysql"},
		"tick":      {"WORLDCORE_NETWORK_TICK_RATE", "0s"},
		"radius":    {"WORLDCORE_WORLD_OPEN_WORLD_RADIUS", "0"},
		"grey zone": {"WORLDCORE_WORLD_GREY_ZONE", "-1"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			if _, err := Load(""); err == nil {
				t.Fatalf("%s=%s accepted", env[0], env[1])
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
