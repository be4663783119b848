package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/worldcore/internal/config"
	"github.com/l1jgo/worldcore/internal/core/ecs"
	"github.com/l1jgo/worldcore/internal/data"
	"github.com/l1jgo/worldcore/internal/handler"
	gonet "github.com/l1jgo/worldcore/internal/net"
	"github.com/l1jgo/worldcore/internal/persist"
	"github.com/l1jgo/worldcore/internal/scripting"
	"github.com/l1jgo/worldcore/internal/telemetry"
	"github.com/l1jgo/worldcore/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            worldcore  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m         持久世界伺服器 · 分區核心         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

// displayWidth counts CJK characters as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/worldd.toml"
	if p := os.Getenv("WORLDCORE_CONFIG"); p != "" {
		cfgPath = p
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfgPath = ""
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to the tile store and run migrations
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := persist.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer store.Close()
	printOK(fmt.Sprintf("%s 連線成功，遷移完成", cfg.Database.Driver))
	fmt.Println()

	// 4. Tracing
	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("追蹤關閉失敗", zap.Error(err))
		}
	}()

	// 5. Load map table
	printSection("資料載入")

	specs, err := data.LoadMaps(cfg.World.MapsFile, cfg)
	if err != nil {
		return fmt.Errorf("load maps: %w", err)
	}
	printStat("地圖", len(specs))

	// 6. Scripting
	var hooks world.Hooks = world.NopHooks{}
	if cfg.Scripting.Enabled {
		engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		hooks = engine
		printOK("Lua 腳本載入完成")
	}
	fmt.Println()

	// 7. World runtime and partitions
	deps := &handler.Deps{Log: log}
	rt := &world.Runtime{
		Alloc:  ecs.NewAllocator(),
		Store:  store,
		Hooks:  hooks,
		Input:  handler.NewInput(deps),
		Tracer: tracer,
	}
	mgr := world.NewManager(rt, specs, log)
	deps.Manager = mgr
	mgr.Start()
	gateway := handler.NewGateway(deps, rt.Alloc, cfg.Network.EnterTimeout)

	// 8. Create network servers
	var ids atomic.Uint64
	opts := gonet.SessionOptions{
		InQueue:         cfg.Network.InQueueSize,
		OutQueue:        cfg.Network.OutQueueSize,
		PktPerSec:       cfg.Network.PacketsPerSecond,
		WriteTimeout:    cfg.Network.WriteTimeout,
		MaxSendFailures: cfg.Network.MaxSendFailures,
	}
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, &ids, opts, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	var wsServer *gonet.WSServer
	if cfg.Network.WSAddress != "" {
		wsServer, err = gonet.NewWSServer(cfg.Network.WSAddress, &ids, opts, log)
		if err != nil {
			netServer.Shutdown()
			return fmt.Errorf("ws server: %w", err)
		}
		go wsServer.Serve()
	}

	// 9. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printStat("世界分區", mgr.Len())
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	if wsServer != nil {
		printReady(fmt.Sprintf("WebSocket 位址 %s/ws", wsServer.Addr().String()))
	}
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	var wsSessions <-chan *gonet.Session
	if wsServer != nil {
		wsSessions = wsServer.NewSessions()
	}

	for {
		select {
		case sess := <-netServer.NewSessions():
			gateway.Accept(sess, time.Now())
		case sess := <-wsSessions:
			gateway.Accept(sess, time.Now())
		case <-ticker.C:
			gateway.Poll(time.Now())
			if err := mgr.Tick(loopCtx, cfg.Network.TickRate); err != nil {
				log.Error("世界更新失敗", zap.Error(err))
			}
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			netServer.Shutdown()
			if wsServer != nil {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = wsServer.Shutdown(sctx)
				scancel()
			}
			mgr.Shutdown()
			log.Info("伺服器已關閉")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
