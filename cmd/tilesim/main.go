package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tilesim/tilesim/internal/app"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/logging"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              tilesim  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", name)
}

func printSection(title string) {
	lineLen := max(46-len(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("TILESIM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)
	printSection("world")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	srv, err := app.NewServer(bootCtx, cfg, log, app.ServerOptions{})
	cancel()
	if err != nil {
		return err
	}
	printOK(fmt.Sprintf("%dx%d tiles, seed %d", cfg.World.Width, cfg.World.Height, cfg.World.Seed))
	if cfg.Database.Enabled {
		printOK("postgres connected, chunks restored")
	}
	fmt.Println()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", srv.Addr()))
	printReady(fmt.Sprintf("tick %s", cfg.Server.TickRate))
	fmt.Println()

	runErr := srv.Run(ctx)
	log.Info("shutting down", zap.Error(runErr))
	if err := srv.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
