// tileclient runs a fleet of headless bot clients against a server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tilesim/tilesim/internal/app"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("TILESIM_CONFIG"); p != "" {
		cfgPath = p
	}
	addr := flag.String("addr", "", "server address, overrides client.server_address")
	bots := flag.Int("bots", 0, "number of bots, overrides bots.count")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Client.ServerAddress = *addr
	}
	if *bots > 0 {
		cfg.Bots.Count = *bots
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Bots.Count; i++ {
		blog := log.With(zap.Int("bot", i))
		cli, err := app.NewClient(cfg, blog, app.ClientOptions{
			Input:    newWanderer(int64(i)),
			Renderer: &frameLogger{log: blog, every: 600},
		})
		if err != nil {
			return fmt.Errorf("bot %d: %w", i, err)
		}
		g.Go(func() error {
			defer cli.Close()
			if err := cli.Run(gctx); err != nil {
				return fmt.Errorf("bot %d: %w", i, err)
			}
			return nil
		})
	}
	log.Info("bots started", zap.Int("count", cfg.Bots.Count), zap.String("server", cfg.Client.ServerAddress))

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}
