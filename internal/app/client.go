package app

import (
	"context"
	"fmt"

	"github.com/tilesim/tilesim/internal/client"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/clock"
	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/data"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// Client is a dialled client with its own tick loop.
type Client struct {
	tx    *net.Transport
	core  *client.Client
	sched *coresys.Scheduler
	log   *zap.Logger
}

type ClientOptions struct {
	Clock    clock.Clock // nil = system clock
	Input    client.InputSource
	Renderer client.Renderer
}

// NewClient dials cfg.Client.ServerAddress and starts the join sequence.
// Nothing is exchanged until Run.
func NewClient(cfg *config.Config, log *zap.Logger, opts ClientOptions) (*Client, error) {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystemClock()
	}
	tiles := world.DefaultTileTable()
	if cfg.Data.TileTable != "" {
		t, err := data.LoadTileTable(cfg.Data.TileTable)
		if err != nil {
			return nil, err
		}
		tiles = t
	}

	tx, server, err := net.Dial(cfg.Client.ServerAddress, net.ConfigFrom(cfg.Network), opts.Clock, log)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Client.ServerAddress, err)
	}
	core := client.New(tx, server, cfg.Client, opts.Clock, client.Options{
		Input:      opts.Input,
		Renderer:   opts.Renderer,
		Tiles:      tiles,
		MaxPayload: cfg.Network.MaxPayload,
	}, log)
	core.Connect()

	sched := coresys.NewScheduler(opts.Clock, core, coresys.SchedulerConfig{
		Frame: cfg.Client.TickRate,
	}, log)
	return &Client{tx: tx, core: core, sched: sched, log: log}, nil
}

// Core exposes the client state machine. Only safe once Run returned.
func (c *Client) Core() *client.Client { return c.core }

// Run drives the client until ctx is cancelled or the session ends. It
// returns the reason a session ended, nil on cancellation.
func (c *Client) Run(ctx context.Context) error {
	if err := c.sched.Run(ctx); err != nil {
		return err
	}
	return c.core.Err()
}

func (c *Client) Close() error { return c.tx.Close() }
