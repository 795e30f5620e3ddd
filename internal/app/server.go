// Package app assembles the server and client loops from their parts.
package app

import (
	"context"
	"fmt"
	stdnet "net"
	"time"

	"github.com/tilesim/tilesim/internal/cache"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/clock"
	"github.com/tilesim/tilesim/internal/core/event"
	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/data"
	"github.com/tilesim/tilesim/internal/handler"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/persist"
	"github.com/tilesim/tilesim/internal/scripting"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/system"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// Server owns every part of a running server. Run drives it on the
// calling goroutine; nothing else may touch it until Run returns.
type Server struct {
	cfg   *config.Config
	log   *zap.Logger
	clock clock.Clock

	tx      *net.Transport
	world   *world.State
	store   *session.Store
	bus     *event.Bus
	chunks  *cache.ChunkCache
	db      *persist.DB
	saver   *system.PersistenceSystem
	input   *system.InputSystem
	runner  *coresys.Runner
	sched   *coresys.Scheduler
	zombies int
}

type ServerOptions struct {
	Clock     clock.Clock     // nil = system clock
	Generator world.Generator // nil = from config
}

// NewServer builds the world, restores saved chunks when a database is
// configured and binds the transport.
func NewServer(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ServerOptions) (*Server, error) {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystemClock()
	}
	s := &Server{cfg: cfg, log: log, clock: opts.Clock}

	ws, err := s.buildWorld(opts.Generator)
	if err != nil {
		return nil, err
	}
	s.world = ws

	if cfg.Database.Enabled {
		if err := s.openDB(ctx); err != nil {
			return nil, err
		}
	}

	s.chunks, err = cache.New(cfg.Cache)
	if err != nil {
		s.closeDB()
		return nil, fmt.Errorf("chunk cache: %w", err)
	}

	s.tx, err = net.Listen(cfg.Network.BindAddress, net.ConfigFrom(cfg.Network), s.clock, log)
	if err != nil {
		s.chunks.Close()
		s.closeDB()
		return nil, fmt.Errorf("listen %s: %w", cfg.Network.BindAddress, err)
	}

	s.wire()
	s.spawnZombies()
	return s, nil
}

func (s *Server) buildWorld(gen world.Generator) (*world.State, error) {
	cfg := s.cfg
	tiles := world.DefaultTileTable()
	if cfg.Data.TileTable != "" {
		t, err := data.LoadTileTable(cfg.Data.TileTable)
		if err != nil {
			return nil, err
		}
		tiles = t
	}

	if gen == nil {
		if cfg.Scripting.WorldGen != "" {
			lua, err := scripting.NewWorldGen(cfg.Scripting.WorldGen, s.log)
			if err != nil {
				return nil, fmt.Errorf("worldgen script: %w", err)
			}
			defer lua.Close()
			gen = lua
		} else {
			gen = world.DefaultLayeredGenerator()
		}
	}

	start := time.Now()
	grid := world.NewGrid(cfg.World.Width, cfg.World.Height, tiles)
	if err := gen.Generate(grid, cfg.World.Seed); err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}
	ws := world.NewState(grid, true)
	sx, sy := cfg.World.SpawnX, cfg.World.SpawnY
	ws.ClearArea(sx-1, sy-1, sx+2, sy+3)

	s.log.Info("world ready",
		zap.Int("width", cfg.World.Width),
		zap.Int("height", cfg.World.Height),
		zap.Int64("seed", cfg.World.Seed),
		zap.Duration("took", time.Since(start)),
	)
	return ws, nil
}

// openDB migrates the schema and overlays the saved chunks on the freshly
// generated world. Saved chunks belong to one seed and size only.
func (s *Server) openDB(ctx context.Context) error {
	db, err := persist.NewDB(ctx, s.cfg.Database, s.log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	s.db = db
	if err := db.Migrate(ctx); err != nil {
		s.closeDB()
		return fmt.Errorf("migrations: %w", err)
	}

	w := s.cfg.World
	metas := persist.NewWorldRepo(db)
	meta, err := metas.Load(ctx)
	if err != nil {
		s.closeDB()
		return fmt.Errorf("load world meta: %w", err)
	}
	if meta != nil && (meta.Width != w.Width || meta.Height != w.Height || meta.Seed != w.Seed) {
		s.closeDB()
		return fmt.Errorf("saved world is %dx%d seed %d, config wants %dx%d seed %d",
			meta.Width, meta.Height, meta.Seed, w.Width, w.Height, w.Seed)
	}
	if err := metas.Save(ctx, persist.WorldMeta{Width: w.Width, Height: w.Height, Seed: w.Seed}); err != nil {
		s.closeDB()
		return fmt.Errorf("save world meta: %w", err)
	}

	rows, err := persist.NewChunkRepo(db).LoadChunks(ctx)
	if err != nil {
		s.closeDB()
		return fmt.Errorf("load chunks: %w", err)
	}
	n := persist.Restore(s.world.Grid, rows)
	s.log.Info("restored saved chunks", zap.Int("chunks", n), zap.Int("rows", len(rows)))
	return nil
}

func (s *Server) closeDB() {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

func (s *Server) wire() {
	cfg := s.cfg
	s.store = session.NewStore()
	s.bus = event.NewBus()

	reg := packet.NewRegistry(s.log)
	handler.RegisterAll(reg, &handler.Deps{
		World:    s.world,
		Sessions: s.store,
		Chunks:   s.chunks,
		Bus:      s.bus,
		Net:      s.tx,
		Config:   cfg,
		Log:      s.log,
	})
	s.subscribe()

	s.input = system.NewInputSystem(s.tx, reg, s.store, s.world, s.bus,
		cfg.Network.MaxPayload, cfg.Server.MaxViolations, s.log)

	s.runner = coresys.NewRunner()
	s.runner.Register(s.input)
	s.runner.Register(system.NewEventSystem(s.bus))
	s.runner.Register(system.NewAISystem(s.world))
	s.runner.Register(system.NewPhysicsSystem(s.world))
	s.runner.Register(system.NewSyncSystem(s.world, s.store))
	s.runner.Register(system.NewOutputSystem(s.tx, s.store, cfg.Network.MaxPayload, s.log))
	if s.db != nil {
		s.saver = system.NewPersistenceSystem(s.world.Grid, persist.NewChunkRepo(s.db), s.log, cfg.Database.SaveInterval)
		s.runner.Register(s.saver)
	}
	s.runner.Register(system.NewCleanupSystem(s.world, s.log))

	s.sched = coresys.NewScheduler(s.clock, s.runner, coresys.SchedulerConfig{
		Frame:            cfg.Server.TickRate,
		CatchupMaxSteps:  cfg.Server.CatchupMaxSteps,
		DiagnosticsEvery: cfg.Server.DiagnosticsEvery,
	}, s.log)
}

func (s *Server) subscribe() {
	event.Subscribe(s.bus, func(e event.HumanoidSpawned) {
		if e.Player {
			s.log.Info("player spawned", zap.Uint32("entity", uint32(e.EntityID)))
		}
	})
	event.Subscribe(s.bus, func(e event.PeerDisconnected) {
		s.log.Info("peer left",
			zap.String("addr", e.Addr),
			zap.Uint32("entity", uint32(e.EntityID)),
			zap.String("reason", e.Reason),
		)
	})
	event.Subscribe(s.bus, func(e event.ChunkEdited) {
		s.log.Debug("chunk edited", zap.Uint16("cx", e.CX), zap.Uint16("cy", e.CY), zap.Uint32("seq", e.Seq))
	})
}

// spawnZombies drops zombies on both sides of the spawn point. They fall
// to the surface on the first steps.
func (s *Server) spawnZombies() {
	w := s.cfg.World
	for i := 0; i < w.Zombies; i++ {
		off := 8 * (i/2 + 1)
		if i%2 == 1 {
			off = -off
		}
		x := w.SpawnX + off
		if x < 2 || x > w.Width-3 {
			continue
		}
		s.world.ClearArea(x-1, w.SpawnY-1, x+2, w.SpawnY+3)
		s.world.Spawn(world.AIZombie, x, w.SpawnY)
		s.zombies++
	}
	s.log.Info("zombies spawned", zap.Int("count", s.zombies))
}

// Addr is the bound UDP address.
func (s *Server) Addr() stdnet.Addr { return s.tx.LocalAddr() }

func (s *Server) World() *world.State { return s.world }

func (s *Server) Sessions() *session.Store { return s.store }

// Run drives the tick loop until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("server running",
		zap.String("name", s.cfg.Server.Name),
		zap.Stringer("addr", s.Addr()),
		zap.Duration("tick", s.cfg.Server.TickRate),
	)
	return s.sched.Run(ctx)
}

// Close saves outstanding edits, says goodbye to every peer and releases
// the database, cache and socket. Call it after Run returned.
func (s *Server) Close() error {
	if s.saver != nil {
		if n := s.saver.SaveDirty(); n > 0 {
			s.log.Info("saved chunks on shutdown", zap.Int("chunks", n))
		}
	}
	err := s.tx.Close()
	s.chunks.Close()
	s.closeDB()
	s.log.Info("server stopped")
	return err
}
