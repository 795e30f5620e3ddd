package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tilesim/tilesim/internal/client"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

// flatGen is open sky over stone from row 20 down.
type flatGen struct{}

func (flatGen) Generate(g *world.Grid, seed int64) error {
	g.Fill(0, 20, g.Width(), g.Height(), world.TileStone, world.TileStone)
	world.Ring(g, world.TileStone)
	return nil
}

type frameWaiter struct {
	want  int
	n     int
	once  sync.Once
	ready chan struct{}
}

func (f *frameWaiter) Render(*client.RenderSnapshot) {
	f.n++
	if f.n >= f.want {
		f.once.Do(func() { close(f.ready) })
	}
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Network.BindAddress = "127.0.0.1:0"
	cfg.World.Width, cfg.World.Height = 64, 64
	cfg.World.SpawnX, cfg.World.SpawnY = 10, 10
	cfg.World.Zombies = 2
	cfg.Server.TickRate = 10 * time.Millisecond
	cfg.Server.DiagnosticsEvery = 0
	cfg.Server.SpawnViewportW, cfg.Server.SpawnViewportH = 160, 96
	cfg.Client.TickRate = 10 * time.Millisecond
	cfg.Client.ViewportW, cfg.Client.ViewportH = 160, 96
	return cfg
}

func TestClientJoinsOverLoopback(t *testing.T) {
	log := zaptest.NewLogger(t)
	cfg := testConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv, err := NewServer(ctx, cfg, log, ServerOptions{Generator: flatGen{}})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	ccfg := *cfg
	ccfg.Client.ServerAddress = srv.Addr().String()
	frames := &frameWaiter{want: 20, ready: make(chan struct{})}
	cli, err := NewClient(&ccfg, log, ClientOptions{Renderer: frames})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer cli.Close()

	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return cli.Run(gctx) })

	select {
	case <-frames.ready:
	case <-ctx.Done():
	}
	stop()
	if err := g.Wait(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if frames.n < frames.want {
		t.Fatalf("client rendered %d frames before the deadline, want %d", frames.n, frames.want)
	}

	core := cli.Core()
	if core.Phase() != client.PhaseRunning || core.Starts() != 1 {
		t.Fatalf("client phase = %v starts = %d, want Running once", core.Phase(), core.Starts())
	}
	if srv.Sessions().Count() != 1 {
		t.Fatalf("server sessions = %d, want 1", srv.Sessions().Count())
	}

	mirror := core.State().Grid
	authority := srv.World().Grid
	cc := world.ChunkOf(cfg.World.SpawnX, cfg.World.SpawnY)
	if !mirror.Loaded(cc) {
		t.Fatal("spawn chunk never reached the client")
	}
	for y := int(cc.Y) * world.ChunkSize; y < int(cc.Y+1)*world.ChunkSize; y++ {
		for x := int(cc.X) * world.ChunkSize; x < int(cc.X+1)*world.ChunkSize; x++ {
			if mirror.FG(x, y) != authority.FG(x, y) {
				t.Fatalf("tile (%d,%d) = %v on the client, %v on the server", x, y, mirror.FG(x, y), authority.FG(x, y))
			}
		}
	}
	if got, want := core.State().Humanoids.Len(), srv.World().Humanoids.Len(); got != want {
		t.Fatalf("client mirrors %d humanoids, server has %d", got, want)
	}
}

func TestServerWithShippedScriptAndTiles(t *testing.T) {
	cfg := testConfig()
	cfg.World.Width, cfg.World.Height = 128, 140
	cfg.World.SpawnX, cfg.World.SpawnY = 50, 100
	cfg.Scripting.WorldGen = "../../scripts/worldgen/default.lua"
	cfg.Data.TileTable = "../../data/tiles.yaml"

	srv, err := NewServer(context.Background(), cfg, zaptest.NewLogger(t), ServerOptions{})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Close()

	g := srv.World().Grid
	if g.Solid(50, 100) || g.Solid(50, 101) {
		t.Fatal("spawn point is not clear")
	}
	if !g.Solid(50, 139) {
		t.Fatal("bottom ring is not solid")
	}
	if got := srv.World().Humanoids.Len(); got != 2 {
		t.Fatalf("humanoids = %d, want the 2 configured zombies", got)
	}
}
