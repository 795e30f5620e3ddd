package handler

import (
	"testing"

	"github.com/tilesim/tilesim/internal/cache"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/event"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type fakeNet struct {
	kicked []string
}

func (f *fakeNet) Disconnect(peer string) { f.kicked = append(f.kicked, peer) }

type captured struct {
	payloads [][]byte
}

func (c *captured) Send(_ string, _ net.Delivery, payload []byte) {
	c.payloads = append(c.payloads, payload)
}

type fixture struct {
	deps *Deps
	reg  *packet.Registry
	net  *fakeNet
}

func newFixture(t *testing.T, log *zap.Logger) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.World.Width, cfg.World.Height = 64, 64
	cfg.World.SpawnX, cfg.World.SpawnY = 10, 10
	cfg.Server.SpawnViewportW, cfg.Server.SpawnViewportH = 160, 96
	cfg.Server.MaxViolations = 3
	cfg.Server.EditReach = 4

	chunks, err := cache.New(cfg.Cache)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(chunks.Close)

	grid := world.NewGrid(64, 64, world.DefaultTileTable())
	world.Ring(grid, world.TileStone)
	fn := &fakeNet{}
	deps := &Deps{
		World:    world.NewState(grid, true),
		Sessions: session.NewStore(),
		Chunks:   chunks,
		Bus:      event.NewBus(),
		Net:      fn,
		Config:   cfg,
		Log:      log,
	}
	reg := packet.NewRegistry(log)
	RegisterAll(reg, deps)
	return &fixture{deps: deps, reg: reg, net: fn}
}

func (f *fixture) dispatch(t *testing.T, sess *session.Session, msg protocol.ClientMessage) {
	t.Helper()
	if err := f.reg.Dispatch(sess, sess.State(), msg); err != nil {
		t.Fatalf("Dispatch %s: %v", msg.Opcode(), err)
	}
}

// drain flushes everything queued on sess and decodes it.
func drain(t *testing.T, sess *session.Session) []protocol.ServerMessage {
	t.Helper()
	c := &captured{}
	if err := sess.Flush(c, 1<<20); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	var out []protocol.ServerMessage
	for _, p := range c.payloads {
		msgs, err := protocol.DecodeServerBatch(p)
		if err != nil {
			t.Fatalf("DecodeServerBatch: %v", err)
		}
		out = append(out, msgs...)
	}
	return out
}

// joined walks a fresh session through Connect, Join and JoinComplete.
func (f *fixture) joined(t *testing.T, addr string) *session.Session {
	t.Helper()
	sess := session.New(addr, f.deps.Log)
	f.dispatch(t, sess, &protocol.Connect{Version: protocol.Version})
	f.dispatch(t, sess, &protocol.Join{})
	f.dispatch(t, sess, &protocol.JoinComplete{})
	drain(t, sess)
	return sess
}

func TestConnectVersionMismatchRejected(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := session.New("peer:1", f.deps.Log)

	f.dispatch(t, sess, &protocol.Connect{Version: [2]uint8{9, 9}})

	msgs := drain(t, sess)
	if len(msgs) != 1 {
		t.Fatalf("replies = %d, want 1", len(msgs))
	}
	rej, ok := msgs[0].(*protocol.ConnectReject)
	if !ok {
		t.Fatalf("reply = %T, want *protocol.ConnectReject", msgs[0])
	}
	if rej.Version != protocol.Version {
		t.Fatalf("reject version = %v, want %v", rej.Version, protocol.Version)
	}
	if f.deps.Sessions.Count() != 0 {
		t.Fatal("rejected peer was added to the session store")
	}
	if sess.State() != packet.StateConnecting {
		t.Fatalf("state = %v, want Connecting", sess.State())
	}
}

func TestConnectAccepted(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := session.New("peer:1", f.deps.Log)

	f.dispatch(t, sess, &protocol.Connect{Version: protocol.Version})
	// client retry while the accept is in flight
	f.dispatch(t, sess, &protocol.Connect{Version: protocol.Version})

	msgs := drain(t, sess)
	if len(msgs) != 2 {
		t.Fatalf("replies = %d, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Opcode() != protocol.OpConnectAccept {
			t.Fatalf("reply = %s, want ConnectAccept", m.Opcode())
		}
	}
	if f.deps.Sessions.Get("peer:1") != sess {
		t.Fatal("accepted peer missing from the session store")
	}
	if sess.State() != packet.StateConnected {
		t.Fatalf("state = %v, want Connected", sess.State())
	}
}

func TestJoinBatch(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := session.New("peer:1", f.deps.Log)
	f.dispatch(t, sess, &protocol.Connect{Version: protocol.Version})
	drain(t, sess)

	f.dispatch(t, sess, &protocol.Join{})
	msgs := drain(t, sess)

	want := SpawnChunks(f.deps.World.Grid, 10, 10, 160, 96)
	if want.Len() != 9 {
		t.Fatalf("spawn rect = %+v, want 3x3 chunks", want)
	}
	if len(msgs) != want.Len()+2 {
		t.Fatalf("join batch = %d messages, want %d", len(msgs), want.Len()+2)
	}
	ja, ok := msgs[0].(*protocol.JoinAccept)
	if !ok {
		t.Fatalf("first message = %T, want *protocol.JoinAccept", msgs[0])
	}
	if ja.WorldW != 64 || ja.WorldH != 64 || ja.SpawnX != 10 || ja.SpawnY != 10 {
		t.Fatalf("JoinAccept = %+v", ja)
	}
	if ja.EntityID != uint32(sess.EntityID) || !f.deps.World.Humanoids.Has(sess.EntityID) {
		t.Fatalf("JoinAccept entity %d not spawned", ja.EntityID)
	}
	for i, m := range msgs[1 : len(msgs)-1] {
		cs, ok := m.(*protocol.ChunkSync)
		if !ok {
			t.Fatalf("message %d = %T, want *protocol.ChunkSync", i+1, m)
		}
		if cs.Seq != 1 {
			t.Fatalf("chunk (%d,%d) seq = %d, want 1", cs.CX, cs.CY, cs.Seq)
		}
		if !want.Contains(world.ChunkCoord{X: cs.CX, Y: cs.CY}) {
			t.Fatalf("chunk (%d,%d) outside spawn rect", cs.CX, cs.CY)
		}
	}
	if msgs[len(msgs)-1].Opcode() != protocol.OpStart {
		t.Fatalf("last message = %s, want Start", msgs[len(msgs)-1].Opcode())
	}
	if sess.State() != packet.StateJoining {
		t.Fatalf("state = %v, want Joining", sess.State())
	}
	if f.deps.Bus.Pending() != 1 {
		t.Fatalf("pending events = %d, want HumanoidSpawned", f.deps.Bus.Pending())
	}

	f.dispatch(t, sess, &protocol.JoinComplete{})
	if !sess.JoinComplete || sess.State() != packet.StateInWorld {
		t.Fatalf("after JoinComplete: complete=%v state=%v", sess.JoinComplete, sess.State())
	}
}

func TestJoinRequiresConnect(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := session.New("peer:1", f.deps.Log)
	if err := f.reg.Dispatch(sess, sess.State(), &protocol.Join{}); err == nil {
		t.Fatal("Join dispatched before Connect")
	}
	if f.deps.World.Humanoids.Len() != 0 {
		t.Fatal("humanoid spawned for an unadmitted peer")
	}
}

func TestRequestChunkSeq(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newFixture(t, zap.New(core))
	sess := f.joined(t, "peer:1")

	c := world.ChunkCoord{X: 2, Y: 3}
	fg, bg, _ := f.deps.World.Grid.ExtractChunk(c)
	f.deps.World.Grid.LoadChunk(c, 5, &fg, &bg)

	tests := []struct {
		name      string
		seq       uint32
		wantSync  bool
		wantWarns int
	}{
		{"current", 5, false, 0},
		{"stale", 3, true, 0},
		{"never had it", 0, true, 0},
		{"ahead", 7, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := logs.Len()
			f.dispatch(t, sess, &protocol.RequestChunk{CX: 2, CY: 3, Seq: tt.seq})
			msgs := drain(t, sess)
			if tt.wantSync {
				if len(msgs) != 1 {
					t.Fatalf("replies = %d, want 1", len(msgs))
				}
				cs := msgs[0].(*protocol.ChunkSync)
				if cs.CX != 2 || cs.CY != 3 || cs.Seq != 5 {
					t.Fatalf("ChunkSync = (%d,%d) seq %d, want (2,3) seq 5", cs.CX, cs.CY, cs.Seq)
				}
			} else if len(msgs) != 0 {
				t.Fatalf("replies = %d, want none", len(msgs))
			}
			if got := logs.Len() - before; got != tt.wantWarns {
				t.Fatalf("warnings = %d, want %d", got, tt.wantWarns)
			}
		})
	}
}

func TestRepeatedViolationsDisconnect(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := f.joined(t, "peer:1")

	for i := 0; i < 2; i++ {
		f.dispatch(t, sess, &protocol.RequestChunk{CX: 1000, CY: 0})
	}
	if len(f.net.kicked) != 0 {
		t.Fatal("kicked before reaching the violation limit")
	}
	f.dispatch(t, sess, &protocol.RequestChunk{CX: 1, CY: 1, Seq: 99})
	if len(f.net.kicked) != 1 || f.net.kicked[0] != "peer:1" {
		t.Fatalf("kicked = %v, want [peer:1]", f.net.kicked)
	}
	if !sess.PendingDisconnect {
		t.Fatal("session not marked pending disconnect")
	}
}

func TestEditTile(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := f.joined(t, "peer:1")
	grid := f.deps.World.Grid
	f.deps.Bus.Swap() // discard HumanoidSpawned

	// player spans tiles (10..11, 10..11); its centre is tile (10, 10)
	f.dispatch(t, sess, &protocol.EditTile{X: 12, Y: 13, Layer: uint8(world.LayerFG), Tile: uint8(world.TileDirt)})
	if grid.FG(12, 13) != world.TileDirt {
		t.Fatal("edit not applied")
	}
	if seq := grid.ChunkSeq(world.ChunkOf(12, 13)); seq != 2 {
		t.Fatalf("chunk seq after edit = %d, want 2", seq)
	}
	if f.deps.Bus.Pending() != 1 {
		t.Fatalf("pending events = %d, want ChunkEdited", f.deps.Bus.Pending())
	}

	rejected := []struct {
		name string
		msg  protocol.EditTile
	}{
		{"out of reach", protocol.EditTile{X: 30, Y: 10, Tile: uint8(world.TileDirt)}},
		{"ring", protocol.EditTile{X: 0, Y: 10, Tile: uint8(world.TileNone)}},
		{"bad tile", protocol.EditTile{X: 11, Y: 11, Tile: 200}},
		{"bad layer", protocol.EditTile{X: 11, Y: 11, Layer: 7, Tile: uint8(world.TileDirt)}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			before := grid.ChunkSeq(world.ChunkOf(int(msg.X), int(msg.Y)))
			f.dispatch(t, sess, &msg)
			if got := grid.ChunkSeq(world.ChunkOf(int(msg.X), int(msg.Y))); got != before {
				t.Fatalf("chunk seq changed %d -> %d", before, got)
			}
		})
	}
	if grid.FG(0, 10) != world.TileStone {
		t.Fatal("ring tile was removed")
	}
}

func TestSyncPlayerAdoptsInputOnly(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := f.joined(t, "peer:1")
	h, _ := f.deps.World.Humanoids.Get(sess.EntityID)
	x0 := h.Body.X

	var pushed world.Humanoid
	pushed.Body.X = 999
	pushed.Input.Set(world.ActionRight, true)
	f.dispatch(t, sess, &protocol.SyncPlayer{Entity: pushed})

	if !h.Input.Held(world.ActionRight) {
		t.Fatal("input not adopted")
	}
	if h.Body.X != x0 {
		t.Fatalf("position = %v, want server-owned %v", h.Body.X, x0)
	}
}

func TestPingReplies(t *testing.T) {
	f := newFixture(t, zaptest.NewLogger(t))
	sess := f.joined(t, "peer:1")
	f.dispatch(t, sess, &protocol.Ping{})
	msgs := drain(t, sess)
	if len(msgs) != 1 || msgs[0].Opcode() != protocol.OpServerPing {
		t.Fatalf("replies = %v, want [ServerPing]", msgs)
	}
}
