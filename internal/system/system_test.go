package system

import (
	"context"
	"errors"
	"testing"

	"github.com/tilesim/tilesim/internal/cache"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/event"
	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/handler"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/persist"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap/zaptest"
)

type sentPayload struct {
	peer     string
	delivery net.Delivery
	data     []byte
}

type fakeTransport struct {
	inbox  []net.Event
	sent   []sentPayload
	kicked []string
	polls  int
}

func (f *fakeTransport) Poll() { f.polls++ }

func (f *fakeTransport) Recv() []net.Event {
	ev := f.inbox
	f.inbox = nil
	return ev
}

func (f *fakeTransport) Send(peer string, d net.Delivery, payload []byte) {
	f.sent = append(f.sent, sentPayload{peer, d, payload})
}

func (f *fakeTransport) Disconnect(peer string) {
	f.kicked = append(f.kicked, peer)
	f.inbox = append(f.inbox, net.Event{Kind: net.EventDisconnect, Peer: peer})
}

func (f *fakeTransport) deliver(t *testing.T, peer string, msgs ...protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.EncodeClientBatch(msgs...)
	if err != nil {
		t.Fatalf("EncodeClientBatch: %v", err)
	}
	f.inbox = append(f.inbox, net.Event{Kind: net.EventData, Peer: peer, Data: data})
}

// takeSent decodes and clears everything sent so far.
func (f *fakeTransport) takeSent(t *testing.T) map[string][]protocol.ServerMessage {
	t.Helper()
	out := make(map[string][]protocol.ServerMessage)
	for _, p := range f.sent {
		msgs, err := protocol.DecodeServerBatch(p.data)
		if err != nil {
			t.Fatalf("DecodeServerBatch: %v", err)
		}
		out[p.peer] = append(out[p.peer], msgs...)
	}
	f.sent = nil
	return out
}

type server struct {
	tx     *fakeTransport
	runner *coresys.Runner
	store  *session.Store
	world  *world.State
	bus    *event.Bus
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zaptest.NewLogger(t)
	cfg := config.Defaults()
	cfg.World.Width, cfg.World.Height = 64, 64
	cfg.World.SpawnX, cfg.World.SpawnY = 10, 10
	cfg.Server.SpawnViewportW, cfg.Server.SpawnViewportH = 160, 96
	cfg.Server.MaxViolations = 2

	grid := world.NewGrid(64, 64, world.DefaultTileTable())
	world.Ring(grid, world.TileStone)
	grid.Fill(1, 20, 63, 63, world.TileStone, world.TileStone)
	ws := world.NewState(grid, true)

	chunks, err := cache.New(cfg.Cache)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(chunks.Close)

	tx := &fakeTransport{}
	store := session.NewStore()
	bus := event.NewBus()
	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, &handler.Deps{
		World: ws, Sessions: store, Chunks: chunks, Bus: bus, Net: tx, Config: cfg, Log: log,
	})

	r := coresys.NewRunner()
	r.Register(NewInputSystem(tx, reg, store, ws, bus, cfg.Network.MaxPayload, cfg.Server.MaxViolations, log))
	r.Register(NewEventSystem(bus))
	r.Register(NewAISystem(ws))
	r.Register(NewPhysicsSystem(ws))
	r.Register(NewSyncSystem(ws, store))
	r.Register(NewOutputSystem(tx, store, cfg.Network.MaxPayload, log))
	r.Register(NewCleanupSystem(ws, log))
	return &server{tx: tx, runner: r, store: store, world: ws, bus: bus}
}

func (s *server) tick() {
	s.runner.Prestep(0)
	s.runner.Step(0, 33333)
	s.runner.Poststep(0)
}

func opcodes(msgs []protocol.ServerMessage) []protocol.Opcode {
	ops := make([]protocol.Opcode, len(msgs))
	for i, m := range msgs {
		ops[i] = m.Opcode()
	}
	return ops
}

func TestServerJoinFlow(t *testing.T) {
	s := newServer(t)

	s.tx.deliver(t, "c1", &protocol.Connect{Version: protocol.Version})
	s.tick()
	got := s.tx.takeSent(t)["c1"]
	if len(got) != 1 || got[0].Opcode() != protocol.OpConnectAccept {
		t.Fatalf("after Connect = %v, want [ConnectAccept]", opcodes(got))
	}

	s.tx.deliver(t, "c1", &protocol.Join{})
	s.tick()
	got = s.tx.takeSent(t)["c1"]
	if len(got) < 3 || got[0].Opcode() != protocol.OpJoinAccept || got[len(got)-1].Opcode() != protocol.OpStart {
		t.Fatalf("join batch = %v", opcodes(got))
	}
	for _, m := range got {
		if m.Opcode() == protocol.OpHumanoidSync {
			t.Fatal("HumanoidSync sent before JoinComplete")
		}
	}

	s.tx.deliver(t, "c1", &protocol.JoinComplete{})
	s.tick()
	got = s.tx.takeSent(t)["c1"]
	if len(got) != 1 {
		t.Fatalf("after JoinComplete = %v, want [HumanoidSync]", opcodes(got))
	}
	hs, ok := got[0].(*protocol.HumanoidSync)
	if !ok {
		t.Fatalf("message = %T, want *protocol.HumanoidSync", got[0])
	}
	sess := s.store.Get("c1")
	if _, ok := hs.Entities[uint32(sess.EntityID)]; !ok {
		t.Fatalf("own entity %d missing from HumanoidSync", sess.EntityID)
	}
}

func TestServerRejectsWrongVersion(t *testing.T) {
	s := newServer(t)
	s.tx.deliver(t, "old", &protocol.Connect{Version: [2]uint8{0, 0}})
	s.tick()

	got := s.tx.takeSent(t)["old"]
	if len(got) != 1 || got[0].Opcode() != protocol.OpConnectReject {
		t.Fatalf("reply = %v, want [ConnectReject]", opcodes(got))
	}
	if s.store.Count() != 0 {
		t.Fatal("rejected peer stored")
	}
}

func TestServerDisconnectRemovesHumanoid(t *testing.T) {
	s := newServer(t)
	var disconnected []event.PeerDisconnected
	event.Subscribe(s.bus, func(e event.PeerDisconnected) { disconnected = append(disconnected, e) })

	s.tx.deliver(t, "c1", &protocol.Connect{Version: protocol.Version}, &protocol.Join{}, &protocol.JoinComplete{})
	s.tick()
	id := s.store.Get("c1").EntityID
	if !s.world.Humanoids.Has(id) {
		t.Fatal("player not spawned")
	}

	s.tx.inbox = append(s.tx.inbox, net.Event{Kind: net.EventDisconnect, Peer: "c1"})
	s.tick()
	if s.store.Get("c1") != nil {
		t.Fatal("session kept after disconnect")
	}
	if s.world.Humanoids.Has(id) {
		t.Fatal("humanoid kept after disconnect")
	}

	// delivered by PreUpdate, once
	s.tick()
	if len(disconnected) != 1 || disconnected[0].EntityID != id {
		t.Fatalf("PeerDisconnected events = %+v", disconnected)
	}

	// a late send to the vanished peer is harmless
	s.tx.deliver(t, "c1", &protocol.Ping{})
	s.tick()
}

func TestServerMalformedBatchesKick(t *testing.T) {
	s := newServer(t)
	s.tx.deliver(t, "c1", &protocol.Connect{Version: protocol.Version})
	s.tick()

	for i := 0; i < 2; i++ {
		s.tx.inbox = append(s.tx.inbox, net.Event{Kind: net.EventData, Peer: "c1", Data: []byte{0xc1}})
	}
	s.tick()
	if len(s.tx.kicked) != 1 {
		t.Fatalf("kicked = %v, want one kick", s.tx.kicked)
	}
	s.tick()
	if s.store.Count() != 0 {
		t.Fatal("kicked session still stored")
	}
}

func TestServerZombieFallsUnderPhysics(t *testing.T) {
	s := newServer(t)
	id := s.world.Spawn(world.AIZombie, 30, 5)
	for i := 0; i < 60; i++ {
		s.tick()
	}
	h, _ := s.world.Humanoids.Get(id)
	if !h.Body.OnGround() {
		t.Fatal("zombie never landed")
	}
	if want := float32(20*world.TileSize - world.HumanoidH); h.Body.Y != want {
		t.Fatalf("zombie Y = %v, want %v", h.Body.Y, want)
	}
}

type fakeSaver struct {
	saved [][]persist.ChunkRow
	err   error
}

func (f *fakeSaver) SaveChunks(_ context.Context, rows []persist.ChunkRow) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rows)
	return nil
}

func TestPersistenceSavesDirtyChunksOnInterval(t *testing.T) {
	grid := world.NewGrid(32, 32, world.DefaultTileTable())
	saver := &fakeSaver{}
	sys := NewPersistenceSystem(grid, saver, zaptest.NewLogger(t), 3)

	grid.SetTile(world.LayerFG, 1, 1, world.TileDirt)
	grid.SetTile(world.LayerFG, 20, 1, world.TileDirt)
	sys.Update(0)
	sys.Update(0)
	if len(saver.saved) != 0 {
		t.Fatal("saved before the interval elapsed")
	}
	sys.Update(0)
	if len(saver.saved) != 1 || len(saver.saved[0]) != 2 {
		t.Fatalf("saves = %v, want one save of 2 chunks", saver.saved)
	}
	if saver.saved[0][0].Seq != 2 {
		t.Fatalf("saved seq = %d, want 2", saver.saved[0][0].Seq)
	}
	if n := sys.SaveDirty(); n != 0 {
		t.Fatalf("second save wrote %d chunks, want 0", n)
	}
}

func TestPersistenceKeepsDirtyOnFailure(t *testing.T) {
	grid := world.NewGrid(32, 32, world.DefaultTileTable())
	saver := &fakeSaver{err: errors.New("db down")}
	sys := NewPersistenceSystem(grid, saver, zaptest.NewLogger(t), 1)

	grid.SetTile(world.LayerBG, 3, 3, world.TileStone)
	if n := sys.SaveDirty(); n != 0 {
		t.Fatalf("SaveDirty = %d on failure, want 0", n)
	}
	saver.err = nil
	if n := sys.SaveDirty(); n != 1 {
		t.Fatalf("retry saved %d chunks, want 1", n)
	}
}

func TestSnapshotCopiesHumanoids(t *testing.T) {
	ws := world.NewState(world.NewGrid(16, 16, world.DefaultTileTable()), false)
	id := ws.Spawn(world.AIZombie, 2, 2)
	msg := Snapshot(ws)
	h, _ := ws.Humanoids.Get(id)
	h.Body.X = 1

	if got := msg.Entities[uint32(id)].Body.X; got != 32 {
		t.Fatalf("snapshot X = %v, want 32 (unaffected by later writes)", got)
	}
}
