// Package client is the client side of the simulation: the join state
// machine, the mirrored world and the per-frame render snapshot.
package client

import (
	"errors"
	"fmt"

	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/clock"
	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

var (
	ErrVersionRejected = errors.New("client: server rejected protocol version")
	ErrConnectTimeout  = errors.New("client: no answer to connect")
	ErrServerClosed    = errors.New("client: server closed the connection")
)

// Phase is the client's position in the join sequence.
type Phase uint8

const (
	PhaseIdle       Phase = iota
	PhaseConnecting       // Connect sent, waiting for ConnectAccept
	PhaseJoining          // Join sent, waiting for JoinAccept
	PhaseLoading          // grid allocated, applying chunks until Start
	PhaseRunning
	PhaseRejected // terminal
	PhaseClosed   // terminal
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseConnecting:
		return "Connecting"
	case PhaseJoining:
		return "Joining"
	case PhaseLoading:
		return "Loading"
	case PhaseRunning:
		return "Running"
	case PhaseRejected:
		return "Rejected"
	case PhaseClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

func (p Phase) terminal() bool { return p == PhaseRejected || p == PhaseClosed }

// Transport is what the client needs from the network layer.
type Transport interface {
	Poll()
	Recv() []net.Event
	Send(peer string, d net.Delivery, payload []byte)
}

// Client implements the scheduler's Loop. All methods run on the tick
// goroutine.
type Client struct {
	tx       Transport
	server   string
	cfg      config.ClientConfig
	clock    clock.Clock
	tiles    *world.TileTable
	input    InputSource
	renderer Renderer
	log      *zap.Logger

	maxPayload int

	phase        Phase
	err          error
	attempts     int
	lastConnect  uint64
	lastPing     uint64
	lastPong     uint64
	startPending bool
	starts       int

	state        *world.State
	self         ecs.EntityID
	spawnX       int
	spawnY       int
	predictLeft  int
	predicted    map[world.ChunkCoord]struct{}
	lastInput    InputFrame
	snapshot     *RenderSnapshot
	outOrdered   []protocol.ClientMessage
	outUnordered []protocol.ClientMessage
}

type Options struct {
	Input      InputSource // nil = no input
	Renderer   Renderer    // nil = snapshots are built but not handed out
	Tiles      *world.TileTable
	MaxPayload int
}

// New returns an idle client that will talk to the transport peer server.
func New(tx Transport, server string, cfg config.ClientConfig, clk clock.Clock, opts Options, log *zap.Logger) *Client {
	if opts.Tiles == nil {
		opts.Tiles = world.DefaultTileTable()
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = 60000
	}
	return &Client{
		tx:         tx,
		server:     server,
		cfg:        cfg,
		clock:      clk,
		tiles:      opts.Tiles,
		input:      opts.Input,
		renderer:   opts.Renderer,
		maxPayload: opts.MaxPayload,
		predicted:  make(map[world.ChunkCoord]struct{}),
		log:        log,
	}
}

func (c *Client) Phase() Phase { return c.phase }

// Err is the reason the client stopped, nil while it is still live.
func (c *Client) Err() error { return c.err }

// State is the mirrored world, nil before JoinAccept.
func (c *Client) State() *world.State { return c.state }

// Self is the id of the locally controlled humanoid.
func (c *Client) Self() ecs.EntityID { return c.self }

// Starts counts how many times the client entered Running.
func (c *Client) Starts() int { return c.starts }

// LastPong is the clock time of the last ServerPing, 0 if none arrived.
func (c *Client) LastPong() uint64 { return c.lastPong }

// Snapshot is the last render snapshot built by Poststep.
func (c *Client) Snapshot() *RenderSnapshot { return c.snapshot }

// Connect starts the join sequence.
func (c *Client) Connect() {
	if c.phase != PhaseIdle {
		return
	}
	c.setPhase(PhaseConnecting)
	c.sendConnect()
}

func (c *Client) sendConnect() {
	c.attempts++
	c.lastConnect = c.clock.Micros()
	c.queue(net.ReliableUnordered, &protocol.Connect{Version: protocol.Version})
	c.log.Debug("connect sent", zap.Int("attempt", c.attempts))
}

func (c *Client) setPhase(p Phase) {
	if c.phase != p {
		c.log.Debug("client phase", zap.Stringer("from", c.phase), zap.Stringer("to", p))
	}
	c.phase = p
}

func (c *Client) fail(p Phase, err error) {
	if c.phase.terminal() {
		return
	}
	c.err = err
	c.setPhase(p)
	c.log.Info("client stopped", zap.Error(err))
}

// Close stops the client without an error. The next Prestep terminates
// the loop.
func (c *Client) Close() {
	if !c.phase.terminal() {
		c.setPhase(PhaseClosed)
	}
}

// Prestep drains the transport and local input. It reports terminate once
// the client reached Rejected or Closed.
func (c *Client) Prestep(ts uint64) bool {
	c.tx.Poll()
	for _, ev := range c.tx.Recv() {
		switch ev.Kind {
		case net.EventDisconnect:
			if ev.Peer == c.server {
				c.fail(PhaseClosed, ErrServerClosed)
			}
		case net.EventData:
			if ev.Peer == c.server {
				c.handleData(ev.Data)
			}
		}
	}

	now := c.clock.Micros()
	if c.phase == PhaseConnecting && now-c.lastConnect >= uint64(c.cfg.ConnectRetry.Microseconds()) {
		if c.cfg.ConnectAttempts > 0 && c.attempts >= c.cfg.ConnectAttempts {
			c.fail(PhaseClosed, fmt.Errorf("%w after %d attempts", ErrConnectTimeout, c.attempts))
		} else {
			c.sendConnect()
		}
	}

	if c.phase == PhaseRunning && c.input != nil {
		c.applyInput(c.input.Poll())
	}
	return c.phase.terminal()
}

// Step runs local physics on the mirror for smooth rendering and own-player
// prediction.
func (c *Client) Step(ts, ft uint64) {
	if c.phase != PhaseRunning {
		return
	}
	c.state.Step(float32(ft) / 1e6)
	if c.predictLeft > 0 {
		c.predictLeft--
	}
}

// Poststep requests stale chunks, pushes the own player, builds the render
// snapshot and flushes everything queued this tick.
func (c *Client) Poststep(ts uint64) {
	if c.phase == PhaseRunning {
		var sequenced []protocol.ClientMessage
		sequenced = c.requestChunks(sequenced)
		if h, ok := c.state.Humanoids.Get(c.self); ok {
			sequenced = append(sequenced, &protocol.SyncPlayer{Entity: *h})
		}
		now := c.clock.Micros()
		if now-c.lastPing >= uint64(c.cfg.PingInterval.Microseconds()) {
			c.lastPing = now
			c.queue(net.ReliableUnordered, &protocol.Ping{})
		}
		// edits go out before the requests that resync their chunks
		c.flushOrdered()
		c.send(net.UnreliableSequenced, sequenced)

		c.snapshot = c.buildSnapshot(ts)
		if c.renderer != nil {
			c.renderer.Render(c.snapshot)
		}
	}
	c.flushOrdered()
	c.send(net.ReliableUnordered, c.outUnordered)
	c.outUnordered = c.outUnordered[:0]
	c.tx.Poll()
}

func (c *Client) flushOrdered() {
	c.send(net.ReliableOrdered, c.outOrdered)
	c.outOrdered = c.outOrdered[:0]
}

func (c *Client) queue(d net.Delivery, m protocol.ClientMessage) {
	if d == net.ReliableOrdered {
		c.outOrdered = append(c.outOrdered, m)
	} else {
		c.outUnordered = append(c.outUnordered, m)
	}
}

// send encodes msgs into as few payloads as the size limit allows.
func (c *Client) send(d net.Delivery, msgs []protocol.ClientMessage) {
	for len(msgs) > 0 {
		n := len(msgs)
		for {
			data, err := protocol.EncodeClientBatch(msgs[:n]...)
			if err != nil {
				c.log.Error("encode batch", zap.Error(err))
				return
			}
			if len(data) <= c.maxPayload || n == 1 {
				c.tx.Send(c.server, d, data)
				break
			}
			n /= 2
		}
		msgs = msgs[n:]
	}
}

// Viewport is the pixel viewport centred on the own player, or on the
// spawn point before the player is mirrored.
func (c *Client) Viewport() world.Viewport {
	cx := float32(c.spawnX * world.TileSize)
	cy := float32(c.spawnY * world.TileSize)
	if c.state != nil {
		if h, ok := c.state.Humanoids.Get(c.self); ok {
			cx, cy = h.Center()
		}
	}
	return world.CenteredViewport(cx, cy, float32(c.cfg.ViewportW), float32(c.cfg.ViewportH))
}

// requestChunks asks for every chunk around the viewport with the seq the
// mirror holds. A lost request is simply repeated next frame. Chunks with
// predicted edits are asked for one seq back so the server answers with
// its copy even when it refused the edit.
func (c *Client) requestChunks(out []protocol.ClientMessage) []protocol.ClientMessage {
	g := c.state.Grid
	g.ChunkRect(c.Viewport(), 1).Each(func(cc world.ChunkCoord) {
		seq := g.ChunkSeq(cc)
		if _, ok := c.predicted[cc]; ok && seq > 0 {
			seq--
		}
		out = append(out, &protocol.RequestChunk{CX: cc.X, CY: cc.Y, Seq: seq})
	})
	return out
}

// applyInput copies held buttons into the own humanoid and predicts tile
// edits locally until the server's chunk supersedes them.
func (c *Client) applyInput(in InputFrame) {
	h, ok := c.state.Humanoids.Get(c.self)
	if !ok {
		return
	}
	if in.Jump != c.lastInput.Jump || in.Left != c.lastInput.Left || in.Right != c.lastInput.Right {
		c.predictLeft = c.cfg.PredictFrames
	}
	c.lastInput = in
	h.Input.Set(world.ActionJump, in.Jump)
	h.Input.Set(world.ActionLeft, in.Left)
	h.Input.Set(world.ActionRight, in.Right)

	g := c.state.Grid
	for _, e := range in.Edits {
		x, y := int(e.X), int(e.Y)
		l, t := world.Layer(e.Layer), world.Tile(e.Tile)
		if !g.InBounds(x, y) || !l.Valid() || !t.Valid() {
			continue
		}
		g.Put(l, x, y, t)
		if cc := world.ChunkOf(x, y); g.Loaded(cc) {
			c.predicted[cc] = struct{}{}
		}
		edit := e
		c.queue(net.ReliableOrdered, &edit)
	}
}
