package client

import (
	"fmt"

	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

func (c *Client) handleData(data []byte) {
	msgs, err := protocol.DecodeServerBatch(data)
	if err != nil {
		c.log.Warn("malformed server batch dropped", zap.Error(err))
		return
	}
	for _, m := range msgs {
		c.handle(m)
		if c.phase.terminal() {
			return
		}
	}
}

func (c *Client) handle(m protocol.ServerMessage) {
	switch msg := m.(type) {
	case *protocol.ConnectAccept:
		if c.phase == PhaseConnecting {
			c.setPhase(PhaseJoining)
			c.queue(net.ReliableUnordered, &protocol.Join{})
			c.log.Info("connected, joining")
		}

	case *protocol.ConnectReject:
		c.fail(PhaseRejected, fmt.Errorf("%w: server speaks %d.%d, client %d.%d",
			ErrVersionRejected, msg.Version[0], msg.Version[1], protocol.Version[0], protocol.Version[1]))

	case *protocol.JoinAccept:
		c.handleJoinAccept(msg)

	case *protocol.ChunkSync:
		c.handleChunkSync(msg)

	case *protocol.Start:
		switch c.phase {
		case PhaseLoading:
			c.start()
		case PhaseJoining:
			// the batch was split and Start overtook JoinAccept
			c.startPending = true
		}

	case *protocol.HumanoidSync:
		c.handleHumanoidSync(msg)

	case *protocol.ServerPing:
		c.lastPong = c.clock.Micros()
	}
}

func (c *Client) handleJoinAccept(msg *protocol.JoinAccept) {
	if c.phase != PhaseJoining {
		return
	}
	grid := world.NewMirrorGrid(int(msg.WorldW), int(msg.WorldH), c.tiles)
	c.state = world.NewState(grid, false)
	c.self = ecs.EntityID(msg.EntityID)
	c.spawnX, c.spawnY = int(msg.SpawnX), int(msg.SpawnY)
	c.state.Humanoids.InsertWithID(c.self, world.NewHumanoid(world.AIPlayer, c.spawnX, c.spawnY))
	c.setPhase(PhaseLoading)
	c.log.Info("join accepted",
		zap.Uint16("world_w", msg.WorldW),
		zap.Uint16("world_h", msg.WorldH),
		zap.Uint32("entity", msg.EntityID),
	)
	if c.startPending {
		c.start()
	}
}

func (c *Client) start() {
	c.startPending = false
	c.setPhase(PhaseRunning)
	c.starts++
	c.queue(net.ReliableUnordered, &protocol.JoinComplete{})
	c.log.Info("world started")
}

func (c *Client) handleChunkSync(msg *protocol.ChunkSync) {
	if c.state == nil {
		c.log.Debug("chunk before join accept dropped", zap.Uint16("cx", msg.CX), zap.Uint16("cy", msg.CY))
		return
	}
	cc := world.ChunkCoord{X: msg.CX, Y: msg.CY}
	apply := c.state.Grid.ApplyChunk
	_, predicted := c.predicted[cc]
	if predicted {
		apply = c.state.Grid.ResyncChunk
	}
	applied, err := apply(cc, msg.Seq, &msg.FG, &msg.BG)
	if err != nil {
		c.log.Warn("bad chunk dropped", zap.Error(err))
		return
	}
	if applied && predicted {
		delete(c.predicted, cc)
	}
}

// handleHumanoidSync mirrors the server's humanoids. The own player keeps
// its local state while a prediction window is open and always keeps its
// local input.
func (c *Client) handleHumanoidSync(msg *protocol.HumanoidSync) {
	if c.state == nil {
		return
	}
	table := c.state.Humanoids
	for raw, h := range msg.Entities {
		id := ecs.EntityID(raw)
		if id.IsZero() {
			continue
		}
		cur, ok := table.Get(id)
		if !ok {
			table.InsertWithID(id, h)
			continue
		}
		if id == c.self {
			if c.predictLeft > 0 {
				continue
			}
			in := cur.Input
			*cur = h
			cur.Input = in
			continue
		}
		*cur = h
	}
	for _, id := range table.IDs() {
		if _, ok := msg.Entities[uint32(id)]; !ok && id != c.self {
			table.Remove(id)
		}
	}
}
