package handler

import (
	"github.com/tilesim/tilesim/internal/core/event"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// HandleConnect admits a peer whose protocol version matches. A mismatched
// peer gets ConnectReject and is never added to the session store.
func HandleConnect(sess *session.Session, msg *protocol.Connect, deps *Deps) {
	if msg.Version != protocol.Version {
		sess.Log().Info("connect rejected: version mismatch",
			zap.Uint8s("client", msg.Version[:]),
			zap.Uint8s("server", protocol.Version[:]),
		)
		sess.Send(net.ReliableUnordered, &protocol.ConnectReject{Version: protocol.Version})
		return
	}
	if sess.State() == packet.StateConnecting {
		sess.SetState(packet.StateConnected)
		deps.Sessions.Add(sess)
		sess.Log().Info("peer connected")
	}
	sess.Send(net.ReliableUnordered, &protocol.ConnectAccept{})
}

// HandleJoin spawns the player and sends the initial world batch:
// JoinAccept, one ChunkSync per chunk around the spawn viewport, Start.
func HandleJoin(sess *session.Session, deps *Deps) {
	cfg := deps.Config
	grid := deps.World.Grid
	sx, sy := cfg.World.SpawnX, cfg.World.SpawnY

	id := deps.World.Spawn(world.AIPlayer, sx, sy)
	sess.EntityID = id
	sess.SetState(packet.StateJoining)

	msgs := []protocol.ServerMessage{&protocol.JoinAccept{
		WorldW:   uint16(grid.Width()),
		WorldH:   uint16(grid.Height()),
		EntityID: uint32(id),
		SpawnX:   uint16(sx),
		SpawnY:   uint16(sy),
	}}
	rect := SpawnChunks(grid, sx, sy, cfg.Server.SpawnViewportW, cfg.Server.SpawnViewportH)
	rect.Each(func(c world.ChunkCoord) {
		msgs = append(msgs, deps.Chunks.Build(grid, c))
	})
	msgs = append(msgs, &protocol.Start{})
	sess.Send(net.ReliableUnordered, msgs...)

	event.Emit(deps.Bus, event.HumanoidSpawned{EntityID: id, Player: true})
	sess.Log().Info("peer joined",
		zap.Uint32("entity", uint32(id)),
		zap.Int("chunks", rect.Len()),
	)
}

// SpawnChunks is the chunk rectangle covering a vw×vh pixel viewport
// centred on the spawn tile, plus one chunk of margin.
func SpawnChunks(g *world.Grid, sx, sy, vw, vh int) world.ChunkRect {
	v := world.CenteredViewport(
		float32(sx*world.TileSize), float32(sy*world.TileSize),
		float32(vw), float32(vh),
	)
	return g.ChunkRect(v, 1)
}

func HandleJoinComplete(sess *session.Session, deps *Deps) {
	sess.JoinComplete = true
	sess.SetState(packet.StateInWorld)
	sess.Log().Info("peer in world", zap.Uint32("entity", uint32(sess.EntityID)))
}
