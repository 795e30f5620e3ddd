package handler

import (
	"github.com/tilesim/tilesim/internal/core/event"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// HandleRequestChunk resends a chunk the client holds an older copy of.
// A client claiming a newer seq than the server's is never trusted.
func HandleRequestChunk(sess *session.Session, msg *protocol.RequestChunk, deps *Deps) {
	grid := deps.World.Grid
	c := world.ChunkCoord{X: msg.CX, Y: msg.CY}
	if !grid.ChunkInBounds(c) {
		violation(sess, deps, "chunk out of range",
			zap.Uint16("cx", msg.CX), zap.Uint16("cy", msg.CY))
		return
	}

	seq := grid.ChunkSeq(c)
	switch {
	case msg.Seq == seq:
		// already current
	case msg.Seq < seq:
		sess.Send(net.ReliableUnordered, deps.Chunks.Build(grid, c))
	default:
		violation(sess, deps, "chunk seq ahead of server",
			zap.Uint16("cx", msg.CX), zap.Uint16("cy", msg.CY),
			zap.Uint32("claimed", msg.Seq), zap.Uint32("seq", seq))
	}
}

// HandleEditTile applies a tile edit from the player. The chunk's seq is
// bumped, so every client picks the change up through its RequestChunk
// sweep.
func HandleEditTile(sess *session.Session, msg *protocol.EditTile, deps *Deps) {
	grid := deps.World.Grid
	x, y := int(msg.X), int(msg.Y)
	layer, tile := world.Layer(msg.Layer), world.Tile(msg.Tile)

	if !layer.Valid() || !tile.Valid() {
		violation(sess, deps, "bad tile edit",
			zap.Uint8("layer", msg.Layer), zap.Uint8("tile", msg.Tile))
		return
	}
	// the outer ring stays solid so physics never indexes past the grid
	if x <= 0 || y <= 0 || x >= grid.Width()-1 || y >= grid.Height()-1 {
		violation(sess, deps, "tile edit outside world", zap.Int("x", x), zap.Int("y", y))
		return
	}
	if reach := deps.Config.Server.EditReach; reach > 0 {
		h, ok := deps.World.Humanoids.Get(sess.EntityID)
		if !ok {
			return
		}
		cx, cy := h.Center()
		dx := absInt(x - int(cx)/world.TileSize)
		dy := absInt(y - int(cy)/world.TileSize)
		if dx > reach || dy > reach {
			sess.Log().Debug("tile edit out of reach", zap.Int("x", x), zap.Int("y", y))
			return
		}
	}

	c, seq, changed := grid.SetTile(layer, x, y, tile)
	if changed {
		event.Emit(deps.Bus, event.ChunkEdited{CX: c.X, CY: c.Y, Seq: seq})
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
