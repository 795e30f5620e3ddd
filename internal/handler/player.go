package handler

import (
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
)

// HandleSyncPlayer takes the client's input state for its own humanoid. The
// server keeps simulating position itself; only the inputs are adopted.
func HandleSyncPlayer(sess *session.Session, msg *protocol.SyncPlayer, deps *Deps) {
	h, ok := deps.World.Humanoids.Get(sess.EntityID)
	if !ok {
		return
	}
	h.Input = msg.Entity.Input
}

func HandlePing(sess *session.Session, deps *Deps) {
	sess.Send(net.UnreliableSequenced, &protocol.ServerPing{})
}
