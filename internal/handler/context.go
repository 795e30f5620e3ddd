package handler

import (
	"github.com/tilesim/tilesim/internal/cache"
	"github.com/tilesim/tilesim/internal/config"
	"github.com/tilesim/tilesim/internal/core/event"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// Disconnecter drops a peer at the transport. The transport reports the
// drop back as a Disconnect event, so cleanup runs on one path.
type Disconnecter interface {
	Disconnect(peer string)
}

// Deps holds shared dependencies injected into all message handlers.
type Deps struct {
	World    *world.State
	Sessions *session.Store
	Chunks   *cache.ChunkCache
	Bus      *event.Bus
	Net      Disconnecter
	Config   *config.Config
	Log      *zap.Logger
}

// RegisterAll registers all client message handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Handshake. A repeated Connect from an admitted peer is a client retry.
	reg.Register(protocol.OpConnect,
		[]packet.SessionState{packet.StateConnecting, packet.StateConnected},
		func(sess any, msg protocol.ClientMessage) {
			HandleConnect(sess.(*session.Session), msg.(*protocol.Connect), deps)
		},
	)

	// Join sequence
	reg.Register(protocol.OpJoin,
		[]packet.SessionState{packet.StateConnected},
		func(sess any, msg protocol.ClientMessage) {
			HandleJoin(sess.(*session.Session), deps)
		},
	)
	reg.Register(protocol.OpJoinComplete,
		[]packet.SessionState{packet.StateJoining},
		func(sess any, msg protocol.ClientMessage) {
			HandleJoinComplete(sess.(*session.Session), deps)
		},
	)

	// Chunk requests are valid while the join batch is still in flight.
	joinedStates := []packet.SessionState{packet.StateJoining, packet.StateInWorld}

	reg.Register(protocol.OpRequestChunk, joinedStates,
		func(sess any, msg protocol.ClientMessage) {
			HandleRequestChunk(sess.(*session.Session), msg.(*protocol.RequestChunk), deps)
		},
	)
	reg.Register(protocol.OpClientPing, joinedStates,
		func(sess any, msg protocol.ClientMessage) {
			HandlePing(sess.(*session.Session), deps)
		},
	)

	// In-world
	inWorldStates := []packet.SessionState{packet.StateInWorld}

	reg.Register(protocol.OpSyncPlayer, inWorldStates,
		func(sess any, msg protocol.ClientMessage) {
			HandleSyncPlayer(sess.(*session.Session), msg.(*protocol.SyncPlayer), deps)
		},
	)
	reg.Register(protocol.OpEditTile, inWorldStates,
		func(sess any, msg protocol.ClientMessage) {
			HandleEditTile(sess.(*session.Session), msg.(*protocol.EditTile), deps)
		},
	)
}

// violation logs a protocol violation and kicks the peer once it has
// reached the configured limit.
func violation(sess *session.Session, deps *Deps, reason string, fields ...zap.Field) {
	if sess.Violation(deps.Config.Server.MaxViolations, reason, fields...) {
		sess.Log().Info("too many protocol violations, disconnecting")
		sess.PendingDisconnect = true
		deps.Net.Disconnect(sess.Addr)
	}
}
