package system

import (
	"time"

	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/core/event"
	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/net/packet"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// Transport is what the server systems need from the network layer.
type Transport interface {
	Poll()
	Recv() []net.Event
	Send(peer string, d net.Delivery, payload []byte)
	Disconnect(peer string)
}

// InputSystem polls the transport, tracks peer lifecycle and dispatches
// decoded client messages through the registry. Phase 0 (Input).
type InputSystem struct {
	tx            Transport
	registry      *packet.Registry
	store         *session.Store
	world         *world.State
	bus           *event.Bus
	maxPayload    int
	maxViolations int
	log           *zap.Logger
}

func NewInputSystem(
	tx Transport,
	registry *packet.Registry,
	store *session.Store,
	ws *world.State,
	bus *event.Bus,
	maxPayload int,
	maxViolations int,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		tx:            tx,
		registry:      registry,
		store:         store,
		world:         ws,
		bus:           bus,
		maxPayload:    maxPayload,
		maxViolations: maxViolations,
		log:           log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.tx.Poll()
	for _, ev := range s.tx.Recv() {
		switch ev.Kind {
		case net.EventConnect:
			s.log.Debug("link up", zap.String("peer", ev.Peer))
		case net.EventDisconnect:
			s.handleDisconnect(ev.Peer)
		case net.EventData:
			s.handleData(ev.Peer, ev.Data)
		}
	}
}

// handleData decodes one payload and dispatches every message in it. Peers
// without a session get a throwaway one so Connect can be answered; only
// an accepted Connect puts it in the store.
func (s *InputSystem) handleData(peer string, data []byte) {
	sess := s.store.Get(peer)
	transient := sess == nil
	if transient {
		sess = session.New(peer, s.log)
	}
	if sess.PendingDisconnect {
		return
	}

	msgs, err := protocol.DecodeClientBatch(data)
	if err != nil {
		if transient {
			s.log.Debug("undecodable payload from unknown peer", zap.String("peer", peer), zap.Error(err))
			return
		}
		if sess.Violation(s.maxViolations, "malformed batch", zap.Error(err)) {
			sess.PendingDisconnect = true
			s.tx.Disconnect(peer)
		}
		return
	}

	for _, m := range msgs {
		if err := s.registry.Dispatch(sess, sess.State(), m); err != nil {
			s.log.Debug("message dispatch error",
				zap.String("peer", peer),
				zap.Stringer("state", sess.State()),
				zap.Error(err),
			)
		}
		if sess.PendingDisconnect {
			break
		}
	}

	// a rejected peer never reaches the store, so answer it now
	if transient && s.store.Get(peer) == nil {
		if err := sess.Flush(s.tx, s.maxPayload); err != nil {
			s.log.Warn("flush to unadmitted peer failed", zap.String("peer", peer), zap.Error(err))
		}
	}
}

// handleDisconnect drops the session and queues its humanoid for removal.
func (s *InputSystem) handleDisconnect(peer string) {
	sess := s.store.Get(peer)
	if sess == nil {
		return
	}
	s.store.Remove(peer)
	if sess.EntityID != ecs.NoEntity {
		s.world.Humanoids.MarkForDestruction(sess.EntityID)
	}
	reason := "transport"
	if sess.PendingDisconnect {
		reason = "kicked"
	}
	event.Emit(s.bus, event.PeerDisconnected{Addr: peer, EntityID: sess.EntityID, Reason: reason})
	s.log.Info("peer disconnected",
		zap.String("peer", peer),
		zap.Uint32("entity", uint32(sess.EntityID)),
		zap.String("reason", reason),
	)
}

// SessionCount returns the current number of admitted sessions.
func (s *InputSystem) SessionCount() int {
	return s.store.Count()
}
