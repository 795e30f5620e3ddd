package system

import (
	"time"

	"github.com/tilesim/tilesim/internal/core/ecs"
	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/net"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/session"
	"github.com/tilesim/tilesim/internal/world"
)

// SyncSystem pushes every humanoid to every in-world session once per
// outer tick. Only the newest snapshot matters, so it goes unreliable
// sequenced. Phase 3 (PostUpdate).
type SyncSystem struct {
	world *world.State
	store *session.Store
}

func NewSyncSystem(ws *world.State, store *session.Store) *SyncSystem {
	return &SyncSystem{world: ws, store: store}
}

func (s *SyncSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SyncSystem) Update(_ time.Duration) {
	var msg *protocol.HumanoidSync
	s.store.ForEach(func(sess *session.Session) {
		if !sess.JoinComplete || sess.PendingDisconnect {
			return
		}
		if msg == nil {
			msg = Snapshot(s.world)
		}
		sess.Send(net.UnreliableSequenced, msg)
	})
}

// Snapshot copies every humanoid into a HumanoidSync.
func Snapshot(ws *world.State) *protocol.HumanoidSync {
	msg := &protocol.HumanoidSync{Entities: make(map[uint32]world.Humanoid, ws.Humanoids.Len())}
	ws.Humanoids.Each(func(id ecs.EntityID, h *world.Humanoid) {
		msg.Entities[uint32(id)] = *h
	})
	return msg
}
