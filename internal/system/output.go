package system

import (
	"time"

	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/session"
	"go.uber.org/zap"
)

// OutputSystem encodes every session's queued messages and polls the
// transport so they leave this tick. Phase 4 (Output).
type OutputSystem struct {
	tx         Transport
	store      *session.Store
	maxPayload int
	log        *zap.Logger
}

func NewOutputSystem(tx Transport, store *session.Store, maxPayload int, log *zap.Logger) *OutputSystem {
	return &OutputSystem{tx: tx, store: store, maxPayload: maxPayload, log: log}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *session.Session) {
		if err := sess.Flush(s.tx, s.maxPayload); err != nil {
			s.log.Error("session flush failed", zap.String("peer", sess.Addr), zap.Error(err))
		}
	})
	s.tx.Poll()
}
