package system

import (
	"time"

	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred humanoid destruction queue at tick
// end. Phase 6 (Cleanup).
type CleanupSystem struct {
	world *world.State
	log   *zap.Logger
}

func NewCleanupSystem(ws *world.State, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: ws, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if ids := s.world.Humanoids.FlushDestroyQueue(); len(ids) > 0 {
		s.log.Debug("humanoids removed", zap.Int("count", len(ids)))
	}
}
