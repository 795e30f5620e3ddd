package system

import (
	"context"
	"time"

	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/persist"
	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
)

// ChunkSaver stores chunk snapshots.
type ChunkSaver interface {
	SaveChunks(ctx context.Context, rows []persist.ChunkRow) error
}

// PersistenceSystem saves edited chunks every interval ticks. Phase 5
// (Persist).
type PersistenceSystem struct {
	grid      *world.Grid
	saver     ChunkSaver
	log       *zap.Logger
	tickCount int
	interval  int
}

func NewPersistenceSystem(grid *world.Grid, saver ChunkSaver, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	return &PersistenceSystem{
		grid:     grid,
		saver:    saver,
		log:      log,
		interval: max(intervalTicks, 1),
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.SaveDirty()
}

// SaveDirty writes every chunk edited since the last save. Chunks that fail
// to save stay dirty for the next attempt.
func (s *PersistenceSystem) SaveDirty() int {
	dirty := s.grid.TakeDirty()
	if len(dirty) == 0 {
		return 0
	}
	rows := make([]persist.ChunkRow, len(dirty))
	for i, c := range dirty {
		rows[i] = persist.RowFromGrid(s.grid, c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.saver.SaveChunks(ctx, rows); err != nil {
		s.log.Error("chunk save failed", zap.Int("chunks", len(rows)), zap.Error(err))
		s.grid.MarkDirty(dirty...)
		return 0
	}
	s.log.Debug("chunks saved", zap.Int("chunks", len(rows)))
	return len(rows)
}
