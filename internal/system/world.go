package system

import (
	"time"

	coresys "github.com/tilesim/tilesim/internal/core/system"
	"github.com/tilesim/tilesim/internal/world"
)

// AISystem lets AI humanoids pick their inputs. Phase 2 (Update),
// registered before PhysicsSystem.
type AISystem struct {
	world *world.State
}

func NewAISystem(ws *world.State) *AISystem {
	return &AISystem{world: ws}
}

func (s *AISystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *AISystem) Update(_ time.Duration) {
	s.world.StepAI()
}

// PhysicsSystem applies inputs and advances every humanoid by one fixed
// step. Phase 2 (Update).
type PhysicsSystem struct {
	world *world.State
}

func NewPhysicsSystem(ws *world.State) *PhysicsSystem {
	return &PhysicsSystem{world: ws}
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *PhysicsSystem) Update(dt time.Duration) {
	s.world.StepPhysics(float32(dt.Seconds()))
}
