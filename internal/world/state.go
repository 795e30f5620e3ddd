package world

import (
	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/physics"
)

// State is everything one side simulates: the grid and its humanoids.
// It is owned by a single tick loop and never shared.
type State struct {
	Grid      *Grid
	Humanoids *ecs.Table[Humanoid]

	// RunAI is false on clients, which replay server-pushed inputs instead.
	RunAI bool

	players *AOIGrid
}

func NewState(grid *Grid, runAI bool) *State {
	return &State{
		Grid:      grid,
		Humanoids: ecs.NewTable[Humanoid](),
		RunAI:     runAI,
		players:   NewAOIGrid(ZombieDetectRange),
	}
}

// Spawn inserts a new humanoid at tile (tx, ty).
func (s *State) Spawn(kind AIKind, tx, ty int) ecs.EntityID {
	return s.Humanoids.Insert(NewHumanoid(kind, tx, ty))
}

// Step advances every humanoid by one fixed step: AI, input, physics.
func (s *State) Step(dt float32) {
	s.StepAI()
	s.StepPhysics(dt)
}

// StepAI lets every non-player humanoid press its buttons. No-op unless
// RunAI is set.
func (s *State) StepAI() {
	if !s.RunAI {
		return
	}
	s.indexPlayers()
	s.Humanoids.Each(s.UpdateAI)
}

// StepPhysics turns held inputs into acceleration and moves every humanoid.
func (s *State) StepPhysics(dt float32) {
	s.Humanoids.Each(func(_ ecs.EntityID, h *Humanoid) {
		ApplyInput(h)
		physics.Step(&h.Body, &h.Motion, s.Grid, dt)
	})
}

func (s *State) indexPlayers() {
	s.players.Reset()
	s.Humanoids.Each(func(id ecs.EntityID, h *Humanoid) {
		if h.AI.Kind == AIPlayer {
			x, y := h.Center()
			s.players.Add(id, x, y)
		}
	})
}

// ClearArea empties a tile rectangle in both layers, keeping the grid's
// outer ring intact.
func (s *State) ClearArea(x1, y1, x2, y2 int) {
	x1, y1 = max(x1, 1), max(y1, 1)
	x2, y2 = min(x2, s.Grid.Width()-1), min(y2, s.Grid.Height()-1)
	if x1 < x2 && y1 < y2 {
		s.Grid.Fill(x1, y1, x2, y2, TileNone, TileNone)
	}
}
