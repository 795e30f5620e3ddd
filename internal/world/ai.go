package world

import (
	"math"

	"github.com/tilesim/tilesim/internal/core/ecs"
)

const (
	ZombieDetectRange = 40 * TileSize // px
	zombieStuckSteps  = 20
	zombieRoamSteps   = 60
)

// UpdateAI writes the input queue of an AI-driven humanoid for this step.
// Players are driven by their client and are left alone.
func (s *State) UpdateAI(id ecs.EntityID, h *Humanoid) {
	switch h.AI.Kind {
	case AIPlayer:
	case AIZombie:
		s.updateZombie(id, h)
	}
}

func (s *State) updateZombie(id ecs.EntityID, h *Humanoid) {
	ai := &h.AI
	target, ok := s.zombieTarget(h)
	if ok {
		ai.Target = target
	} else {
		ai.Target = ecs.NoEntity
	}

	var dir int8
	wantJump := false
	if ok && ai.Roam == 0 {
		t, _ := s.Humanoids.Get(target)
		tx, ty := t.Center()
		hx, _ := h.Center()
		switch {
		case tx > hx+2:
			dir = 1
		case tx < hx-2:
			dir = -1
		}
		// target standing on a ledge above
		if ty+t.Body.H/2 < h.Body.Y-TileSize {
			wantJump = true
		}
	} else {
		if ai.Dir == 0 {
			ai.Dir = 1
		}
		dir = ai.Dir
	}

	if dir != 0 {
		if s.wallAhead(h, dir) {
			wantJump = true
		}
		if math.Abs(float64(h.Body.X-h.Motion.LastX)) < 0.1 {
			ai.Stuck++
		} else {
			ai.Stuck = 0
		}
		if ai.Stuck >= zombieStuckSteps {
			ai.Stuck = 0
			ai.Dir = -dir
			ai.Roam = zombieRoamSteps
			wantJump = true
		}
	}
	if ai.Roam > 0 {
		ai.Roam--
	}

	h.Input.Set(ActionLeft, dir < 0)
	h.Input.Set(ActionRight, dir > 0)
	// a jump needs a fresh press edge, so release after every press
	h.Input.Set(ActionJump, wantJump && !h.Input.Held(ActionJump))
}

// zombieTarget keeps the current target while it stays in range, otherwise
// picks the nearest player.
func (s *State) zombieTarget(h *Humanoid) (ecs.EntityID, bool) {
	hx, hy := h.Center()
	inRange := func(id ecs.EntityID) (float32, bool) {
		t, ok := s.Humanoids.Get(id)
		if !ok || t.AI.Kind != AIPlayer {
			return 0, false
		}
		tx, ty := t.Center()
		d := (tx-hx)*(tx-hx) + (ty-hy)*(ty-hy)
		return d, d <= ZombieDetectRange*ZombieDetectRange
	}

	if !h.AI.Target.IsZero() {
		if _, ok := inRange(h.AI.Target); ok {
			return h.AI.Target, true
		}
	}

	best, bestDist := ecs.NoEntity, float32(math.MaxFloat32)
	for _, id := range s.players.Nearby(hx, hy) {
		if d, ok := inRange(id); ok && (d < bestDist || d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best, !best.IsZero()
}

// wallAhead checks the tile column just past the leading edge at foot height.
func (s *State) wallAhead(h *Humanoid, dir int8) bool {
	var px float32
	if dir > 0 {
		px = h.Body.X + h.Body.W + 1
	} else {
		px = h.Body.X - 1
	}
	tx := int(math.Floor(float64(px) / TileSize))
	ty := int(math.Floor(float64(h.Body.Y+h.Body.H-1) / TileSize))
	if !s.Grid.InBounds(tx, ty) {
		return true
	}
	return s.Grid.Solid(tx, ty)
}
