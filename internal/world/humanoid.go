package world

import (
	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/physics"
)

// Humanoid hitbox in pixels.
const (
	HumanoidW = 12
	HumanoidH = 28
)

type AIKind uint8

const (
	AIPlayer AIKind = iota
	AIZombie
)

func (k AIKind) String() string {
	switch k {
	case AIPlayer:
		return "player"
	case AIZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// AI is a tagged union over AIKind. Player carries no state; the remaining
// fields belong to Zombie.
type AI struct {
	Kind   AIKind
	Target ecs.EntityID
	Dir    int8  // roam direction, -1 or 1
	Stuck  uint8 // steps without horizontal progress
	Roam   uint8 // steps of forced roaming left
}

type Humanoid struct {
	Body   physics.Body
	Motion physics.Motion
	AI     AI
	Input  InputQueue
}

// NewHumanoid places a humanoid with its top-left corner on tile (tx, ty).
func NewHumanoid(kind AIKind, tx, ty int) Humanoid {
	x, y := float32(tx*TileSize), float32(ty*TileSize)
	h := Humanoid{
		Body:   physics.Body{X: x, Y: y, W: HumanoidW, H: HumanoidH},
		Motion: physics.Motion{LastX: x, LastY: y},
		AI:     AI{Kind: kind},
	}
	if kind == AIZombie {
		h.AI.Dir = 1
	}
	return h
}

// Center returns the hitbox centre in pixels.
func (h *Humanoid) Center() (float32, float32) {
	return h.Body.X + h.Body.W/2, h.Body.Y + h.Body.H/2
}
