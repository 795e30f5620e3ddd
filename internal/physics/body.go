// Package physics integrates axis-aligned bodies and resolves them against a
// tile grid. Everything here is a pure function of its arguments.
package physics

// TileSize is the edge length of one grid tile in pixels.
const TileSize = 16

// Gravity is the downward acceleration applied every step, px/s².
const Gravity = 500

type Flags uint8

// FlagOnGround is set when the last vertical resolution hit a floor.
const FlagOnGround Flags = 1 << 1

// Body is an axis-aligned box, X/Y at the top-left corner, Y growing down.
type Body struct {
	X, Y, W, H float32
	Flags      Flags
}

func (b *Body) OnGround() bool { return b.Flags&FlagOnGround != 0 }

// Motion is the kinematic state carried between steps. DDX/DDY accumulate
// forces during a step and are cleared once it completes.
type Motion struct {
	LastX, LastY float32
	DX, DY       float32
	DDX, DDY     float32
}

// SolidMap answers whether the tile at grid coordinates blocks movement.
// Implementations panic on out-of-range coordinates.
type SolidMap interface {
	Solid(tx, ty int) bool
}
