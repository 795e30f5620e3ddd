package client

import (
	"math"
	"sort"

	"github.com/tilesim/tilesim/internal/core/ecs"
	"github.com/tilesim/tilesim/internal/light"
	"github.com/tilesim/tilesim/internal/protocol"
	"github.com/tilesim/tilesim/internal/world"
)

// InputFrame is one frame of local input.
type InputFrame struct {
	Jump, Left, Right bool
	Edits             []protocol.EditTile
}

// InputSource yields the local input once per outer iteration.
type InputSource interface {
	Poll() InputFrame
}

// Renderer consumes the per-frame snapshot. The snapshot is not reused
// after Render returns.
type Renderer interface {
	Render(s *RenderSnapshot)
}

type Sprite struct {
	ID   ecs.EntityID
	X, Y float32
	W, H float32
	Kind world.AIKind
}

// RenderSnapshot is everything a renderer needs for one frame.
type RenderSnapshot struct {
	TS       uint64
	Viewport world.Viewport

	// Tiles covering the viewport plus one tile on every side.
	TilesX, TilesY int
	TilesW, TilesH int
	FG, BG         []uint8

	// Light over the tile window padded by LightMax tiles so that sources
	// just off screen still reach it. LightX/LightY is its top-left tile.
	LightX, LightY int
	Light          *light.Buffers

	Sprites []Sprite
}

// LightAt returns the light at world tile (tx, ty), zero outside the
// computed window.
func (s *RenderSnapshot) LightAt(tx, ty int) (r, g, b uint8) {
	x, y := tx-s.LightX, ty-s.LightY
	if s.Light == nil || x < 0 || y < 0 || x >= s.Light.W || y >= s.Light.H {
		return 0, 0, 0
	}
	return s.Light.At(x, y)
}

func (c *Client) buildSnapshot(ts uint64) *RenderSnapshot {
	v := c.Viewport()
	g := c.state.Grid

	tx1 := int(math.Floor(float64(v.X)/world.TileSize)) - 1
	ty1 := int(math.Floor(float64(v.Y)/world.TileSize)) - 1
	tx2 := int(math.Ceil(float64(v.X+v.W)/world.TileSize)) + 1
	ty2 := int(math.Ceil(float64(v.Y+v.H)/world.TileSize)) + 1

	s := &RenderSnapshot{
		TS:       ts,
		Viewport: v,
		TilesX:   tx1,
		TilesY:   ty1,
		TilesW:   tx2 - tx1,
		TilesH:   ty2 - ty1,
	}
	s.FG, s.BG = g.Window(s.TilesX, s.TilesY, s.TilesW, s.TilesH)

	pad := int(light.LightMax)
	s.LightX, s.LightY = tx1-pad, ty1-pad
	lw, lh := s.TilesW+2*pad, s.TilesH+2*pad
	lfg, lbg := g.Window(s.LightX, s.LightY, lw, lh)
	s.Light = light.ComputeParallel(lw, lh, lfg, lbg, g.Tiles())

	c.state.Humanoids.Each(func(id ecs.EntityID, h *world.Humanoid) {
		b := h.Body
		if b.X+b.W < v.X || b.Y+b.H < v.Y || b.X > v.X+v.W || b.Y > v.Y+v.H {
			return
		}
		s.Sprites = append(s.Sprites, Sprite{ID: id, X: b.X, Y: b.Y, W: b.W, H: b.H, Kind: h.AI.Kind})
	})
	sort.Slice(s.Sprites, func(i, j int) bool { return s.Sprites[i].ID < s.Sprites[j].ID })
	return s
}
