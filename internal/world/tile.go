package world

import (
	"github.com/tilesim/tilesim/internal/light"
	"github.com/tilesim/tilesim/internal/physics"
)

const (
	TileSize    = physics.TileSize
	ChunkSize   = 8
	ChunkArea   = ChunkSize * ChunkSize
	ChunkPixels = TileSize * ChunkSize
)

// Tile is the 8-bit tile type stored in both grid layers.
type Tile uint8

const (
	TileNone Tile = iota
	TileDirt
	TileStone
	TileDenseStone
	TileRedTorch
	TileGreenTorch
	TileBlueTorch

	TileCount
)

var tileNames = [TileCount]string{
	TileNone:       "none",
	TileDirt:       "dirt",
	TileStone:      "stone",
	TileDenseStone: "dense_stone",
	TileRedTorch:   "red_torch",
	TileGreenTorch: "green_torch",
	TileBlueTorch:  "blue_torch",
}

func (t Tile) Valid() bool { return t < TileCount }

func (t Tile) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return tileNames[t]
}

// ParseTile maps a tile name to its id.
func ParseTile(name string) (Tile, bool) {
	for i, n := range tileNames {
		if n == name {
			return Tile(i), true
		}
	}
	return TileNone, false
}

// TileProps are the physics and light properties of a tile type.
type TileProps struct {
	Solid bool
	Fade  uint8
	Light [3]uint8
}

// TileTable holds per-type properties. Only read during a tick, so it is
// shared between server and client loops without locking.
type TileTable struct {
	props [TileCount]TileProps
}

func DefaultTileTable() *TileTable {
	t := &TileTable{}
	torch := light.LightMax - 10
	t.props = [TileCount]TileProps{
		TileNone:       {Solid: false, Fade: light.FadeMin},
		TileDirt:       {Solid: true, Fade: light.FadeSolid},
		TileStone:      {Solid: true, Fade: light.FadeSolid},
		TileDenseStone: {Solid: true, Fade: light.FadeDense},
		TileRedTorch:   {Solid: true, Fade: light.FadeMin, Light: [3]uint8{torch, 0, 0}},
		TileGreenTorch: {Solid: true, Fade: light.FadeMin, Light: [3]uint8{0, torch, 0}},
		TileBlueTorch:  {Solid: true, Fade: light.FadeMin, Light: [3]uint8{0, 0, torch}},
	}
	return t
}

func (t *TileTable) Props(tile Tile) TileProps {
	if !tile.Valid() {
		return TileProps{Solid: true, Fade: light.FadeDense}
	}
	return t.props[tile]
}

// Set overrides the properties of one tile type.
func (t *TileTable) Set(tile Tile, p TileProps) {
	if tile.Valid() {
		t.props[tile] = p
	}
}

func (t *TileTable) Solid(tile Tile) bool { return t.Props(tile).Solid }

// LightOf adapts the table for the light engine.
func (t *TileTable) LightOf(tile uint8) light.TileLight {
	p := t.Props(Tile(tile))
	return light.TileLight{Fade: p.Fade, Light: p.Light}
}
