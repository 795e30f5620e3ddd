package world

import (
	"math"

	"github.com/tilesim/tilesim/internal/core/ecs"
)

// AOIGrid buckets humanoids into square pixel cells. Cell size is chosen so
// a 3x3 neighbourhood covers a query radius of up to one cell.
// Accessed only from the tick goroutine, no locks.
type AOIGrid struct {
	cellSize int
	cells    map[cellKey][]ecs.EntityID
}

type cellKey struct {
	cx, cy int32
}

func NewAOIGrid(cellSize int) *AOIGrid {
	return &AOIGrid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]ecs.EntityID),
	}
}

func (g *AOIGrid) toCell(v float32) int32 {
	return int32(math.Floor(float64(v) / float64(g.cellSize)))
}

func (g *AOIGrid) key(x, y float32) cellKey {
	return cellKey{cx: g.toCell(x), cy: g.toCell(y)}
}

// Add places an entity at pixel position (x, y).
func (g *AOIGrid) Add(id ecs.EntityID, x, y float32) {
	k := g.key(x, y)
	g.cells[k] = append(g.cells[k], id)
}

// Reset empties every cell and keeps the allocations.
func (g *AOIGrid) Reset() {
	for k, ids := range g.cells {
		g.cells[k] = ids[:0]
	}
}

// Nearby returns every entity in the 3x3 cells around (x, y). The caller
// does fine-grained distance filtering.
func (g *AOIGrid) Nearby(x, y float32) []ecs.EntityID {
	center := g.key(x, y)
	var out []ecs.EntityID
	for dy := int32(-1); dy <= 1; dy++ {
		for dx := int32(-1); dx <= 1; dx++ {
			out = append(out, g.cells[cellKey{cx: center.cx + dx, cy: center.cy + dy}]...)
		}
	}
	return out
}
