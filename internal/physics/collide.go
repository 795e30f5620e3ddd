package physics

import "math"

func floorTile(px float32) int { return int(math.Floor(float64(px) / TileSize)) }
func ceilTile(px float32) int  { return int(math.Ceil(float64(px) / TileSize)) }

// sweep returns the half-open tile range an edge newly entered moving from
// last to cur. For positive motion the leading edge is the far side (pos+size),
// for negative motion it is pos itself.
func sweep(last, cur, size float32) (lo, hi int) {
	if cur > last {
		return ceilTile(last + size), ceilTile(cur + size)
	}
	return floorTile(cur), floorTile(last)
}

// span is the tile range the box covers on the other axis.
func span(pos, size float32) (lo, hi int) {
	return floorTile(pos), ceilTile(pos + size)
}

// ResolveY clamps a vertical move against solid tiles. Tiles are scanned
// nearest first and the first solid one stops the body. Landing sets
// FlagOnGround and zeroes DY; a ceiling hit halves DY.
func ResolveY(b *Body, m *Motion, solid SolidMap) {
	if b.Y == m.LastY {
		return
	}
	down := b.Y > m.LastY
	y1, y2 := sweep(m.LastY, b.Y, b.H)
	x1, x2 := span(b.X, b.W)

	if down {
		for ty := y1; ty < y2; ty++ {
			if rowBlocked(solid, ty, x1, x2) {
				b.Y = float32(ty*TileSize) - b.H
				b.Flags |= FlagOnGround
				m.DY = 0
				return
			}
		}
		return
	}
	for ty := y2 - 1; ty >= y1; ty-- {
		if rowBlocked(solid, ty, x1, x2) {
			b.Y = float32((ty + 1) * TileSize)
			m.DY *= 0.5
			return
		}
	}
}

// ResolveX clamps a horizontal move against solid tiles and zeroes DX on
// contact.
func ResolveX(b *Body, m *Motion, solid SolidMap) {
	if b.X == m.LastX {
		return
	}
	right := b.X > m.LastX
	x1, x2 := sweep(m.LastX, b.X, b.W)
	y1, y2 := span(b.Y, b.H)

	if right {
		for tx := x1; tx < x2; tx++ {
			if columnBlocked(solid, tx, y1, y2) {
				b.X = float32(tx*TileSize) - b.W
				m.DX = 0
				return
			}
		}
		return
	}
	for tx := x2 - 1; tx >= x1; tx-- {
		if columnBlocked(solid, tx, y1, y2) {
			b.X = float32((tx + 1) * TileSize)
			m.DX = 0
			return
		}
	}
}

func rowBlocked(solid SolidMap, ty, x1, x2 int) bool {
	for tx := x1; tx < x2; tx++ {
		if solid.Solid(tx, ty) {
			return true
		}
	}
	return false
}

func columnBlocked(solid SolidMap, tx, y1, y2 int) bool {
	for ty := y1; ty < y2; ty++ {
		if solid.Solid(tx, ty) {
			return true
		}
	}
	return false
}
