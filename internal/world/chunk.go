package world

// ChunkCoord addresses one ChunkSize×ChunkSize block of the grid.
type ChunkCoord struct {
	X, Y uint16
}

// ChunkOf returns the chunk containing tile (tx, ty).
func ChunkOf(tx, ty int) ChunkCoord {
	return ChunkCoord{X: uint16(tx / ChunkSize), Y: uint16(ty / ChunkSize)}
}

// ChunkRect is a half-open rectangle of chunk coordinates [X1,X2)×[Y1,Y2).
type ChunkRect struct {
	X1, Y1, X2, Y2 int
}

func (r ChunkRect) Empty() bool { return r.X1 >= r.X2 || r.Y1 >= r.Y2 }

func (r ChunkRect) Len() int {
	if r.Empty() {
		return 0
	}
	return (r.X2 - r.X1) * (r.Y2 - r.Y1)
}

func (r ChunkRect) Contains(c ChunkCoord) bool {
	x, y := int(c.X), int(c.Y)
	return x >= r.X1 && x < r.X2 && y >= r.Y1 && y < r.Y2
}

// Each visits every chunk row by row.
func (r ChunkRect) Each(fn func(ChunkCoord)) {
	for cy := r.Y1; cy < r.Y2; cy++ {
		for cx := r.X1; cx < r.X2; cx++ {
			fn(ChunkCoord{X: uint16(cx), Y: uint16(cy)})
		}
	}
}

// Viewport is a pixel-space rectangle.
type Viewport struct {
	X, Y, W, H float32
}

// CenteredViewport returns a w×h pixel viewport centred on (cx, cy).
func CenteredViewport(cx, cy, w, h float32) Viewport {
	return Viewport{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

// ChunkRect returns the chunks covering the viewport widened by margin
// chunks on every side, clamped to the grid.
func (g *Grid) ChunkRect(v Viewport, margin int) ChunkRect {
	r := ChunkRect{
		X1: floorDiv(v.X, ChunkPixels) - margin,
		Y1: floorDiv(v.Y, ChunkPixels) - margin,
		X2: ceilDiv(v.X+v.W, ChunkPixels) + margin,
		Y2: ceilDiv(v.Y+v.H, ChunkPixels) + margin,
	}
	r.X1 = clamp(r.X1, 0, g.chunksW)
	r.Y1 = clamp(r.Y1, 0, g.chunksH)
	r.X2 = clamp(r.X2, 0, g.chunksW)
	r.Y2 = clamp(r.Y2, 0, g.chunksH)
	return r
}

func floorDiv(px float32, unit int) int {
	q := int(px) / unit
	if px < 0 && float32(q*unit) != px {
		q--
	}
	return q
}

func ceilDiv(px float32, unit int) int {
	q := floorDiv(px, unit)
	if float32(q*unit) < px {
		q++
	}
	return q
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
