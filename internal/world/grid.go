package world

import (
	"fmt"
	"sort"
)

type Layer uint8

const (
	LayerFG Layer = iota
	LayerBG
)

func (l Layer) Valid() bool { return l <= LayerBG }

// Grid is the tile world: two row-major layers plus one sequence number per
// chunk. Dimensions are fixed at construction.
//
// A mirror grid (client side) starts with every chunk at seq 0, meaning
// never received, and reports such chunks as solid to physics. An
// authoritative grid starts every chunk at seq 1.
type Grid struct {
	w, h    int
	fg, bg  []Tile
	tiles   *TileTable
	chunksW int
	chunksH int
	seqs    []uint32
	dirty   map[ChunkCoord]struct{}
	mirror  bool
}

func newGrid(w, h int, tiles *TileTable, initialSeq uint32) *Grid {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("world: invalid grid size %dx%d", w, h))
	}
	if tiles == nil {
		tiles = DefaultTileTable()
	}
	cw := (w + ChunkSize - 1) / ChunkSize
	ch := (h + ChunkSize - 1) / ChunkSize
	g := &Grid{
		w:       w,
		h:       h,
		fg:      make([]Tile, w*h),
		bg:      make([]Tile, w*h),
		tiles:   tiles,
		chunksW: cw,
		chunksH: ch,
		seqs:    make([]uint32, cw*ch),
		dirty:   make(map[ChunkCoord]struct{}),
	}
	if initialSeq != 0 {
		for i := range g.seqs {
			g.seqs[i] = initialSeq
		}
	}
	return g
}

// NewGrid allocates an authoritative grid; every chunk starts at seq 1.
func NewGrid(w, h int, tiles *TileTable) *Grid {
	return newGrid(w, h, tiles, 1)
}

// NewMirrorGrid allocates a client-side copy filled in by ApplyChunk.
func NewMirrorGrid(w, h int, tiles *TileTable) *Grid {
	g := newGrid(w, h, tiles, 0)
	g.mirror = true
	return g
}

func (g *Grid) Width() int             { return g.w }
func (g *Grid) Height() int            { return g.h }
func (g *Grid) ChunksW() int           { return g.chunksW }
func (g *Grid) ChunksH() int           { return g.chunksH }
func (g *Grid) Tiles() *TileTable      { return g.tiles }
func (g *Grid) InBounds(x, y int) bool { return x >= 0 && y >= 0 && x < g.w && y < g.h }

func (g *Grid) ChunkInBounds(c ChunkCoord) bool {
	return int(c.X) < g.chunksW && int(c.Y) < g.chunksH
}

func (g *Grid) index(x, y int) int {
	if !g.InBounds(x, y) {
		panic(fmt.Sprintf("world: tile (%d,%d) outside %dx%d grid", x, y, g.w, g.h))
	}
	return y*g.w + x
}

func (g *Grid) chunkIndex(c ChunkCoord) int {
	if !g.ChunkInBounds(c) {
		panic(fmt.Sprintf("world: chunk (%d,%d) outside %dx%d chunks", c.X, c.Y, g.chunksW, g.chunksH))
	}
	return int(c.Y)*g.chunksW + int(c.X)
}

func (g *Grid) layer(l Layer) []Tile {
	if l == LayerBG {
		return g.bg
	}
	return g.fg
}

func (g *Grid) FG(x, y int) Tile { return g.fg[g.index(x, y)] }
func (g *Grid) BG(x, y int) Tile { return g.bg[g.index(x, y)] }

func (g *Grid) At(l Layer, x, y int) Tile { return g.layer(l)[g.index(x, y)] }

// Put writes a tile without touching chunk sequences. Used by world
// generation and loading, before any peer has seen the grid.
func (g *Grid) Put(l Layer, x, y int, t Tile) {
	g.layer(l)[g.index(x, y)] = t
}

// Fill puts t into the half-open tile rectangle [x1,x2)×[y1,y2) of both layers.
func (g *Grid) Fill(x1, y1, x2, y2 int, fg, bg Tile) {
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			i := g.index(x, y)
			g.fg[i] = fg
			g.bg[i] = bg
		}
	}
}

// SetTile is an authoritative edit: it writes the tile, bumps the owning
// chunk's seq and marks it dirty. changed is false when the tile already
// held that value.
func (g *Grid) SetTile(l Layer, x, y int, t Tile) (c ChunkCoord, seq uint32, changed bool) {
	i := g.index(x, y)
	c = ChunkOf(x, y)
	ci := g.chunkIndex(c)
	layer := g.layer(l)
	if layer[i] == t {
		return c, g.seqs[ci], false
	}
	layer[i] = t
	g.seqs[ci]++
	g.dirty[c] = struct{}{}
	return c, g.seqs[ci], true
}

// Solid reports whether a tile blocks movement. Tiles of never-received
// chunks on a mirror grid count as solid. Out-of-range coordinates panic.
func (g *Grid) Solid(tx, ty int) bool {
	i := g.index(tx, ty)
	if g.mirror && g.seqs[g.chunkIndex(ChunkOf(tx, ty))] == 0 {
		return true
	}
	return g.tiles.Solid(g.fg[i])
}

func (g *Grid) ChunkSeq(c ChunkCoord) uint32 { return g.seqs[g.chunkIndex(c)] }

// Loaded reports whether a mirror grid has received the chunk.
func (g *Grid) Loaded(c ChunkCoord) bool { return g.ChunkSeq(c) != 0 }

// ExtractChunk copies one chunk. Cells past the grid edge read as TileNone.
func (g *Grid) ExtractChunk(c ChunkCoord) (fg, bg [ChunkArea]uint8, seq uint32) {
	seq = g.seqs[g.chunkIndex(c)]
	x0, y0 := int(c.X)*ChunkSize, int(c.Y)*ChunkSize
	for y := 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x++ {
			wx, wy := x0+x, y0+y
			if !g.InBounds(wx, wy) {
				continue
			}
			src := wy*g.w + wx
			fg[y*ChunkSize+x] = uint8(g.fg[src])
			bg[y*ChunkSize+x] = uint8(g.bg[src])
		}
	}
	return fg, bg, seq
}

// ApplyChunk writes a received chunk if seq is strictly newer than the
// stored one. A stale or duplicate seq leaves the grid untouched.
func (g *Grid) ApplyChunk(c ChunkCoord, seq uint32, fg, bg *[ChunkArea]uint8) (applied bool, err error) {
	return g.applyChunk(c, seq, fg, bg, false)
}

// ResyncChunk is ApplyChunk that also accepts the stored seq. The client
// uses it to overwrite locally predicted tiles with the server's copy.
func (g *Grid) ResyncChunk(c ChunkCoord, seq uint32, fg, bg *[ChunkArea]uint8) (applied bool, err error) {
	return g.applyChunk(c, seq, fg, bg, true)
}

func (g *Grid) applyChunk(c ChunkCoord, seq uint32, fg, bg *[ChunkArea]uint8, equal bool) (bool, error) {
	if !g.ChunkInBounds(c) {
		return false, fmt.Errorf("chunk (%d,%d) outside %dx%d chunks", c.X, c.Y, g.chunksW, g.chunksH)
	}
	for i := 0; i < ChunkArea; i++ {
		if !Tile(fg[i]).Valid() || !Tile(bg[i]).Valid() {
			return false, fmt.Errorf("chunk (%d,%d) cell %d: unknown tile", c.X, c.Y, i)
		}
	}
	ci := g.chunkIndex(c)
	if seq < g.seqs[ci] || (seq == g.seqs[ci] && (!equal || seq == 0)) {
		return false, nil
	}
	g.writeChunk(c, fg, bg)
	g.seqs[ci] = seq
	return true, nil
}

// LoadChunk overwrites a chunk and its seq unconditionally. Used when
// restoring persisted state.
func (g *Grid) LoadChunk(c ChunkCoord, seq uint32, fg, bg *[ChunkArea]uint8) {
	g.writeChunk(c, fg, bg)
	g.seqs[g.chunkIndex(c)] = seq
}

func (g *Grid) writeChunk(c ChunkCoord, fg, bg *[ChunkArea]uint8) {
	x0, y0 := int(c.X)*ChunkSize, int(c.Y)*ChunkSize
	for y := 0; y < ChunkSize; y++ {
		for x := 0; x < ChunkSize; x++ {
			wx, wy := x0+x, y0+y
			if !g.InBounds(wx, wy) {
				continue
			}
			dst := wy*g.w + wx
			g.fg[dst] = Tile(fg[y*ChunkSize+x])
			g.bg[dst] = Tile(bg[y*ChunkSize+x])
		}
	}
}

// TakeDirty returns chunks edited since the last call, sorted, and clears
// the set.
func (g *Grid) TakeDirty() []ChunkCoord {
	if len(g.dirty) == 0 {
		return nil
	}
	out := make([]ChunkCoord, 0, len(g.dirty))
	for c := range g.dirty {
		out = append(out, c)
	}
	clear(g.dirty)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// MarkDirty flags chunks for the next save.
func (g *Grid) MarkDirty(cs ...ChunkCoord) {
	for _, c := range cs {
		g.dirty[c] = struct{}{}
	}
}

// MarkAllDirty flags every chunk for the next save.
func (g *Grid) MarkAllDirty() {
	for cy := 0; cy < g.chunksH; cy++ {
		for cx := 0; cx < g.chunksW; cx++ {
			g.dirty[ChunkCoord{X: uint16(cx), Y: uint16(cy)}] = struct{}{}
		}
	}
}

// Window copies a w×h tile rectangle at (x1, y1) into new byte slices.
// Cells outside the grid read as TileNone. On a mirror grid, cells of
// chunks not received yet read as TileDenseStone on both layers, matching Solid.
func (g *Grid) Window(x1, y1, w, h int) (fg, bg []uint8) {
	fg = make([]uint8, w*h)
	bg = make([]uint8, w*h)
	for y := 0; y < h; y++ {
		wy := y1 + y
		if wy < 0 || wy >= g.h {
			continue
		}
		for x := 0; x < w; x++ {
			wx := x1 + x
			if wx < 0 || wx >= g.w {
				continue
			}
			if g.mirror && g.seqs[g.chunkIndex(ChunkOf(wx, wy))] == 0 {
				fg[y*w+x] = uint8(TileDenseStone)
				bg[y*w+x] = uint8(TileDenseStone)
				continue
			}
			src := wy*g.w + wx
			fg[y*w+x] = uint8(g.fg[src])
			bg[y*w+x] = uint8(g.bg[src])
		}
	}
	return fg, bg
}
