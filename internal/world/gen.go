package world

import (
	"math"
	"sync"

	"github.com/aquilax/go-perlin"
)

// Generator fills a freshly allocated grid.
type Generator interface {
	Generate(g *Grid, seed int64) error
}

// LayeredGenerator builds open sky over a noisy surface, then dirt, stone
// and dense stone bands, with noise caves and scattered torches below the
// dirt. The outermost ring of tiles is always solid.
type LayeredGenerator struct {
	Surface       int     // highest possible surface row
	Amplitude     int     // surface variation in tiles
	DirtDepth     int     // rows of dirt under the surface
	StoneDepth    int     // rows of stone under the dirt
	CaveThreshold float64 // width of the cave band around noise 0.5, 0 disables caves
	TorchChance   float64 // per cave floor cell

	// SurfaceFn overrides the noise surface when set.
	SurfaceFn func(x int, seed int64) int
}

func DefaultLayeredGenerator() *LayeredGenerator {
	return &LayeredGenerator{
		Surface:       102,
		Amplitude:     8,
		DirtDepth:     5,
		StoneDepth:    10,
		CaveThreshold: 0.08,
		TorchChance:   0.01,
	}
}

func (l *LayeredGenerator) SurfaceAt(x int, seed int64) int {
	if l.SurfaceFn != nil {
		return l.SurfaceFn(x, seed)
	}
	n := 0.6*Noise1(seed, float64(x)/48) + 0.4*Noise1(seed+1, float64(x)/13)
	return l.Surface + int(n*float64(l.Amplitude))
}

func (l *LayeredGenerator) Generate(g *Grid, seed int64) error {
	w, h := g.Width(), g.Height()
	for x := 0; x < w; x++ {
		surface := l.SurfaceAt(x, seed)
		dirtEnd := surface + l.DirtDepth
		stoneEnd := dirtEnd + l.StoneDepth
		for y := 0; y < h; y++ {
			var t Tile
			switch {
			case y < surface:
				t = TileNone
			case y < dirtEnd:
				t = TileDirt
			case y < stoneEnd:
				t = TileStone
			default:
				t = TileDenseStone
			}
			g.Put(LayerFG, x, y, t)
			g.Put(LayerBG, x, y, t)

			if y >= dirtEnd && l.CaveThreshold > 0 {
				n := noise2(seed+2, float64(x)/24+0.37, float64(y)/16+0.61)
				if math.Abs(n-0.5) < l.CaveThreshold {
					g.Put(LayerFG, x, y, TileNone)
				}
			}
		}
	}

	if l.TorchChance > 0 {
		l.placeTorches(g, seed)
	}
	Ring(g, TileDirt)
	return nil
}

// placeTorches puts torches on cave floors: an open cell with solid ground
// below and a back wall behind.
func (l *LayeredGenerator) placeTorches(g *Grid, seed int64) {
	torches := [...]Tile{TileRedTorch, TileGreenTorch, TileBlueTorch}
	for y := 1; y < g.Height()-1; y++ {
		for x := 1; x < g.Width()-1; x++ {
			if g.FG(x, y) != TileNone || g.BG(x, y) == TileNone || g.FG(x, y+1) == TileNone {
				continue
			}
			r := hash01(seed+3, int64(x), int64(y))
			if r < l.TorchChance {
				g.Put(LayerFG, x, y, torches[int(r/l.TorchChance*3)%3])
			}
		}
	}
}

// Ring makes the outermost tiles solid in both layers.
func Ring(g *Grid, t Tile) {
	w, h := g.Width(), g.Height()
	g.Fill(0, 0, w, 1, t, t)
	g.Fill(0, h-1, w, h, t, t)
	g.Fill(0, 0, 1, h, t, t)
	g.Fill(w-1, 0, w, h, t, t)
}

// hash01 maps a lattice point to [0,1) with a splitmix64 finaliser.
func hash01(seed, x, y int64) float64 {
	z := uint64(seed)*0x9E3779B97F4A7C15 ^ uint64(x)*0xBF58476D1CE4E5B9 ^ uint64(y)*0x94D049BB133111EB
	z = (z ^ z>>30) * 0xBF58476D1CE4E5B9
	z = (z ^ z>>27) * 0x94D049BB133111EB
	z ^= z >> 31
	return float64(z>>11) / (1 << 53)
}

// Perlin generators are immutable once built; one per seed is shared.
var perlins sync.Map

func perlinFor(seed int64) *perlin.Perlin {
	if p, ok := perlins.Load(seed); ok {
		return p.(*perlin.Perlin)
	}
	p, _ := perlins.LoadOrStore(seed, perlin.NewPerlin(2, 2, 3, seed))
	return p.(*perlin.Perlin)
}

// unit maps Perlin output, centred on 0, into [0,1).
func unit(n float64) float64 {
	v := 0.5 + n
	switch {
	case v < 0:
		return 0
	case v >= 1:
		return math.Nextafter(1, 0)
	}
	return v
}

// Noise1 is smooth 1D Perlin noise in [0,1).
func Noise1(seed int64, x float64) float64 { return unit(perlinFor(seed).Noise1D(x)) }

func noise2(seed int64, x, y float64) float64 { return unit(perlinFor(seed).Noise2D(x, y)) }
