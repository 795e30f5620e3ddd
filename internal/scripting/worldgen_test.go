package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tilesim/tilesim/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const flatScript = `
world = { dirt_depth = 2, stone_depth = 3, cave_threshold = 0, torch_chance = 0 }

function surface_height(x, seed, width, height)
	return 10
end
`

func TestFlatWorld(t *testing.T) {
	gen, err := NewWorldGenString(flatScript, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWorldGenString: %v", err)
	}
	defer gen.Close()

	g := world.NewGrid(32, 32, world.DefaultTileTable())
	if err := gen.Generate(g, 1); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tests := []struct {
		y    int
		want world.Tile
	}{
		{9, world.TileNone},
		{10, world.TileDirt},
		{11, world.TileDirt},
		{12, world.TileStone},
		{14, world.TileStone},
		{15, world.TileDenseStone},
		{31, world.TileDirt}, // border ring
	}
	for _, tt := range tests {
		if got := g.FG(5, tt.y); got != tt.want {
			t.Errorf("FG(5, %d) = %v, want %v", tt.y, got, tt.want)
		}
	}
	if got := g.FG(0, 5); got != world.TileDirt {
		t.Errorf("left border = %v, want dirt", got)
	}
}

func TestNoiseAndLogBindings(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	src := `
local first = noise(7, 0.5)
if first < 0 or first >= 1 then error("noise out of range") end
log("hello")

function surface_height(x, seed, width, height)
	return math.floor(height / 2 + noise(seed, x / 8) * 4)
end
`
	gen, err := NewWorldGenString(src, zap.New(core))
	if err != nil {
		t.Fatalf("NewWorldGenString: %v", err)
	}
	defer gen.Close()
	if logs.FilterMessage("lua: hello").Len() != 1 {
		t.Fatalf("log binding not called: %v", logs.All())
	}

	a := world.NewGrid(64, 32, world.DefaultTileTable())
	b := world.NewGrid(64, 32, world.DefaultTileTable())
	if err := gen.Generate(a, 3); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := gen.Generate(b, 3); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			if a.FG(x, y) != b.FG(x, y) {
				t.Fatalf("same seed differs at (%d,%d)", x, y)
			}
		}
	}
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		load bool // error expected at load time
	}{
		{"syntax", "function (", true},
		{"missing surface", "x = 1", true},
		{"runtime", "function surface_height(x) error('boom') end", false},
		{"not a number", "function surface_height(x) return 'high' end", false},
		{"out of range", "function surface_height(x, s, w, h) return h + 5 end", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := NewWorldGenString(tt.src, zaptest.NewLogger(t))
			if tt.load {
				if err == nil {
					gen.Close()
					t.Fatal("NewWorldGenString succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewWorldGenString: %v", err)
			}
			defer gen.Close()
			if err := gen.Generate(world.NewGrid(16, 16, world.DefaultTileTable()), 1); err == nil {
				t.Fatal("Generate succeeded, want error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.lua")
	if err := os.WriteFile(path, []byte(flatScript), 0o644); err != nil {
		t.Fatal(err)
	}
	gen, err := NewWorldGen(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewWorldGen: %v", err)
	}
	gen.Close()

	if _, err := NewWorldGen(filepath.Join(t.TempDir(), "missing.lua"), zaptest.NewLogger(t)); err == nil {
		t.Fatal("NewWorldGen on a missing file succeeded")
	}
}
