// Package data loads static game data files.
package data

import (
	"fmt"
	"os"

	"github.com/tilesim/tilesim/internal/light"
	"github.com/tilesim/tilesim/internal/world"
	"gopkg.in/yaml.v3"
)

// TileEntry overrides the properties of one tile type.
type TileEntry struct {
	Name  string   `yaml:"name"`
	Solid bool     `yaml:"solid"`
	Fade  uint8    `yaml:"fade"`
	Light [3]uint8 `yaml:"light"` // r, g, b emitted
}

// LoadTileTable loads tiles.yaml on top of the built-in table. Tiles the
// file does not mention keep their defaults.
func LoadTileTable(path string) (*world.TileTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile table: %w", err)
	}
	return ParseTileTable(raw)
}

func ParseTileTable(raw []byte) (*world.TileTable, error) {
	var entries []TileEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse tile table: %w", err)
	}
	t := world.DefaultTileTable()
	seen := make(map[world.Tile]bool, len(entries))
	for i, e := range entries {
		tile, ok := world.ParseTile(e.Name)
		if !ok {
			return nil, fmt.Errorf("tile table entry %d: unknown tile %q", i, e.Name)
		}
		if seen[tile] {
			return nil, fmt.Errorf("tile table entry %d: %s listed twice", i, e.Name)
		}
		seen[tile] = true
		if e.Fade < light.FadeMin {
			return nil, fmt.Errorf("tile %s: fade %d below %d", e.Name, e.Fade, light.FadeMin)
		}
		for _, c := range e.Light {
			if c > light.LightMax {
				return nil, fmt.Errorf("tile %s: light %d above %d", e.Name, c, light.LightMax)
			}
		}
		t.Set(tile, world.TileProps{Solid: e.Solid, Fade: e.Fade, Light: e.Light})
	}
	return t, nil
}
