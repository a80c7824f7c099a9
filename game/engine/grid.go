package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Layout characters used by scenarios and the rendered map.
const (
	PlainChar = '.'
	TreesChar = 'T'
)

// Map is a fixed-size terrain grid stored row-major.
type Map struct {
	size  Size2
	tiles []Terrain
}

// NewMap creates a grid of the given size with every tile set to fill
func NewMap(size Size2, fill Terrain) *Map {
	tiles := make([]Terrain, size.W*size.H)
	for i := range tiles {
		tiles[i] = fill
	}
	return &Map{size: size, tiles: tiles}
}

// Size returns the grid dimensions
func (m *Map) Size() Size2 {
	return m.size
}

// InBounds reports whether pos lies inside the grid
func (m *Map) InBounds(pos MapPos) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < m.size.W && pos.Y < m.size.H
}

// TileAt returns the terrain at pos. Out-of-bounds lookup is not supported and panics.
func (m *Map) TileAt(pos MapPos) Terrain {
	return m.tiles[m.index(pos)]
}

// setTile is construction-time only; gameplay events never change terrain.
func (m *Map) setTile(pos MapPos, t Terrain) {
	m.tiles[m.index(pos)] = t
}

func (m *Map) index(pos MapPos) int {
	if !m.InBounds(pos) {
		panic(fmt.Sprintf("engine: tile %s outside %dx%d map", pos, m.size.W, m.size.H))
	}
	return pos.Y*m.size.W + pos.X
}

// Rows renders the grid as layout strings, one per row
func (m *Map) Rows() []string {
	rows := make([]string, m.size.H)
	for y := 0; y < m.size.H; y++ {
		var b strings.Builder
		for x := 0; x < m.size.W; x++ {
			b.WriteRune(TerrainChar(m.tiles[y*m.size.W+x]))
		}
		rows[y] = b.String()
	}
	return rows
}

// CountTerrain counts tiles of the given terrain
func (m *Map) CountTerrain(t Terrain) int {
	count := 0
	for _, tile := range m.tiles {
		if tile == t {
			count++
		}
	}
	return count
}

// MarshalJSON renders the map as its size plus layout rows.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Size   Size2    `json:"size"`
		Layout []string `json:"layout"`
	}{m.size, m.Rows()})
}

// TerrainChar maps terrain to its layout character
func TerrainChar(t Terrain) rune {
	switch t {
	case Trees:
		return TreesChar
	default:
		return PlainChar
	}
}

// TerrainFromChar maps a layout character back to terrain
func TerrainFromChar(c rune) (Terrain, bool) {
	switch c {
	case PlainChar:
		return Plain, true
	case TreesChar:
		return Trees, true
	default:
		return "", false
	}
}
