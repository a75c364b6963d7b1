package tileutils

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
)

// TileJSON describes a tile archive written by the fetch stage
type TileJSON struct {
	TileJSON     string        `json:"tilejson"`
	Attribution  string        `json:"attribution,omitempty"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Version      string        `json:"version,omitempty"`
	Format       string        `json:"format,omitempty"`
	MinZoom      int           `json:"minzoom"`
	MaxZoom      int           `json:"maxzoom"`
	Bounds       []float64     `json:"bounds,omitempty"`
	Center       []float64     `json:"center,omitempty"`
	VectorLayers []VectorLayer `json:"vector_layers"`
}

type VectorLayer struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	MinZoom     int               `json:"minzoom"`
	MaxZoom     int               `json:"maxzoom"`
	Fields      map[string]string `json:"fields"`
}

// NewTileJSON describes a set of tiles carrying the given layers.
// Bounds and center are derived from the union of the tile bounds.
func NewTileJSON(name string, format MbTilesFormat, tiles []TileCoords, layers []string) *TileJSON {
	tj := &TileJSON{
		TileJSON: "3.0.0",
		Name:     name,
		Format:   string(format),
		MinZoom:  -1,
		MaxZoom:  -1,
	}
	var bound orb.Bound
	for i, t := range tiles {
		if tj.MinZoom == -1 || t.Z < tj.MinZoom {
			tj.MinZoom = t.Z
		}
		if t.Z > tj.MaxZoom {
			tj.MaxZoom = t.Z
		}
		b := t.MapTile().Bound()
		if i == 0 {
			bound = b
			continue
		}
		bound = bound.Union(b)
	}
	if len(tiles) > 0 {
		tj.Bounds = []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()}
		c := bound.Center()
		tj.Center = []float64{c.Lon(), c.Lat(), float64(tj.MaxZoom)}
	}
	for _, l := range layers {
		tj.VectorLayers = append(tj.VectorLayers, VectorLayer{
			ID:      l,
			MinZoom: tj.MinZoom,
			MaxZoom: tj.MaxZoom,
			Fields: map[string]string{
				"mainkey": "Number",
				"subkey":  "Number",
			},
		})
	}
	return tj
}

// ParseTileJSON reads a TileJSON file written by WriteTileJSON
func ParseTileJSON(filename string) (*TileJSON, error) {
	jsonBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	tj := TileJSON{
		MinZoom: -1,
		MaxZoom: -1,
	}
	if err := json.Unmarshal(jsonBytes, &tj); err != nil {
		return nil, fmt.Errorf("parsing tilejson (%s): %w", filename, err)
	}
	return &tj, nil
}

// WriteTileJSON writes tj as indented JSON
func WriteTileJSON(filename string, tj *TileJSON) error {
	data, err := json.MarshalIndent(tj, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
