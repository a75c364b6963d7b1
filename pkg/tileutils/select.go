package tileutils

import (
	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
)

// MaxSelectionTiles bounds the number of tiles a single selection may cover
const MaxSelectionTiles = 16

// Coverer computes the set of tiles covering a bounding box at a zoom level
type Coverer interface {
	Cover(bbox BoundingBox, zoom int) ([]TileCoords, error)
}

// CovererFunc adapts a function to the Coverer interface
type CovererFunc func(bbox BoundingBox, zoom int) ([]TileCoords, error)

func (f CovererFunc) Cover(bbox BoundingBox, zoom int) ([]TileCoords, error) {
	return f(bbox, zoom)
}

// WebMercatorCoverer covers boxes with the standard XYZ web mercator grid
type WebMercatorCoverer struct{}

func (WebMercatorCoverer) Cover(bbox BoundingBox, zoom int) ([]TileCoords, error) {
	if zoom < 0 || zoom > 30 {
		return nil, apperrors.Invalidf("zoom %d out of range", zoom)
	}
	return tilesInBbox(bbox, zoom), nil
}

// ZoomRange is the span of zoom levels a tile source serves
type ZoomRange struct {
	Min int
	Max int
}

// Adjust clamps a requested zoom to the range. A zero range leaves zoom unchanged.
func (r ZoomRange) Adjust(zoom int) int {
	if r.Min == 0 && r.Max == 0 {
		return zoom
	}
	if zoom < r.Min {
		return r.Min
	}
	if zoom > r.Max {
		return r.Max
	}
	return zoom
}

// SelectTiles covers bbox at zoom and enforces the selection budget
func SelectTiles(c Coverer, bbox BoundingBox, zoom int) ([]TileCoords, error) {
	tiles, err := c.Cover(bbox, zoom)
	if err != nil {
		return nil, err
	}
	return CheckBudget(tiles)
}

// CheckBudget fails for empty tile sets and sets larger than MaxSelectionTiles
func CheckBudget(tiles []TileCoords) ([]TileCoords, error) {
	if len(tiles) == 0 {
		return nil, apperrors.SelectionEmpty()
	}
	if len(tiles) > MaxSelectionTiles {
		return nil, apperrors.SelectionTooLarge(len(tiles), MaxSelectionTiles)
	}
	return tiles, nil
}
