package tileutils

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// MaxLatitude is the northern limit of the web mercator tile grid
const MaxLatitude = 85.05112877980659

// TileCoords is the z/x/y address of a tile
type TileCoords struct {
	Z int
	X int
	Y int
}

func (c TileCoords) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Key renders the coordinates in the comma form used by upstream requests
func (c TileCoords) Key() string {
	return fmt.Sprintf("%d,%d,%d", c.Z, c.X, c.Y)
}

// MapTile converts the coordinates to an orb maptile
func (c TileCoords) MapTile() maptile.Tile {
	return maptile.New(uint32(c.X), uint32(c.Y), maptile.Zoom(c.Z))
}

// BoundingBox is a lat/lon set of coordinates for a bounding box
type BoundingBox struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// NewBoundingBox builds the axis-aligned box spanned by two opposite corners,
// given in any order as lng/lat points.
func NewBoundingBox(c1, c2 orb.Point) BoundingBox {
	return BoundingBox{
		Left:   math.Min(c1.Lon(), c2.Lon()),
		Right:  math.Max(c1.Lon(), c2.Lon()),
		Bottom: math.Min(c1.Lat(), c2.Lat()),
		Top:    math.Max(c1.Lat(), c2.Lat()),
	}
}

// Bound returns the box as an orb.Bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Left, b.Bottom},
		Max: orb.Point{b.Right, b.Top},
	}
}

func (b BoundingBox) valid() bool {
	for _, v := range []float64{b.Left, b.Right, b.Top, b.Bottom} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.Left <= b.Right && b.Bottom <= b.Top
}

// tilesInBbox returns all tiles within the lat/lon bounding box at the specified zoom level,
// row by row from the north-west tile. Boxes outside the mercator grid cover nothing.
func tilesInBbox(bbox BoundingBox, zoom int) []TileCoords {
	if !bbox.valid() || bbox.Bottom > MaxLatitude || bbox.Top < -MaxLatitude {
		return nil
	}
	z := maptile.Zoom(zoom)
	nw := maptile.At(orb.Point{bbox.Left, math.Min(bbox.Top, MaxLatitude)}, z)
	se := maptile.At(orb.Point{bbox.Right, math.Max(bbox.Bottom, -MaxLatitude)}, z)
	tileMax := (1 << zoom) - 1

	xMin, xMax := clamp(int(nw.X), tileMax), clamp(int(se.X), tileMax)
	yMin, yMax := clamp(int(nw.Y), tileMax), clamp(int(se.Y), tileMax)
	// lon 180 lands on the first column of the next world copy
	if bbox.Right >= 180 {
		xMax = tileMax
	}

	tiles := make([]TileCoords, 0, (xMax-xMin+1)*(yMax-yMin+1))
	for y := yMin; y <= yMax; y++ {
		for x := xMin; x <= xMax; x++ {
			tiles = append(tiles, TileCoords{Z: zoom, X: x, Y: y})
		}
	}
	return tiles
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// TilesFromFile reads tile coordinates from a file where each line is z/x/y
func TilesFromFile(filename string) ([]TileCoords, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read file (%s): %w", filename, err)
	}
	lines := strings.Split(string(data), "\n")
	tiles := make([]TileCoords, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		coords := strings.Split(l, "/")
		if len(coords) != 3 {
			return nil, fmt.Errorf("invalid line, expected 3 coordinates but got %d: %s", len(coords), l)
		}
		z, err := strconv.Atoi(coords[0])
		if err != nil {
			return nil, err
		}
		x, err := strconv.Atoi(coords[1])
		if err != nil {
			return nil, err
		}
		y, err := strconv.Atoi(coords[2])
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, TileCoords{
			Z: z,
			X: x,
			Y: y,
		})
	}
	return tiles, nil
}
