// Package geo adapts orb's web mercator support to the two coordinate
// capabilities the pipeline consumes: decoding quantized tile coordinates to
// lng/lat, and projecting lng/lat onto a planar frame.
package geo

import (
	"fmt"
	"math"

	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Decoder turns a quantized coordinate inside a tile into lng/lat.
// resolution is the number of quantization steps along one tile edge; qy grows southwards.
type Decoder interface {
	Decode(tile tileutils.TileCoords, resolution, qx, qy float64) (orb.Point, error)
}

// Projector maps lng/lat onto a planar frame
type Projector interface {
	Project(p orb.Point) orb.Point
}

// Adapter is the full coordinate capability
type Adapter interface {
	Decoder
	Projector
}

// WebMercator decodes XYZ tile coordinates and projects to EPSG:3857 metres
type WebMercator struct{}

var _ Adapter = WebMercator{}

func (WebMercator) Decode(tile tileutils.TileCoords, resolution, qx, qy float64) (orb.Point, error) {
	if resolution <= 0 || math.IsNaN(resolution) {
		return orb.Point{}, fmt.Errorf("invalid resolution %v for tile %s", resolution, tile)
	}
	if math.IsNaN(qx) || math.IsNaN(qy) || math.IsInf(qx, 0) || math.IsInf(qy, 0) {
		return orb.Point{}, fmt.Errorf("invalid coordinate (%v, %v) in tile %s", qx, qy, tile)
	}
	b := tile.MapTile().Bound()
	nw := project.WGS84.ToMercator(orb.Point{b.Min.Lon(), b.Max.Lat()})
	se := project.WGS84.ToMercator(orb.Point{b.Max.Lon(), b.Min.Lat()})
	m := orb.Point{
		nw[0] + qx/resolution*(se[0]-nw[0]),
		nw[1] + qy/resolution*(se[1]-nw[1]),
	}
	return project.Mercator.ToWGS84(m), nil
}

func (WebMercator) Project(p orb.Point) orb.Point {
	return project.WGS84.ToMercator(p)
}

// Anchor returns the minimum longitude and minimum latitude over the decoded
// origin of every tile.
func Anchor(tiles []tileutils.TileCoords, dec Decoder) (orb.Point, error) {
	if len(tiles) == 0 {
		return orb.Point{}, fmt.Errorf("anchor of an empty tile set")
	}
	anchor := orb.Point{math.Inf(1), math.Inf(1)}
	for _, t := range tiles {
		p, err := dec.Decode(t, 1, 0, 0)
		if err != nil {
			return orb.Point{}, err
		}
		anchor[0] = math.Min(anchor[0], p[0])
		anchor[1] = math.Min(anchor[1], p[1])
	}
	return anchor, nil
}
