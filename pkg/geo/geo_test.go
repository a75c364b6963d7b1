package geo

import (
	"testing"

	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebMercatorDecodeCorners(t *testing.T) {
	wm := WebMercator{}
	tile := tileutils.TileCoords{Z: 1, X: 1, Y: 0}

	nw, err := wm.Decode(tile, 4096, 0, 0)
	require.Nil(t, err)
	assert.InDelta(t, 0, nw.Lon(), 1e-9)
	assert.InDelta(t, tileutils.MaxLatitude, nw.Lat(), 1e-6)

	se, err := wm.Decode(tile, 4096, 4096, 4096)
	require.Nil(t, err)
	assert.InDelta(t, 180, se.Lon(), 1e-9)
	assert.InDelta(t, 0, se.Lat(), 1e-6)

	mid, err := wm.Decode(tile, 4096, 2048, 2048)
	require.Nil(t, err)
	assert.InDelta(t, 90, mid.Lon(), 1e-9)
	// mercator is not linear in latitude
	assert.Greater(t, mid.Lat(), tileutils.MaxLatitude/2)
}

func TestWebMercatorDecodeResolutionIndependent(t *testing.T) {
	wm := WebMercator{}
	tile := tileutils.TileCoords{Z: 17, X: 107432, Y: 52317}
	a, err := wm.Decode(tile, 4096, 1024, 3072)
	require.Nil(t, err)
	b, err := wm.Decode(tile, 512, 128, 384)
	require.Nil(t, err)
	assert.InDelta(t, a.Lon(), b.Lon(), 1e-9)
	assert.InDelta(t, a.Lat(), b.Lat(), 1e-9)
}

func TestWebMercatorDecodeInvalid(t *testing.T) {
	_, err := WebMercator{}.Decode(tileutils.TileCoords{Z: 1}, 0, 0, 0)
	assert.NotNil(t, err)
}

func TestProjectRoundTripsOrigin(t *testing.T) {
	p := WebMercator{}.Project(orb.Point{0, 0})
	assert.InDelta(t, 0, p[0], 1e-6)
	assert.InDelta(t, 0, p[1], 1e-6)
}

func TestAnchor(t *testing.T) {
	tiles := []tileutils.TileCoords{
		{Z: 2, X: 1, Y: 1},
		{Z: 2, X: 2, Y: 1},
		{Z: 2, X: 1, Y: 2},
	}
	anchor, err := Anchor(tiles, WebMercator{})
	require.Nil(t, err)
	// west edge of column 1 and north edge of row 2
	assert.InDelta(t, -90, anchor.Lon(), 1e-9)
	assert.InDelta(t, 0, anchor.Lat(), 1e-6)

	_, err = Anchor(nil, WebMercator{})
	assert.NotNil(t, err)
}
