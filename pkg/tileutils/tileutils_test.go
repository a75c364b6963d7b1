package tileutils

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTilesInBbox(t *testing.T) {
	type testCase struct {
		name     string
		bbox     BoundingBox
		zoom     int
		numTiles int
	}
	tests := []testCase{}
	for z := 0; z < 10; z++ {
		tests = append(tests, testCase{
			name: fmt.Sprintf("zoom %d", z),
			bbox: BoundingBox{
				Left:   -180,
				Right:  180,
				Top:    85,
				Bottom: -85,
			},
			zoom:     z,
			numTiles: int(math.Pow(4, float64(z))),
		})
	}
	tests = append(tests,
		testCase{
			name:     "outside the mercator grid",
			bbox:     BoundingBox{Left: 0, Right: 10, Top: 89, Bottom: 86},
			zoom:     4,
			numTiles: 0,
		},
		testCase{
			name:     "inverted box",
			bbox:     BoundingBox{Left: 10, Right: 0, Top: 10, Bottom: 0},
			zoom:     4,
			numTiles: 0,
		},
	)
	for _, tt := range tests {
		test := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tiles := tilesInBbox(test.bbox, test.zoom)
			assert.Equal(t, test.numTiles, len(tiles))
		})
	}
}

func TestTilesInBboxOrder(t *testing.T) {
	// four tiles around the origin at zoom 1
	tiles := tilesInBbox(NewBoundingBox(orb.Point{10, -10}, orb.Point{-10, 10}), 1)
	assert.Equal(t, []TileCoords{
		{Z: 1, X: 0, Y: 0},
		{Z: 1, X: 1, Y: 0},
		{Z: 1, X: 0, Y: 1},
		{Z: 1, X: 1, Y: 1},
	}, tiles)
}

func TestNewBoundingBox(t *testing.T) {
	b := NewBoundingBox(orb.Point{113.3, 35.1}, orb.Point{113.2, 35.2})
	assert.Equal(t, BoundingBox{Left: 113.2, Right: 113.3, Top: 35.2, Bottom: 35.1}, b)
	assert.Equal(t, orb.Point{113.2, 35.1}, b.Bound().Min)
}

func TestTileCoordsKey(t *testing.T) {
	c := TileCoords{Z: 17, X: 107432, Y: 52317}
	assert.Equal(t, "17,107432,52317", c.Key())
	assert.Equal(t, "17/107432/52317", c.String())
	mt := c.MapTile()
	assert.EqualValues(t, 107432, mt.X)
	assert.EqualValues(t, 17, mt.Z)
}

func TestTilesFromFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "tiles.txt")
	require.Nil(t, os.WriteFile(filename, []byte("# pinned\n17/1/2\n\n17/3/4\n"), 0644))
	tiles, err := TilesFromFile(filename)
	require.Nil(t, err)
	assert.Equal(t, []TileCoords{{Z: 17, X: 1, Y: 2}, {Z: 17, X: 3, Y: 4}}, tiles)

	require.Nil(t, os.WriteFile(filename, []byte("17/1\n"), 0644))
	_, err = TilesFromFile(filename)
	assert.NotNil(t, err)
}
