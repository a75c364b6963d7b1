package tileutils

import (
	"errors"
	"testing"

	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCoverer(n int) Coverer {
	return CovererFunc(func(bbox BoundingBox, zoom int) ([]TileCoords, error) {
		tiles := make([]TileCoords, n)
		for i := range tiles {
			tiles[i] = TileCoords{Z: zoom, X: i, Y: 0}
		}
		return tiles, nil
	})
}

func TestSelectTiles(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		errType apperrors.ErrorType
	}{
		{"empty", 0, apperrors.ErrorTypeSelectionEmpty},
		{"one", 1, ""},
		{"at budget", MaxSelectionTiles, ""},
		{"over budget", MaxSelectionTiles + 1, apperrors.ErrorTypeSelectionTooLarge},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			tiles, err := SelectTiles(fixedCoverer(test.count), BoundingBox{}, 17)
			if test.errType != "" {
				require.NotNil(t, err)
				assert.Equal(t, test.errType, apperrors.GetType(err))
				assert.Nil(t, tiles)
				return
			}
			require.Nil(t, err)
			assert.Len(t, tiles, test.count)
		})
	}
}

func TestSelectTilesCovererError(t *testing.T) {
	boom := errors.New("boom")
	_, err := SelectTiles(CovererFunc(func(BoundingBox, int) ([]TileCoords, error) {
		return nil, boom
	}), BoundingBox{}, 17)
	assert.ErrorIs(t, err, boom)
}

func TestWebMercatorCoverer(t *testing.T) {
	c := WebMercatorCoverer{}
	tiles, err := c.Cover(BoundingBox{Left: -10, Right: 10, Top: 10, Bottom: -10}, 1)
	require.Nil(t, err)
	assert.Len(t, tiles, 4)

	_, err = c.Cover(BoundingBox{}, 40)
	assert.Equal(t, apperrors.ErrorTypeInvalid, apperrors.GetType(err))
}

func TestZoomRangeAdjust(t *testing.T) {
	r := ZoomRange{Min: 3, Max: 17}
	assert.Equal(t, 17, r.Adjust(22))
	assert.Equal(t, 3, r.Adjust(1))
	assert.Equal(t, 12, r.Adjust(12))
	assert.Equal(t, 22, ZoomRange{}.Adjust(22))
}
