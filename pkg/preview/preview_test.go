package preview

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/flightaware/mapcraft-exporter/pkg/elements"
	"github.com/flightaware/mapcraft-exporter/pkg/geo"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#0000ff", color.NRGBA{0, 0, 0xff, 0xff}, true},
		{"f58d60", color.NRGBA{0xf5, 0x8d, 0x60, 0xff}, true},
		{"#0f0", color.NRGBA{0, 0xff, 0, 0xff}, true},
		{"#12345", color.NRGBA{}, false},
		{"#gggggg", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.in, func(t *testing.T) {
			c, err := ParseColor(test.in)
			if !test.ok {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, test.want, c)
		})
	}
}

func TestRegionColor(t *testing.T) {
	assert.Equal(t, unclassifiedRegion, RegionColor(elements.Region{}))
	assert.Equal(t, unclassifiedRegion, RegionColor(elements.Region{PreviewColor: "blue"}))
	assert.Equal(t, color.NRGBA{0, 0xff, 0, 0xff}, RegionColor(elements.Region{PreviewColor: "#00ff00"}))
}

func square(x0, y0, x1, y1 float64) elements.Path {
	return elements.Path{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

func TestRender(t *testing.T) {
	els := elements.New()
	// left half blue water, right half unclassified
	els.Regions = append(els.Regions,
		elements.Region{PreviewColor: "#0000ff", Path: []elements.Path{square(0, 0, 5, 10)}},
		elements.Region{Path: []elements.Path{square(5, 0, 10, 10)}},
	)
	anchor := orb.Point{0, 0}
	img := Render(els, Options{Width: 120, Height: 120, Padding: 10, Anchor: &anchor})
	assert.Equal(t, 120, img.Bounds().Dx())

	// padding stays white
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, img.RGBAAt(2, 2))
	// inside the blue region
	assert.Equal(t, color.RGBA{0, 0, 0xff, 0xff}, img.RGBAAt(35, 60))
	// the unclassified region is a faint grey over white
	grey := img.RGBAAt(85, 60)
	assert.Less(t, grey.R, uint8(0xff))
	assert.Greater(t, grey.R, uint8(0xc0))
	assert.Equal(t, grey.R, grey.G)
}

func TestRenderRoadsAndLabels(t *testing.T) {
	els := elements.New()
	els.Roads = append(els.Roads, elements.Road{Weight: 6, Path: elements.Path{{0, 5}, {10, 5}}})
	els.POIs = append(els.POIs, elements.POI{Name: "Cafe", Pos: orb.Point{5, 0}})
	els.RoadNames = append(els.RoadNames, elements.RoadName{Name: "G15", Path: elements.Path{{5, 10}}})
	img := Render(els, Options{Width: 100, Height: 100, Padding: 10, Labels: true})

	road := img.RGBAAt(50, 50)
	assert.NotEqual(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, road)
	assert.Greater(t, road.R, road.G)
}

func TestRenderProjected(t *testing.T) {
	// one degree square at 60N is about twice as tall as wide on the ground
	els := elements.New()
	els.Regions = append(els.Regions, elements.Region{PreviewColor: "#0000ff", Path: []elements.Path{square(10, 59.5, 11, 60.5)}})
	blue := color.RGBA{0, 0, 0xff, 0xff}
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}

	flat := Render(els, Options{Width: 200, Height: 200, Padding: 10})
	assert.Equal(t, blue, flat.RGBAAt(150, 100))

	img := Render(els, Options{Width: 200, Height: 200, Padding: 10, Projector: geo.WebMercator{}})
	assert.Equal(t, blue, img.RGBAAt(50, 100))
	assert.Equal(t, white, img.RGBAAt(150, 100))
	// full height is still used
	assert.Equal(t, blue, img.RGBAAt(50, 15))
	assert.Equal(t, blue, img.RGBAAt(50, 185))
}

func TestRenderEmpty(t *testing.T) {
	img := Render(elements.New(), Options{Width: 10, Height: 10})
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, img.RGBAAt(5, 5))
}

func TestSavePNG(t *testing.T) {
	els := elements.New()
	els.Buildings = append(els.Buildings, elements.Building{Path: []elements.Path{square(0, 0, 1, 1)}})
	path := filepath.Join(t.TempDir(), "preview.png")
	require.Nil(t, SavePNG(path, els, Options{Width: 64, Height: 32}))

	f, err := os.Open(path)
	require.Nil(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.Nil(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}
