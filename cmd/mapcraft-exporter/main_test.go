package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flightaware/mapcraft-exporter/pkg/elements"
	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/export"
	"github.com/flightaware/mapcraft-exporter/pkg/source"
	"github.com/flightaware/mapcraft-exporter/pkg/style"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("121.47, 31.23")
	require.Nil(t, err)
	assert.Equal(t, orb.Point{121.47, 31.23}, p)

	for _, in := range []string{"", "121.47", "a,31", "121,b", "1,2,3"} {
		_, err := parsePoint(in)
		assert.NotNil(t, err, in)
	}
}

func TestParseLayers(t *testing.T) {
	kinds, err := parseLayers("road, region,POI")
	require.Nil(t, err)
	assert.Equal(t, []source.LayerKind{source.LayerRoad, source.LayerRegion, source.LayerPOILabel}, kinds)

	kinds, err = parseLayers("")
	require.Nil(t, err)
	assert.Nil(t, kinds)

	_, err = parseLayers("road,rivers")
	assert.NotNil(t, err)
}

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name   string
		domain style.Domain
		values []string
		want   style.Attributes
		ok     bool
	}{
		{"road weight", style.DomainRoad, []string{"10"}, style.RoadStyle{Weight: 10}, true},
		{"road weight not a number", style.DomainRoad, []string{"wide"}, nil, false},
		{"region block", style.DomainRegion, []string{"minecraft:water"}, style.RegionStyle{BlockState: "minecraft:water"}, true},
		{"region with color", style.DomainRegion, []string{"minecraft:sand", "#f5e0a0"},
			style.RegionStyle{BlockState: "minecraft:sand", PreviewColor: "#f5e0a0"}, true},
		{"region bad color", style.DomainRegion, []string{"minecraft:sand", "yellowish"}, nil, false},
		{"unknown domain", style.Domain("poi"), []string{"1"}, nil, false},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			got, err := parseAttributes(test.domain, test.values)
			if !test.ok {
				assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalid))
				return
			}
			require.Nil(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestNewAggregator(t *testing.T) {
	agg, err := newAggregator(Args{Source: "nebula", Key: "k", Rate: 2}, nil)
	require.Nil(t, err)
	assert.Equal(t, source.DefaultNebulaEndpoint, agg.Endpoint)
	assert.IsType(t, &source.NebulaFetcher{}, agg.Fetcher)
	assert.IsType(t, source.NebulaDecoder{}, agg.Decoder)

	agg, err = newAggregator(Args{Source: "mvt", Endpoint: "https://tiles.example.com/{z}/{x}/{y}.mvt"}, nil)
	require.Nil(t, err)
	assert.IsType(t, source.MVTDecoder{}, agg.Decoder)

	// a directory archived from nebula holds JSON tiles
	dir := t.TempDir()
	tj := tileutils.NewTileJSON("archive", tileutils.MbTilesFormatJSON, nil, nil)
	require.Nil(t, tileutils.WriteTileJSON(filepath.Join(dir, "tiles.json"), tj))
	agg, err = newAggregator(Args{Source: "dir", Endpoint: dir}, nil)
	require.Nil(t, err)
	assert.IsType(t, source.NebulaDecoder{}, agg.Decoder)

	for _, args := range []Args{
		{Source: "mvt"},
		{Source: "dir"},
		{Source: "wms"},
		{Source: "nebula", Layers: "rivers"},
	} {
		_, err := newAggregator(args, nil)
		assert.NotNil(t, err, args.Source)
	}
}

func TestNewSink(t *testing.T) {
	dir := t.TempDir()
	sink, closeSink, err := newSink(context.Background(), Args{Sink: "file", Output: dir, Gzip: true})
	require.Nil(t, err)
	defer closeSink()
	assert.Equal(t, &export.FileSink{Dir: dir, Compress: true}, sink)

	for _, args := range []Args{{Sink: "postgres"}, {Sink: "redis"}, {Sink: "s3"}} {
		_, _, err := newSink(context.Background(), args)
		assert.NotNil(t, err, args.Sink)
	}
}

func TestNewArchive(t *testing.T) {
	archive, closeArchive, err := newArchive(Args{})
	require.Nil(t, err)
	closeArchive()
	assert.Nil(t, archive)

	dir := filepath.Join(t.TempDir(), "raw")
	archive, closeArchive, err = newArchive(Args{Archive: dir, Source: "nebula", Zoom: 17})
	require.Nil(t, err)
	defer closeArchive()
	require.NotNil(t, archive)

	tj, err := tileutils.ParseTileJSON(filepath.Join(dir, "tiles.json"))
	require.Nil(t, err)
	assert.Equal(t, string(tileutils.MbTilesFormatJSON), tj.Format)
	assert.Equal(t, 17, tj.MinZoom)
	assert.Len(t, tj.VectorLayers, len(source.AllLayerKinds))
}

// twoRoads returns a (20009, 1) and a (20009, 2) road per tile
type twoRoads struct{}

func (twoRoads) Fetch(ctx context.Context, tiles []tileutils.TileCoords, zoom int) ([]source.Tile, error) {
	out := make([]source.Tile, len(tiles))
	for i, t := range tiles {
		out[i] = source.Tile{Coords: t, Layers: []source.Layer{{
			Kind: source.LayerRoad, Coords: t,
			Groups: []source.FeatureGroup{{
				Mainkey: 20009, Subkey: 1, Resolution: 4096,
				Items: []source.Item{{"path": []any{0.0, 0.0, 4096.0, 4096.0}}},
			}, {
				Mainkey: 20009, Subkey: 2, Resolution: 4096,
				Items: []source.Item{{"path": []any{0.0, 4096.0, 4096.0, 0.0}}},
			}},
		}}}
	}
	return out, nil
}

// newConsole builds a console over the session run() builds, exporting to
// a file sink in a temporary directory
func newConsole(t *testing.T) (*console, *bytes.Buffer) {
	t.Helper()
	args := Args{Zoom: 22, Source: "nebula", Sink: "file", Output: t.TempDir()}
	sink, closeSink, err := newSink(context.Background(), args)
	require.Nil(t, err)
	t.Cleanup(closeSink)
	out := &bytes.Buffer{}
	return &console{session: newSession(args, twoRoads{}, sink), out: out}, out
}

func readExport(t *testing.T, path string) elements.Elements {
	t.Helper()
	data, err := os.ReadFile(path)
	require.Nil(t, err)
	var doc elements.Elements
	require.Nil(t, json.Unmarshal(data, &doc))
	return doc
}

func TestZoomRange(t *testing.T) {
	assert.Equal(t, source.NebulaZoomRange, zoomRange(Args{Source: "nebula"}))
	assert.Equal(t, tileutils.ZoomRange{Min: 10, Max: 16}, zoomRange(Args{Source: "nebula", MinZoom: 10, MaxZoom: 16}))
	assert.Equal(t, tileutils.ZoomRange{}, zoomRange(Args{Source: "mvt"}))
}

func TestSessionExportsThroughSink(t *testing.T) {
	dir := t.TempDir()
	args := Args{Zoom: 22, Source: "nebula", Sink: "file", Output: dir}
	sink, closeSink, err := newSink(context.Background(), args)
	require.Nil(t, err)
	defer closeSink()
	s := newSession(args, twoRoads{}, sink)

	// about a hundred metres: too many tiles at 22, a few at the data zoom
	_, err = s.SelectArea(context.Background(), orb.Point{121.4700, 31.2300}, orb.Point{121.4710, 31.2309})
	require.Nil(t, err)
	snap := s.Snapshot()
	require.NotEmpty(t, snap.Tiles)
	assert.Equal(t, source.NebulaZoomRange.Max, snap.Tiles[0].Z)

	path, err := s.Export(context.Background())
	require.Nil(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	doc := readExport(t, path)
	require.NotEmpty(t, doc.Roads)
	// remapped into metres around the anchor, not left in degrees
	var far float64
	for _, r := range doc.Roads {
		for _, p := range r.Path {
			assert.InDelta(t, 0, p[0], 2000)
			assert.InDelta(t, 0, p[1], 2000)
			far = math.Max(far, math.Abs(p[0]))
		}
	}
	assert.Greater(t, far, 100.0)
}

func TestConsoleEditAndExport(t *testing.T) {
	c, out := newConsole(t)
	ctx := context.Background()

	for _, line := range []string{
		"select 121.47,31.23 121.471,31.2309",
		"road 20009 1 10",
		"export",
	} {
		quit, err := c.exec(ctx, line)
		require.Nil(t, err, line)
		assert.False(t, quit)
	}
	text := out.String()
	assert.Contains(t, text, "roads=")
	i := strings.Index(text, "exported ")
	require.GreaterOrEqual(t, i, 0)
	path := strings.TrimSpace(strings.TrimPrefix(text[i:], "exported "))

	doc := readExport(t, path)
	require.NotEmpty(t, doc.Roads)
	for _, r := range doc.Roads {
		if r.Subkey == 1 {
			assert.Equal(t, 10, r.Weight)
			continue
		}
		// only the reassigned pair changes
		assert.Equal(t, 3, r.Weight)
	}
}

func TestConsoleErrorsKeepSession(t *testing.T) {
	c, out := newConsole(t)
	in := strings.NewReader(strings.Join([]string{
		"export",
		"road 20009 1 0",
		"frobnicate",
		"select 121.47,31.23 121.471,31.2309",
		"show",
		"quit",
		"show",
	}, "\n"))
	require.Nil(t, c.loop(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "error (export)")
	assert.Contains(t, text, "error (invalid)")
	assert.Contains(t, text, `unknown command "frobnicate"`)
	// show printed once after select and once explicitly; the one after quit never ran
	assert.Equal(t, 2, strings.Count(text, "gen 1,"))
	assert.Equal(t, 3, c.session.Rules().RoadWeight(20009, 1))
}

func TestConsoleRulesRoundTrip(t *testing.T) {
	c, _ := newConsole(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.yaml")

	_, err := c.exec(ctx, "region 30001 3 minecraft:water #0000ff")
	require.Nil(t, err)
	_, err = c.exec(ctx, "save-rules "+path)
	require.Nil(t, err)

	data, err := os.ReadFile(path)
	require.Nil(t, err)
	assert.Contains(t, string(data), "minecraft:water")

	other, _ := newConsole(t)
	_, err = other.exec(ctx, "load-rules "+path)
	require.Nil(t, err)
	assert.Equal(t, style.RegionStyle{BlockState: "minecraft:water", PreviewColor: "#0000ff"},
		other.session.Rules().RegionStyle(30001, 3))
}

func TestConsolePreview(t *testing.T) {
	c, _ := newConsole(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "p.png")

	_, err := c.exec(ctx, "preview "+path)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeSelectionEmpty))

	_, err = c.exec(ctx, "select 121.47,31.23 121.471,31.2309")
	require.Nil(t, err)
	_, err = c.exec(ctx, "preview "+path)
	require.Nil(t, err)
	_, err = os.Stat(path)
	assert.Nil(t, err)
}
