package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"
)

const (
	mvtSource = "mvt"
	dirSource = "dir"

	defaultExtent = 4096
)

// MVTFetcher downloads one Mapbox vector tile per request from a URL template
// containing {z}, {x} and {y}, plus an optional {key}. Tiles are requested
// sequentially and the batch fails on the first error.
type MVTFetcher struct {
	URLTemplate string
	Client      *http.Client
	Limiter     *rate.Limiter
}

// TileURL expands the template for one tile
func (f *MVTFetcher) TileURL(t tileutils.TileCoords, key string) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{key}", key,
	).Replace(f.URLTemplate)
}

func (f *MVTFetcher) Fetch(ctx context.Context, req Request) (RawBatch, error) {
	if f.URLTemplate == "" {
		return nil, fmt.Errorf("missing url template")
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	batch := make(RawBatch, 0, len(req.Tiles))
	for _, t := range req.Tiles {
		data, err := f.fetchTile(ctx, client, t, req.Key)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", t, err)
		}
		batch = append(batch, RawTile{Coords: t, Data: data})
	}
	return batch, nil
}

func (f *MVTFetcher) fetchTile(ctx context.Context, client *http.Client, t tileutils.TileCoords, key string) ([]byte, error) {
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.TileURL(t, key), nil)
	if err != nil {
		return nil, err
	}
	t0 := time.Now()
	metrics.FetchRequestsTotal.WithLabelValues(mvtSource).Inc()
	resp, err := client.Do(req)
	if err != nil {
		metrics.FetchFailTotal.WithLabelValues(mvtSource).Inc()
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchFailTotal.WithLabelValues(mvtSource).Inc()
		return nil, err
	}
	dur := time.Since(t0).Milliseconds()
	metrics.FetchDurationMs.WithLabelValues(mvtSource).Observe(float64(dur))
	logger.L().Debug("mvt_resp", "tile", t.String(), "status", resp.StatusCode, "bytes", len(data), "duration_ms", dur)
	if resp.StatusCode != http.StatusOK {
		metrics.FetchFailTotal.WithLabelValues(mvtSource).Inc()
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	return data, nil
}

// DirFetcher replays tiles from a directory tree written by the file archive
type DirFetcher struct {
	Dir string
	// Ext overrides the extension read from the directory's tiles.json
	Ext string
}

func (f *DirFetcher) Fetch(ctx context.Context, req Request) (RawBatch, error) {
	fw := &tileutils.FileWriter{Path: f.Dir, Ext: f.ext()}
	batch := make(RawBatch, 0, len(req.Tiles))
	for _, t := range req.Tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		metrics.FetchRequestsTotal.WithLabelValues(dirSource).Inc()
		data, err := os.ReadFile(fw.TilePath(t.Z, t.X, t.Y))
		if err != nil {
			metrics.FetchFailTotal.WithLabelValues(dirSource).Inc()
			return nil, fmt.Errorf("tile %s: %w", t, err)
		}
		batch = append(batch, RawTile{Coords: t, Data: data})
	}
	return batch, nil
}

func (f *DirFetcher) ext() string {
	if f.Ext != "" {
		return f.Ext
	}
	tj, err := tileutils.ParseTileJSON(path.Join(f.Dir, "tiles.json"))
	if err != nil {
		logger.L().Debug("dir_tilejson_missing", "dir", f.Dir, "err", err)
		return tileutils.MbTilesFormatPbf.Ext()
	}
	return tileutils.MbTilesFormat(tj.Format).Ext()
}

// MVTDecoder decodes Mapbox vector tiles whose layers are named after layer
// kinds. Features are grouped by their mainkey and subkey properties, and
// geometry stays in tile pixel coordinates with the layer extent as resolution.
type MVTDecoder struct{}

func (MVTDecoder) Decode(batch RawBatch) ([]Tile, error) {
	tiles := make([]Tile, 0, len(batch))
	for _, raw := range batch {
		data, err := tileutils.Gunzip(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", raw.Coords, err)
		}
		layers, err := mvt.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", raw.Coords, err)
		}
		tile := Tile{Coords: raw.Coords, Layers: make([]Layer, 0, len(layers))}
		for _, l := range layers {
			layer := Layer{Kind: ParseLayerKind(l.Name), Coords: raw.Coords}
			if layer.Kind != LayerUnknown {
				groups, err := groupFeatures(layer.Kind, l)
				if err != nil {
					return nil, fmt.Errorf("tile %s layer %s: %w", raw.Coords, l.Name, err)
				}
				layer.Groups = groups
			}
			tile.Layers = append(tile.Layers, layer)
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}

func groupFeatures(kind LayerKind, l *mvt.Layer) ([]FeatureGroup, error) {
	extent := float64(l.Extent)
	if extent == 0 {
		extent = defaultExtent
	}
	var groups []FeatureGroup
	index := map[[2]int]int{}
	for i, f := range l.Features {
		mainkey, ok := intProperty(f.Properties, "mainkey")
		if !ok {
			return nil, fmt.Errorf("feature %d has no mainkey", i)
		}
		subkey, _ := intProperty(f.Properties, "subkey")
		items, err := featureItems(kind, f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		k := [2]int{mainkey, subkey}
		gi, ok := index[k]
		if !ok {
			gi = len(groups)
			index[k] = gi
			groups = append(groups, FeatureGroup{Mainkey: mainkey, Subkey: subkey, Resolution: extent})
		}
		groups[gi].Items = append(groups[gi].Items, items...)
	}
	return groups, nil
}

// featureItems converts one feature into the item shape of its layer kind.
// Multi-geometries of line kinds become one item per line.
func featureItems(kind LayerKind, f *geojson.Feature) ([]Item, error) {
	props := func() Item {
		item := Item{}
		for k, v := range f.Properties {
			if k == "mainkey" || k == "subkey" {
				continue
			}
			item[k] = v
		}
		return item
	}
	switch kind {
	case LayerBuilding, LayerRegion:
		var rings []orb.Ring
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			rings = g
		case orb.MultiPolygon:
			for _, p := range g {
				rings = append(rings, p...)
			}
		default:
			return nil, fmt.Errorf("%s feature with %s geometry", kind, geometryType(f.Geometry))
		}
		paths := make([]any, len(rings))
		for i, r := range rings {
			paths[i] = map[string]any{"path": flatten(orb.LineString(r))}
		}
		item := props()
		item["path"] = paths
		return []Item{item}, nil
	case LayerRoad, LayerRoadName:
		var lines []orb.LineString
		switch g := f.Geometry.(type) {
		case orb.LineString:
			lines = []orb.LineString{g}
		case orb.MultiLineString:
			lines = g
		case orb.Point:
			if kind != LayerRoadName {
				return nil, fmt.Errorf("road feature with point geometry")
			}
			lines = []orb.LineString{{g}}
		default:
			return nil, fmt.Errorf("%s feature with %s geometry", kind, geometryType(f.Geometry))
		}
		items := make([]Item, len(lines))
		for i, ls := range lines {
			item := props()
			item["path"] = flatten(ls)
			items[i] = item
		}
		return items, nil
	case LayerPOILabel:
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("poilabel feature with %s geometry", geometryType(f.Geometry))
		}
		item := props()
		z := item["z"]
		if z == nil {
			z = float64(0)
		}
		delete(item, "z")
		item["pos"] = []any{p[0], p[1], z}
		return []Item{item}, nil
	}
	return nil, fmt.Errorf("unsupported layer kind %s", kind)
}

func flatten(ls orb.LineString) []any {
	out := make([]any, 0, 2*len(ls))
	for _, p := range ls {
		out = append(out, p[0], p[1])
	}
	return out
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "no"
	}
	return g.GeoJSONType()
}

func intProperty(props geojson.Properties, key string) (int, bool) {
	switch v := props[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		return int(v), true
	case float32:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	}
	return 0, false
}
