package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"golang.org/x/time/rate"
)

const (
	// DefaultNebulaEndpoint is the upstream batch endpoint
	DefaultNebulaEndpoint = "https://vdata.amap.com/nebula/v3"
	// DefaultNebulaVerifyEndpoint answers key checks
	DefaultNebulaVerifyEndpoint = "https://vdata.amap.com/nebula/v2"
	// DefaultProjection is the projection identifier sent upstream
	DefaultProjection = "EPSG:3857"

	// nebulaTileType asks for the full tile rather than the lite variants
	nebulaTileType = 2
	nebulaSource   = "nebula"
)

// NebulaFetcher requests a whole tile batch in a single HTTP call
type NebulaFetcher struct {
	Client  *http.Client
	Limiter *rate.Limiter
}

type nebulaEnvelope struct {
	Status json.RawMessage   `json:"status"`
	Info   string            `json:"info"`
	Tiles  []json.RawMessage `json:"tiles"`
}

type tileHeader struct {
	X *int `json:"x"`
	Y *int `json:"y"`
	Z *int `json:"z"`
}

// NewRequestURL builds the batch URL for req
func NewRequestURL(req Request) (string, error) {
	if req.Endpoint == "" {
		return "", errors.New("missing endpoint")
	}
	if req.Key == "" {
		return "", errors.New("missing key")
	}
	keys := make([]string, len(req.Tiles))
	for i, t := range req.Tiles {
		keys[i] = fmt.Sprintf("%s,%d", t.Key(), nebulaTileType)
	}
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = AllLayerKinds
	}
	projection := req.Projection
	if projection == "" {
		projection = DefaultProjection
	}
	q := url.Values{}
	q.Set("key", req.Key)
	q.Set("flds", strings.Join(LayerNames(kinds), ","))
	q.Set("t", strings.Join(keys, ";"))
	q.Set("zoom", strconv.Itoa(req.Zoom))
	q.Set("proj", projection)
	q.Set("p", "3")
	sep := "?"
	if strings.Contains(req.Endpoint, "?") {
		sep = "&"
	}
	return req.Endpoint + sep + q.Encode(), nil
}

func (f *NebulaFetcher) Fetch(ctx context.Context, req Request) (RawBatch, error) {
	env, err := f.get(ctx, req)
	if err != nil {
		return nil, err
	}
	batch := make(RawBatch, 0, len(env.Tiles))
	for i, raw := range env.Tiles {
		var h tileHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("tile %d of batch: %w", i, err)
		}
		if h.X == nil || h.Y == nil || h.Z == nil {
			return nil, fmt.Errorf("tile %d of batch has no coordinates", i)
		}
		batch = append(batch, RawTile{
			Coords: tileutils.TileCoords{Z: *h.Z, X: *h.X, Y: *h.Y},
			Data:   raw,
		})
	}
	return batch, nil
}

// NebulaZoomRange is the range of zooms Nebula holds vector data for.
// Higher zooms are requested with tiles covered at its maximum.
var NebulaZoomRange = tileutils.ZoomRange{Min: 3, Max: 17}

// Verify checks key against the upstream with a one-tile request; an empty
// endpoint uses DefaultNebulaVerifyEndpoint. The returned error carries the
// upstream's explanation.
func (f *NebulaFetcher) Verify(ctx context.Context, endpoint, key string) error {
	if endpoint == "" {
		endpoint = DefaultNebulaVerifyEndpoint
	}
	_, err := f.get(ctx, Request{
		Endpoint: endpoint,
		Key:      key,
		Zoom:     12,
		Kinds:    []LayerKind{LayerRegion},
		Tiles:    []tileutils.TileCoords{{Z: 12, X: 3000, Y: 1000}},
	})
	return err
}

func (f *NebulaFetcher) get(ctx context.Context, req Request) (*nebulaEnvelope, error) {
	u, err := NewRequestURL(req)
	if err != nil {
		return nil, err
	}
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	t0 := time.Now()
	metrics.FetchRequestsTotal.WithLabelValues(nebulaSource).Inc()
	logger.L().Debug("nebula_req", "tiles", len(req.Tiles), "zoom", req.Zoom)
	resp, err := client.Do(httpReq)
	if err != nil {
		metrics.FetchFailTotal.WithLabelValues(nebulaSource).Inc()
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchFailTotal.WithLabelValues(nebulaSource).Inc()
		return nil, err
	}
	metrics.FetchDurationMs.WithLabelValues(nebulaSource).Observe(float64(time.Since(t0).Milliseconds()))
	if resp.StatusCode != http.StatusOK {
		metrics.FetchFailTotal.WithLabelValues(nebulaSource).Inc()
		return nil, fmt.Errorf("upstream returned %s", resp.Status)
	}
	body, err = tileutils.Gunzip(body)
	if err != nil {
		metrics.FetchFailTotal.WithLabelValues(nebulaSource).Inc()
		return nil, err
	}
	var env nebulaEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.FetchFailTotal.WithLabelValues(nebulaSource).Inc()
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	if !statusOK(env.Status) {
		metrics.FetchFailTotal.WithLabelValues(nebulaSource).Inc()
		info := env.Info
		if info == "" {
			info = "no info"
		}
		return nil, fmt.Errorf("upstream error: %s", info)
	}
	logger.L().Debug("nebula_resp", "tiles", len(env.Tiles), "duration_ms", time.Since(t0).Milliseconds())
	return &env, nil
}

// statusOK accepts the status spellings the upstream uses: true, "1" and 1
func statusOK(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	return s == "true" || s == `"1"` || s == "1"
}

// NebulaDecoder decodes the JSON form of upstream tiles
type NebulaDecoder struct{}

type nebulaTile struct {
	X      int           `json:"x"`
	Y      int           `json:"y"`
	Z      int           `json:"z"`
	Layers []nebulaLayer `json:"layers"`
}

type nebulaLayer struct {
	Type json.RawMessage                 `json:"type"`
	X    *int                            `json:"x"`
	Y    *int                            `json:"y"`
	Z    *int                            `json:"z"`
	D    map[string][]nebulaFeatureGroup `json:"d"`
}

type nebulaFeatureGroup struct {
	Mainkey    int     `json:"mainkey"`
	Subkey     int     `json:"subkey"`
	Resolution float64 `json:"resolution"`
	Items      []Item  `json:"items"`
}

func (NebulaDecoder) Decode(batch RawBatch) ([]Tile, error) {
	tiles := make([]Tile, 0, len(batch))
	for _, raw := range batch {
		var nt nebulaTile
		if err := json.Unmarshal(raw.Data, &nt); err != nil {
			return nil, fmt.Errorf("decoding tile %s: %w", raw.Coords, err)
		}
		tile := Tile{
			Coords: tileutils.TileCoords{Z: nt.Z, X: nt.X, Y: nt.Y},
			Layers: make([]Layer, 0, len(nt.Layers)),
		}
		for _, nl := range nt.Layers {
			layer := Layer{Kind: layerKindOf(nl.Type), Coords: tile.Coords}
			if nl.X != nil && nl.Y != nil && nl.Z != nil {
				layer.Coords = tileutils.TileCoords{Z: *nl.Z, X: *nl.X, Y: *nl.Y}
			}
			if layer.Kind != LayerUnknown {
				for name, groups := range nl.D {
					if ParseLayerKind(name) != layer.Kind {
						continue
					}
					for _, g := range groups {
						layer.Groups = append(layer.Groups, FeatureGroup(g))
					}
				}
			}
			tile.Layers = append(tile.Layers, layer)
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}

// layerKindOf reads a layer type given either as its number or its name
func layerKindOf(raw json.RawMessage) LayerKind {
	if len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return LayerUnknown
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		k := LayerKind(n)
		if _, ok := layerNames[k]; ok {
			return k
		}
		return LayerUnknown
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return ParseLayerKind(name)
	}
	return LayerUnknown
}
