package elements

import (
	"encoding/json"
	"fmt"

	"github.com/flightaware/mapcraft-exporter/pkg/geo"
	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"
	"github.com/flightaware/mapcraft-exporter/pkg/source"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"golang.org/x/exp/slices"
)

// Parse builds entities from decoded tiles. Each quantized coordinate pair is
// decoded against its layer's tile and its group's resolution. Layers of an
// unknown kind are skipped. A malformed item fails the whole parse.
//
// Regions are returned in reverse decode order.
func Parse(tiles []source.Tile, dec geo.Decoder) (*Elements, error) {
	els := New()
	for _, tile := range tiles {
		for _, layer := range tile.Layers {
			if layer.Kind == source.LayerUnknown {
				logger.L().Debug("layer_skipped", "tile", tile.Coords.String())
				continue
			}
			for gi, group := range layer.Groups {
				p := &itemParser{dec: dec, tile: layer.Coords, resolution: group.Resolution}
				for ii, item := range group.Items {
					if err := p.add(els, layer.Kind, group, item); err != nil {
						return nil, fmt.Errorf("tile %s layer %s group %d (%d, %d) item %d: %w",
							layer.Coords, layer.Kind, gi, group.Mainkey, group.Subkey, ii, err)
					}
				}
			}
		}
	}
	slices.Reverse(els.Regions)
	for kind, n := range els.Counts() {
		metrics.EntitiesParsedTotal.WithLabelValues(kind).Add(float64(n))
	}
	return els, nil
}

type itemParser struct {
	dec        geo.Decoder
	tile       tileutils.TileCoords
	resolution float64
}

func (p *itemParser) add(els *Elements, kind source.LayerKind, g source.FeatureGroup, item source.Item) error {
	switch kind {
	case source.LayerBuilding:
		rings, err := p.rings(item["path"])
		if err != nil {
			return err
		}
		height, err := optionalNumber(item, "height")
		if err != nil {
			return err
		}
		altitude, err := optionalNumber(item, "altitude")
		if err != nil {
			return err
		}
		els.Buildings = append(els.Buildings, Building{
			Mainkey:  g.Mainkey,
			Subkey:   g.Subkey,
			Height:   height,
			Altitude: altitude,
			Path:     rings,
		})
	case source.LayerRegion:
		rings, err := p.rings(item["path"])
		if err != nil {
			return err
		}
		els.Regions = append(els.Regions, Region{Mainkey: g.Mainkey, Subkey: g.Subkey, Path: rings})
	case source.LayerRoad:
		path, err := p.path(item["path"])
		if err != nil {
			return err
		}
		els.Roads = append(els.Roads, Road{Mainkey: g.Mainkey, Subkey: g.Subkey, Path: path})
	case source.LayerPOILabel:
		pos, err := numbers(item["pos"])
		if err != nil {
			return fmt.Errorf("pos: %w", err)
		}
		if len(pos) < 2 {
			return fmt.Errorf("pos has %d values, want at least 2", len(pos))
		}
		pt, err := p.dec.Decode(p.tile, p.resolution, pos[0], pos[1])
		if err != nil {
			return err
		}
		var z float64
		if len(pos) > 2 {
			z = pos[2]
		}
		rank, err := optionalNumber(item, "rank")
		if err != nil {
			return err
		}
		name, err := optionalString(item, "name")
		if err != nil {
			return err
		}
		els.POIs = append(els.POIs, POI{
			Mainkey: g.Mainkey,
			Subkey:  g.Subkey,
			Rank:    rank,
			Name:    name,
			Pos:     pt,
			Z:       z,
		})
	case source.LayerRoadName:
		rn, err := p.roadName(g, item)
		if err != nil {
			return err
		}
		els.RoadNames = append(els.RoadNames, rn)
	default:
		return fmt.Errorf("unsupported layer kind %d", kind)
	}
	return nil
}

// roadName anchors shielded names to their first point and labels them with
// the shield text; other names keep their whole path.
func (p *itemParser) roadName(g source.FeatureGroup, item source.Item) (RoadName, error) {
	rn := RoadName{Mainkey: g.Mainkey, Subkey: g.Subkey}
	var err error
	if rn.Rank, err = optionalNumber(item, "rank"); err != nil {
		return rn, err
	}
	if rn.ShieldType, err = optionalNumber(item, "shieldType"); err != nil {
		return rn, err
	}
	shield, err := optionalString(item, "shield")
	if err != nil {
		return rn, err
	}
	if shield != "" {
		coords, err := numbers(item["path"])
		if err != nil {
			return rn, fmt.Errorf("path: %w", err)
		}
		if len(coords) < 2 {
			return rn, fmt.Errorf("shield anchor has %d values, want at least 2", len(coords))
		}
		pt, err := p.dec.Decode(p.tile, p.resolution, coords[0], coords[1])
		if err != nil {
			return rn, err
		}
		rn.Path = Path{pt}
		rn.Name = shield
		return rn, nil
	}
	if rn.Path, err = p.path(item["path"]); err != nil {
		return rn, err
	}
	rn.Name, err = optionalString(item, "name")
	return rn, err
}

// path decodes a flat [x0, y0, x1, y1, ...] list
func (p *itemParser) path(v any) (Path, error) {
	coords, err := numbers(v)
	if err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}
	if len(coords) == 0 || len(coords)%2 != 0 {
		return nil, fmt.Errorf("path has %d values, want a non-zero even count", len(coords))
	}
	out := make(Path, 0, len(coords)/2)
	for i := 0; i < len(coords); i += 2 {
		pt, err := p.dec.Decode(p.tile, p.resolution, coords[i], coords[i+1])
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, nil
}

// rings decodes a list of {path: [...]} rings
func (p *itemParser) rings(v any) ([]Path, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("path is %T, want a list of rings", v)
	}
	out := make([]Path, 0, len(list))
	for i, r := range list {
		ring, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("ring %d is %T, want an object", i, r)
		}
		path, err := p.path(ring["path"])
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		out = append(out, path)
	}
	return out, nil
}

func numbers(v any) ([]float64, error) {
	switch list := v.(type) {
	case []float64:
		return list, nil
	case []any:
		out := make([]float64, len(list))
		for i, x := range list {
			f, ok := toFloat(x)
			if !ok {
				return nil, fmt.Errorf("value %d is %T, want a number", i, x)
			}
			out[i] = f
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("missing")
	}
	return nil, fmt.Errorf("got %T, want a list of numbers", v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func optionalNumber(item source.Item, key string) (float64, error) {
	v, ok := item[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%s is %T, want a number", key, v)
	}
	return f, nil
}

func optionalString(item source.Item, key string) (string, error) {
	v, ok := item[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, want a string", key, v)
	}
	return s, nil
}
