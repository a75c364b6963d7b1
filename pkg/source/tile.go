package source

import (
	"context"
	"strings"

	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"
)

// LayerKind is the geometry category of a layer
type LayerKind int

// Layer kinds, numbered as the upstream service numbers them
const (
	LayerPOILabel LayerKind = iota
	LayerRoad
	LayerRegion
	LayerBuilding
	LayerRoadName
	LayerUnknown LayerKind = -1
)

var layerNames = map[LayerKind]string{
	LayerPOILabel: "poilabel",
	LayerRoad:     "road",
	LayerRegion:   "region",
	LayerBuilding: "building",
	LayerRoadName: "roadname",
}

// AllLayerKinds lists the kinds the parser understands, in upstream order
var AllLayerKinds = []LayerKind{LayerPOILabel, LayerRoad, LayerRegion, LayerBuilding, LayerRoadName}

func (k LayerKind) String() string {
	if name, ok := layerNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseLayerKind maps a layer name to its kind. Names are case-insensitive
// and "poi" is accepted for poilabel.
func ParseLayerKind(name string) LayerKind {
	name = strings.ToLower(name)
	if name == "poi" {
		return LayerPOILabel
	}
	for k, n := range layerNames {
		if n == name {
			return k
		}
	}
	return LayerUnknown
}

// LayerNames renders kinds as their names
func LayerNames(kinds []LayerKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

// Item is one decoded feature with loosely typed fields. The layer parser
// validates and converts it.
type Item map[string]any

// FeatureGroup holds the items sharing a (mainkey, subkey) category
type FeatureGroup struct {
	Mainkey    int
	Subkey     int
	Resolution float64
	Items      []Item
}

// Layer is one geometry category of a tile
type Layer struct {
	Kind   LayerKind
	Coords tileutils.TileCoords
	Groups []FeatureGroup
}

// Tile is a decoded tile
type Tile struct {
	Coords tileutils.TileCoords
	Layers []Layer
}

// RawTile is the undecoded payload of one tile
type RawTile struct {
	Coords tileutils.TileCoords
	Data   []byte
}

// RawBatch is the ordered result of one upstream request
type RawBatch []RawTile

// Request describes one batch of tiles to fetch
type Request struct {
	Endpoint string
	// Zoom is the target zoom sent upstream. Tiles keep the zoom they were
	// covered at, which may be lower.
	Zoom       int
	Projection string
	Kinds      []LayerKind
	Tiles      []tileutils.TileCoords
	Key        string
}

// Fetcher retrieves a batch of raw tiles from an upstream source
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (RawBatch, error)
}

// Decoder turns a raw batch into tiles, preserving batch order
type Decoder interface {
	Decode(batch RawBatch) ([]Tile, error)
}
