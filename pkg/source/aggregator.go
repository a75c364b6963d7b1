// Package source fetches batches of tiles from an upstream service and
// decodes them into layered feature groups.
package source

import (
	"context"
	"fmt"

	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/twpayne/go-mbtiles"
)

// Aggregator issues one upstream request per tile set and decodes the
// result. A batch either decodes completely or fails as a whole.
type Aggregator struct {
	Fetcher    Fetcher
	Decoder    Decoder
	Endpoint   string
	Projection string
	Kinds      []LayerKind
	Key        string
	// Archive, when set, receives every raw tile of a decoded batch
	Archive *tileutils.Archiver
}

// Fetch retrieves and decodes tiles, requesting them at the target zoom.
// Upstream order is preserved.
// Any failure is returned as a fetch error and nothing partial is returned.
func (a *Aggregator) Fetch(ctx context.Context, tiles []tileutils.TileCoords, zoom int) ([]Tile, error) {
	if a.Fetcher == nil || a.Decoder == nil {
		return nil, apperrors.WrapFetch("aggregator is not configured", fmt.Errorf("missing fetcher or decoder"))
	}
	kinds := a.Kinds
	if len(kinds) == 0 {
		kinds = AllLayerKinds
	}
	req := Request{
		Endpoint:   a.Endpoint,
		Zoom:       zoom,
		Projection: a.Projection,
		Kinds:      kinds,
		Tiles:      tiles,
		Key:        a.Key,
	}
	batch, err := a.Fetcher.Fetch(ctx, req)
	if err != nil {
		logger.L().Error("fetch_error", "tiles", len(tiles), "zoom", zoom, "err", err)
		return nil, apperrors.WrapFetch(fmt.Sprintf("fetching %d tiles at zoom %d", len(tiles), zoom), err)
	}
	decoded, err := a.Decoder.Decode(batch)
	if err != nil {
		logger.L().Error("decode_error", "tiles", len(batch), "err", err)
		return nil, apperrors.WrapFetch("decoding tile batch", err)
	}
	metrics.TilesDecodedTotal.Add(float64(len(decoded)))
	logger.L().Debug("batch_decoded", "requested", len(tiles), "decoded", len(decoded), "zoom", zoom)
	a.archive(batch)
	return decoded, nil
}

func (a *Aggregator) archive(batch RawBatch) {
	if a.Archive == nil {
		return
	}
	data := make([]mbtiles.TileData, len(batch))
	for i, t := range batch {
		data[i] = mbtiles.TileData{Z: t.Coords.Z, X: t.Coords.X, Y: t.Coords.Y, Data: t.Data}
	}
	if err := a.Archive.Store(data); err != nil {
		logger.L().Warn("archive_error", "tiles", len(batch), "err", err)
	}
}
