// Package export remaps classified entities into the build-site frame,
// serializes them and hands the document to a sink.
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flightaware/mapcraft-exporter/pkg/elements"
	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/geo"
	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"

	"github.com/paulmach/orb"
)

// Sink persists an exported document and returns where it went
type Sink interface {
	Save(ctx context.Context, doc []byte) (string, error)
}

// Serializer exports entity sets through a sink
type Serializer struct {
	// Projector defaults to geo.WebMercator
	Projector geo.Projector
	Sink      Sink
}

// Encode remaps a copy of els around anchor and renders the exchange document
func Encode(els *elements.Elements, anchor orb.Point, proj geo.Projector) ([]byte, error) {
	return json.Marshal(elements.Remap(els, anchor, proj))
}

// Export encodes els and saves the document, returning the sink's identifier.
// els is never modified.
func (s *Serializer) Export(ctx context.Context, els *elements.Elements, anchor orb.Point) (string, error) {
	if els == nil {
		return "", apperrors.WrapExport("nothing to export", fmt.Errorf("no entities"))
	}
	if s.Sink == nil {
		return "", apperrors.WrapExport("nothing to export to", fmt.Errorf("no sink configured"))
	}
	proj := s.Projector
	if proj == nil {
		proj = geo.WebMercator{}
	}
	doc, err := Encode(els, anchor, proj)
	if err != nil {
		metrics.ExportFailTotal.Inc()
		return "", apperrors.WrapExport("encoding export document", err)
	}
	id, err := s.Sink.Save(ctx, doc)
	if err != nil {
		metrics.ExportFailTotal.Inc()
		logger.L().Error("export_error", "bytes", len(doc), "err", err)
		return "", apperrors.WrapExport("saving export document", err)
	}
	metrics.ExportsTotal.Inc()
	logger.L().Info("exported", "id", id, "bytes", len(doc))
	return id, nil
}
