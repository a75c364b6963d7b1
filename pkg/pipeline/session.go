// Package pipeline runs selections through fetch, parse and classification,
// and owns the entity set and rule tables of an editing session.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/flightaware/mapcraft-exporter/pkg/elements"
	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
	"github.com/flightaware/mapcraft-exporter/pkg/geo"
	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/metrics"
	"github.com/flightaware/mapcraft-exporter/pkg/source"
	"github.com/flightaware/mapcraft-exporter/pkg/style"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/paulmach/orb"
)

// DefaultZoom is the zoom selections are fetched at unless configured otherwise
const DefaultZoom = 22

// TileSource fetches and decodes a tile set; source.Aggregator is one.
// zoom is the target zoom sent upstream; each tile carries its own zoom.
type TileSource interface {
	Fetch(ctx context.Context, tiles []tileutils.TileCoords, zoom int) ([]source.Tile, error)
}

// Exporter hands an entity set to a sink; export.Serializer is one
type Exporter interface {
	Export(ctx context.Context, els *elements.Elements, anchor orb.Point) (string, error)
}

var errNoSelection = errors.New("no committed selection")

// Deps are the capabilities a session runs on
type Deps struct {
	Coverer  tileutils.Coverer
	Source   TileSource
	Geo      geo.Adapter
	Exporter Exporter
	// Rules seeds the session's rule tables; nil uses the built-in rules
	Rules *style.Rules
	// Redraw, when set, is called after every commit
	Redraw func(Snapshot)
}

// Options sets the zoom sent upstream and the zoom range tiles are covered at
type Options struct {
	// Zoom is the target zoom requested from the source
	Zoom int
	// ZoomRange is the range of zooms the source holds data for; areas are
	// covered at Zoom clamped to it
	ZoomRange tileutils.ZoomRange
}

// Snapshot is a consistent view of the committed session state
type Snapshot struct {
	Elements   *elements.Elements
	Anchor     orb.Point
	Tiles      []tileutils.TileCoords
	Generation uint64
	// Revision counts every commit, rule edits included
	Revision uint64
}

// Session holds the current entities and rules. Selection runs may overlap;
// a run only commits if no newer run committed before it.
type Session struct {
	deps Deps
	opts Options

	mu        sync.Mutex
	nextGen   uint64
	committed uint64
	current   *elements.Elements
	anchor    orb.Point
	tiles     []tileutils.TileCoords
	rules     *style.Rules
	revision  uint64

	// drawMu orders redraws; drawn is the last revision handed to Redraw
	drawMu sync.Mutex
	drawn  uint64
}

func New(deps Deps, opts Options) *Session {
	if deps.Coverer == nil {
		deps.Coverer = tileutils.WebMercatorCoverer{}
	}
	if deps.Geo == nil {
		deps.Geo = geo.WebMercator{}
	}
	rules := deps.Rules
	if rules == nil {
		rules = style.NewRules()
	}
	if opts.Zoom == 0 {
		opts.Zoom = DefaultZoom
	}
	return &Session{deps: deps, opts: opts, rules: rules.Clone()}
}

// SelectArea covers the box spanned by two opposite corners at the source's
// data zoom and runs the resulting tile set through the pipeline.
func (s *Session) SelectArea(ctx context.Context, c1, c2 orb.Point) (*elements.Elements, error) {
	zoom := s.opts.ZoomRange.Adjust(s.opts.Zoom)
	tiles, err := tileutils.SelectTiles(s.deps.Coverer, tileutils.NewBoundingBox(c1, c2), zoom)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, tiles)
}

// SelectTiles runs an explicit tile set
func (s *Session) SelectTiles(ctx context.Context, tiles []tileutils.TileCoords) (*elements.Elements, error) {
	tiles, err := tileutils.CheckBudget(tiles)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, tiles)
}

// run fetches tiles, which carry their own zoom, with the target zoom as the
// request zoom
func (s *Session) run(ctx context.Context, tiles []tileutils.TileCoords) (*elements.Elements, error) {
	zoom := s.opts.Zoom
	s.mu.Lock()
	s.nextGen++
	gen := s.nextGen
	s.mu.Unlock()
	logger.L().Debug("run_start", "gen", gen, "tiles", len(tiles), "tile_zoom", tiles[0].Z, "zoom", zoom)

	decoded, err := s.deps.Source.Fetch(ctx, tiles, zoom)
	if err != nil {
		return nil, err
	}
	parsed, err := elements.Parse(decoded, s.deps.Geo)
	if err != nil {
		return nil, apperrors.WrapFetch("parsing tiles", err)
	}
	anchor, err := geo.Anchor(tiles, s.deps.Geo)
	if err != nil {
		return nil, apperrors.WrapFetch("computing anchor", err)
	}

	s.mu.Lock()
	if s.committed >= gen {
		committed := s.committed
		s.mu.Unlock()
		metrics.SupersededRunsTotal.Inc()
		logger.L().Warn("run_superseded", "gen", gen, "committed", committed)
		return nil, apperrors.Superseded(gen, committed)
	}
	// classified at commit time so rule edits made during the fetch apply
	classified, err := style.Classify(parsed, s.rules)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.current = classified
	s.anchor = anchor
	s.tiles = append([]tileutils.TileCoords(nil), tiles...)
	s.committed = gen
	s.revision++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	logger.L().Info("run_committed", "gen", gen, "roads", len(classified.Roads), "buildings", len(classified.Buildings),
		"regions", len(classified.Regions), "pois", len(classified.POIs), "roadnames", len(classified.RoadNames))
	s.redraw(snap)
	return classified, nil
}

// SetRule reassigns (mainkey, subkey) in domain, or unsets it when attrs is
// nil, and reclassifies the current entities. On failure neither the rules
// nor the entities change.
func (s *Session) SetRule(domain style.Domain, mainkey, subkey int, attrs style.Attributes) (*elements.Elements, error) {
	return s.mutateRules(string(domain), func(r *style.Rules) error {
		return r.Set(domain, mainkey, subkey, attrs)
	})
}

// ApplyOverrides replays persisted rule edits onto the session
func (s *Session) ApplyOverrides(o *style.Overrides) (*elements.Elements, error) {
	return s.mutateRules("file", func(r *style.Rules) error {
		if err := r.Apply(o); err != nil {
			return apperrors.Invalidf("applying rule overrides: %v", err)
		}
		return nil
	})
}

func (s *Session) mutateRules(label string, mutate func(*style.Rules) error) (*elements.Elements, error) {
	s.mu.Lock()
	next := s.rules.Clone()
	if err := mutate(next); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var classified *elements.Elements
	if s.current != nil {
		var err error
		if classified, err = style.Classify(s.current, next); err != nil {
			s.mu.Unlock()
			return nil, err
		}
	} else if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.rules = next
	s.current = classified
	s.revision++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	metrics.RuleMutationsTotal.WithLabelValues(label).Inc()
	if classified != nil {
		s.redraw(snap)
	}
	return classified, nil
}

// Export hands the committed entities to the exporter
func (s *Session) Export(ctx context.Context) (string, error) {
	s.mu.Lock()
	els, anchor := s.current, s.anchor
	s.mu.Unlock()
	if els == nil {
		return "", apperrors.WrapExport("nothing selected", errNoSelection)
	}
	return s.deps.Exporter.Export(ctx, els, anchor)
}

// Snapshot returns the committed state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Rules returns a copy of the session's rule tables
func (s *Session) Rules() *style.Rules {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules.Clone()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Elements:   s.current,
		Anchor:     s.anchor,
		Tiles:      append([]tileutils.TileCoords(nil), s.tiles...),
		Generation: s.committed,
		Revision:   s.revision,
	}
}

// redraw hands snap to the Redraw hook unless a newer revision was already drawn
func (s *Session) redraw(snap Snapshot) {
	if s.deps.Redraw == nil || snap.Elements == nil {
		return
	}
	s.drawMu.Lock()
	defer s.drawMu.Unlock()
	if snap.Revision <= s.drawn {
		return
	}
	s.drawn = snap.Revision
	s.deps.Redraw(snap)
}
