package elements

import (
	"github.com/flightaware/mapcraft-exporter/pkg/geo"

	"github.com/paulmach/orb"
)

// Remap returns a copy of els with every vertex v replaced by
// proj(v) - proj(anchor). Heights, altitudes and POI z are kept as they are.
func Remap(els *Elements, anchor orb.Point, proj geo.Projector) *Elements {
	out := els.Clone()
	origin := proj.Project(anchor)
	out.eachPoint(func(p *orb.Point) {
		q := proj.Project(*p)
		*p = orb.Point{q[0] - origin[0], q[1] - origin[1]}
	})
	return out
}
