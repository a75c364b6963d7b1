// Package elements holds the entities built from decoded tiles: roads,
// buildings, regions, POI labels and road names.
package elements

import (
	"github.com/paulmach/orb"
)

// Path is an ordered list of points
type Path []orb.Point

type Road struct {
	Mainkey int  `json:"mainkey"`
	Subkey  int  `json:"subkey"`
	Weight  int  `json:"weight"`
	Path    Path `json:"path"`
}

type Building struct {
	Mainkey  int     `json:"mainkey"`
	Subkey   int     `json:"subkey"`
	Height   float64 `json:"height"`
	Altitude float64 `json:"altitude"`
	Path     []Path  `json:"path"`
}

type Region struct {
	Mainkey      int    `json:"mainkey"`
	Subkey       int    `json:"subkey"`
	PreviewColor string `json:"previewColor"`
	BlockState   string `json:"blockState"`
	Path         []Path `json:"path"`
}

type POI struct {
	Mainkey int       `json:"mainkey"`
	Subkey  int       `json:"subkey"`
	Rank    float64   `json:"rank"`
	Name    string    `json:"name"`
	Pos     orb.Point `json:"pos"`
	Z       float64   `json:"z"`
}

type RoadName struct {
	Mainkey    int     `json:"mainkey"`
	Subkey     int     `json:"subkey"`
	ShieldType float64 `json:"shieldType"`
	Rank       float64 `json:"rank"`
	Name       string  `json:"name"`
	Path       Path    `json:"path"`
}

// Elements is the full entity set of one selection. It is replaced as a
// whole, never edited in place once published.
type Elements struct {
	Roads     []Road     `json:"roads"`
	Buildings []Building `json:"buildings"`
	Regions   []Region   `json:"regions"`
	POIs      []POI      `json:"pois"`
	RoadNames []RoadName `json:"roadnames"`
}

// New returns an empty entity set whose collections encode as empty arrays
func New() *Elements {
	return &Elements{
		Roads:     []Road{},
		Buildings: []Building{},
		Regions:   []Region{},
		POIs:      []POI{},
		RoadNames: []RoadName{},
	}
}

// Counts reports the number of entities per collection
func (e *Elements) Counts() map[string]int {
	return map[string]int{
		"roads":     len(e.Roads),
		"buildings": len(e.Buildings),
		"regions":   len(e.Regions),
		"pois":      len(e.POIs),
		"roadnames": len(e.RoadNames),
	}
}

// Clone deep copies the entity set, paths included
func (e *Elements) Clone() *Elements {
	out := &Elements{
		Roads:     make([]Road, len(e.Roads)),
		Buildings: make([]Building, len(e.Buildings)),
		Regions:   make([]Region, len(e.Regions)),
		POIs:      make([]POI, len(e.POIs)),
		RoadNames: make([]RoadName, len(e.RoadNames)),
	}
	for i, r := range e.Roads {
		r.Path = clonePath(r.Path)
		out.Roads[i] = r
	}
	for i, b := range e.Buildings {
		b.Path = clonePaths(b.Path)
		out.Buildings[i] = b
	}
	for i, r := range e.Regions {
		r.Path = clonePaths(r.Path)
		out.Regions[i] = r
	}
	copy(out.POIs, e.POIs)
	for i, r := range e.RoadNames {
		r.Path = clonePath(r.Path)
		out.RoadNames[i] = r
	}
	return out
}

func clonePath(p Path) Path {
	if p == nil {
		return nil
	}
	return append(Path(make([]orb.Point, 0, len(p))), p...)
}

func clonePaths(ps []Path) []Path {
	if ps == nil {
		return nil
	}
	out := make([]Path, len(ps))
	for i, p := range ps {
		out[i] = clonePath(p)
	}
	return out
}

// Bound returns the bounding box of every vertex, and false when there are none
func (e *Elements) Bound() (orb.Bound, bool) {
	var b orb.Bound
	found := false
	e.eachPoint(func(p *orb.Point) {
		if !found {
			b = orb.Bound{Min: *p, Max: *p}
			found = true
			return
		}
		b = b.Extend(*p)
	})
	return b, found
}

// eachPoint calls fn with every vertex in place
func (e *Elements) eachPoint(fn func(*orb.Point)) {
	visit := func(p Path) {
		for i := range p {
			fn(&p[i])
		}
	}
	for _, r := range e.Roads {
		visit(r.Path)
	}
	for _, b := range e.Buildings {
		for _, p := range b.Path {
			visit(p)
		}
	}
	for _, r := range e.Regions {
		for _, p := range r.Path {
			visit(p)
		}
	}
	for i := range e.POIs {
		fn(&e.POIs[i].Pos)
	}
	for _, r := range e.RoadNames {
		visit(r.Path)
	}
}
