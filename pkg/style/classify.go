package style

import (
	"github.com/flightaware/mapcraft-exporter/pkg/elements"
)

// Classify returns a copy of els with every road weight and region style
// resolved against rules. els is left untouched, so classifying twice with
// the same rules yields the same result.
func Classify(els *elements.Elements, rules *Rules) (*elements.Elements, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	out := els.Clone()
	for i := range out.Roads {
		r := &out.Roads[i]
		r.Weight = rules.RoadWeight(r.Mainkey, r.Subkey)
	}
	for i := range out.Regions {
		r := &out.Regions[i]
		s := rules.RegionStyle(r.Mainkey, r.Subkey)
		r.PreviewColor = s.PreviewColor
		r.BlockState = s.BlockState
	}
	return out, nil
}
