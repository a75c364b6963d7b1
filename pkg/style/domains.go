package style

import (
	"fmt"

	apperrors "github.com/flightaware/mapcraft-exporter/pkg/errors"
)

// Domain names a rule table
type Domain string

const (
	DomainRoad   Domain = "road"
	DomainRegion Domain = "region"
)

// DefaultRoadWeight is the weight of roads no rule matches
const DefaultRoadWeight = 3

// Attributes is the value a rule assigns; RoadStyle or RegionStyle
type Attributes interface {
	Domain() Domain
}

// RoadStyle is the road rule domain's attribute
type RoadStyle struct {
	Weight int `yaml:"weight" json:"weight"`
}

func (RoadStyle) Domain() Domain { return DomainRoad }

// RegionStyle is the region rule domain's attribute
type RegionStyle struct {
	PreviewColor string `yaml:"previewColor,omitempty" json:"previewColor"`
	BlockState   string `yaml:"blockState" json:"blockState"`
}

func (RegionStyle) Domain() Domain { return DomainRegion }

var builtinRoadRules = []Rule[RoadStyle]{
	{Attrs: RoadStyle{Weight: 1}, Match: []Match{{Mainkey: 20017, Subkeys: []int{1}}}},
	{Attrs: RoadStyle{Weight: 3}, Match: []Match{{Mainkey: 20009, Subkeys: []int{1}}}},
	{Attrs: RoadStyle{Weight: 4}, Match: []Match{{Mainkey: 20008, Subkeys: []int{1}}}},
	{Attrs: RoadStyle{Weight: 5}, Match: []Match{{Mainkey: 20007, Subkeys: []int{1}}}},
	{Attrs: RoadStyle{Weight: 6}, Match: []Match{{Mainkey: 20003, Subkeys: []int{1}}}},
}

var builtinRegionRules = []Rule[RegionStyle]{
	// green
	{
		Attrs: RegionStyle{PreviewColor: "#00ff00", BlockState: "minecraft:grass_block"},
		Match: []Match{{Mainkey: 30001, Subkeys: []int{3, 7, 8, 9, 10, 12, 37}}},
	},
	// water
	{
		Attrs: RegionStyle{PreviewColor: "#0000ff", BlockState: "minecraft:water[level=0]"},
		Match: []Match{
			{Mainkey: 30001, Subkeys: []int{6}},
			{Mainkey: 10002, Subkeys: []int{38}},
			{Mainkey: 30001, Subkeys: []int{2, 11, 13}},
			{Mainkey: 20014},
			{Mainkey: 10002, Subkeys: []int{13}},
		},
	},
	// playground
	{
		Attrs: RegionStyle{PreviewColor: "#f58d60", BlockState: "minecraft:orange_concrete"},
		Match: []Match{{Mainkey: 30002, Subkeys: []int{9, 10, 13}}},
	},
	// playground infield
	{
		Attrs: RegionStyle{PreviewColor: "#46a629", BlockState: "minecraft:green_concrete"},
		Match: []Match{{Mainkey: 30002, Subkeys: []int{19, 20, 21, 34, 37, 39}}},
	},
	// school
	{
		Attrs: RegionStyle{BlockState: "minecraft:stone"},
		Match: []Match{{Mainkey: 30002, Subkeys: []int{3}}},
	},
}

// BuiltinRoadRules returns a copy of the built-in road weight rules
func BuiltinRoadRules() []Rule[RoadStyle] { return cloneRules(builtinRoadRules) }

// BuiltinRegionRules returns a copy of the built-in region type rules
func BuiltinRegionRules() []Rule[RegionStyle] { return cloneRules(builtinRegionRules) }

// Rules holds both rule domains of a session
type Rules struct {
	Roads   *Table[RoadStyle]
	Regions *Table[RegionStyle]
}

// NewRules returns rule tables seeded with copies of the built-in rules and no overrides
func NewRules() *Rules {
	return &Rules{
		Roads:   NewTable(builtinRoadRules, RoadStyle{Weight: DefaultRoadWeight}),
		Regions: NewTable(builtinRegionRules, RegionStyle{}),
	}
}

// Clone deep copies both tables
func (r *Rules) Clone() *Rules {
	return &Rules{
		Roads:   r.Roads.Clone(),
		Regions: r.Regions.Clone(),
	}
}

// RoadWeight resolves the weight of a road
func (r *Rules) RoadWeight(mainkey, subkey int) int {
	return r.Roads.Resolve(mainkey, subkey).Weight
}

// RegionStyle resolves the style of a region
func (r *Rules) RegionStyle(mainkey, subkey int) RegionStyle {
	return r.Regions.Resolve(mainkey, subkey)
}

// Set applies a rule mutation to the table of domain. A nil attrs unsets the pair.
func (r *Rules) Set(domain Domain, mainkey, subkey int, attrs Attributes) error {
	switch v := attrs.(type) {
	case *RoadStyle:
		attrs = nil
		if v != nil {
			attrs = *v
		}
	case *RegionStyle:
		attrs = nil
		if v != nil {
			attrs = *v
		}
	}
	if attrs != nil && attrs.Domain() != domain {
		return apperrors.Invalidf("%s attributes given for the %s domain", attrs.Domain(), domain)
	}
	switch domain {
	case DomainRoad:
		if attrs == nil {
			r.Roads.Set(mainkey, subkey, nil)
			return nil
		}
		s, ok := attrs.(RoadStyle)
		if !ok {
			return apperrors.Invalidf("unsupported road attributes %T", attrs)
		}
		if err := checkRoadStyle(s); err != nil {
			return apperrors.Invalidf("road rule (%d, %d): %v", mainkey, subkey, err)
		}
		r.Roads.Set(mainkey, subkey, &s)
	case DomainRegion:
		if attrs == nil {
			r.Regions.Set(mainkey, subkey, nil)
			return nil
		}
		s, ok := attrs.(RegionStyle)
		if !ok {
			return apperrors.Invalidf("unsupported region attributes %T", attrs)
		}
		r.Regions.Set(mainkey, subkey, &s)
	default:
		return apperrors.Invalidf("unknown rule domain %q", domain)
	}
	return nil
}

// Validate reports a malformed rule table as a classification error
func (r *Rules) Validate() error {
	if r == nil || r.Roads == nil || r.Regions == nil {
		return apperrors.Classificationf("rule tables are not initialised")
	}
	if err := r.Roads.validate(DomainRoad, checkRoadStyle); err != nil {
		return apperrors.Classificationf("%v", err)
	}
	if err := r.Regions.validate(DomainRegion, nil); err != nil {
		return apperrors.Classificationf("%v", err)
	}
	return nil
}

func checkRoadStyle(s RoadStyle) error {
	if s.Weight < 1 {
		return fmt.Errorf("weight must be at least 1, got %d", s.Weight)
	}
	return nil
}
