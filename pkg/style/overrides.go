package style

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides is the persisted form of a session's rule edits
type Overrides struct {
	Road   DomainOverrides[RoadStyle]   `yaml:"road"`
	Region DomainOverrides[RegionStyle] `yaml:"region"`
}

// DomainOverrides holds the override rules of one domain and the built-in
// pairs that were unset.
type DomainOverrides[A any] struct {
	Rules []Rule[A] `yaml:"rules,omitempty"`
	Unset []Match   `yaml:"unset,omitempty"`
}

// Overrides captures the current edits of r
func (r *Rules) Overrides() *Overrides {
	return &Overrides{
		Road:   DomainOverrides[RoadStyle]{Rules: cloneRules(r.Roads.Override), Unset: r.Roads.Removed()},
		Region: DomainOverrides[RegionStyle]{Rules: cloneRules(r.Regions.Override), Unset: r.Regions.Removed()},
	}
}

// Apply replays o onto r through Set, so explicit pairs stay exclusive.
// r is only modified when every edit succeeds.
func (r *Rules) Apply(o *Overrides) error {
	next := r.Clone()
	if err := applyDomain(next, DomainRoad, o.Road, func(a RoadStyle) Attributes { return a }); err != nil {
		return err
	}
	if err := applyDomain(next, DomainRegion, o.Region, func(a RegionStyle) Attributes { return a }); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*r = *next
	return nil
}

func applyDomain[A any](r *Rules, domain Domain, d DomainOverrides[A], wrap func(A) Attributes) error {
	for _, m := range d.Unset {
		for _, s := range m.Subkeys {
			if err := r.Set(domain, m.Mainkey, s, nil); err != nil {
				return err
			}
		}
	}
	for i, rule := range d.Rules {
		if len(rule.Match) == 0 {
			return fmt.Errorf("%s override %d has no match", domain, i)
		}
		for _, m := range rule.Match {
			if m.Subkeys == nil {
				// wildcards list no pair explicitly and need no stripping
				if err := r.appendWildcard(domain, m.Mainkey, wrap(rule.Attrs)); err != nil {
					return err
				}
				continue
			}
			for _, s := range m.Subkeys {
				if err := r.Set(domain, m.Mainkey, s, wrap(rule.Attrs)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Rules) appendWildcard(domain Domain, mainkey int, attrs Attributes) error {
	switch a := attrs.(type) {
	case RoadStyle:
		if err := checkRoadStyle(a); err != nil {
			return fmt.Errorf("road wildcard %d: %w", mainkey, err)
		}
		r.Roads.Override = append(r.Roads.Override, Rule[RoadStyle]{Match: []Match{{Mainkey: mainkey}}, Attrs: a})
	case RegionStyle:
		r.Regions.Override = append(r.Regions.Override, Rule[RegionStyle]{Match: []Match{{Mainkey: mainkey}}, Attrs: a})
	default:
		return fmt.Errorf("unsupported %s attributes %T", domain, attrs)
	}
	return nil
}

// LoadOverrides reads an overrides file
func LoadOverrides(path string) (*Overrides, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading rule overrides: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("parsing rule overrides %s: %w", path, err)
	}
	return &o, nil
}

// SaveOverrides writes o to path
func SaveOverrides(path string, o *Overrides) error {
	b, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding rule overrides: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("writing rule overrides: %w", err)
	}
	return nil
}
