// Package style classifies roads and regions through ordered rule tables.
//
// Each rule domain has a built-in table and a session-scoped override table.
// Lookups consult the overrides first, then the built-in rules, and the first
// matching rule wins. Set keeps every (mainkey, subkey) pair explicitly listed
// by at most one rule.
package style

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Match selects features by mainkey and, optionally, a set of subkeys.
// A nil Subkeys matches every subkey; an empty non-nil one matches nothing.
type Match struct {
	Mainkey int   `yaml:"mainkey" json:"mainkey"`
	Subkeys []int `yaml:"subkey,omitempty" json:"subkey,omitempty"`
}

// Matches reports whether the match selects (mainkey, subkey)
func (m Match) Matches(mainkey, subkey int) bool {
	if m.Mainkey != mainkey {
		return false
	}
	return m.Subkeys == nil || slices.Contains(m.Subkeys, subkey)
}

// Lists reports whether the match names subkey explicitly under mainkey
func (m Match) Lists(mainkey, subkey int) bool {
	return m.Mainkey == mainkey && m.Subkeys != nil && slices.Contains(m.Subkeys, subkey)
}

// Rule assigns attributes to every feature selected by one of its matches
type Rule[A any] struct {
	Match []Match `yaml:"match" json:"match"`
	Attrs A       `yaml:",inline" json:"attrs"`
}

func (r Rule[A]) matches(mainkey, subkey int) bool {
	for _, m := range r.Match {
		if m.Matches(mainkey, subkey) {
			return true
		}
	}
	return false
}

func (r Rule[A]) clone() Rule[A] {
	out := Rule[A]{Attrs: r.Attrs, Match: make([]Match, len(r.Match))}
	for i, m := range r.Match {
		out.Match[i] = Match{Mainkey: m.Mainkey, Subkeys: slices.Clone(m.Subkeys)}
	}
	return out
}

// Table is one rule domain: overrides consulted before the built-in rules,
// and a default for features no rule matches.
type Table[A any] struct {
	Builtin  []Rule[A]
	Override []Rule[A]
	Default  A

	// base is the built-in list the table started from, never modified
	base []Rule[A]
}

// NewTable returns a table working on its own copy of builtin
func NewTable[A any](builtin []Rule[A], def A) *Table[A] {
	return &Table[A]{
		Builtin: cloneRules(builtin),
		Default: def,
		base:    builtin,
	}
}

// Lookup returns the attributes of the first matching rule
func (t *Table[A]) Lookup(mainkey, subkey int) (A, bool) {
	for _, rules := range [][]Rule[A]{t.Override, t.Builtin} {
		for _, r := range rules {
			if r.matches(mainkey, subkey) {
				return r.Attrs, true
			}
		}
	}
	var zero A
	return zero, false
}

// Resolve is Lookup falling back to the table default
func (t *Table[A]) Resolve(mainkey, subkey int) A {
	if a, ok := t.Lookup(mainkey, subkey); ok {
		return a
	}
	return t.Default
}

// Set strips subkey from every explicit subkey set under mainkey, then, when
// attrs is non-nil, appends a single-pair override rule carrying attrs.
// A nil attrs leaves the pair to whatever wildcard rule or default remains.
func (t *Table[A]) Set(mainkey, subkey int, attrs *A) {
	t.Override = strip(t.Override, mainkey, subkey)
	t.Builtin = strip(t.Builtin, mainkey, subkey)
	if attrs == nil {
		return
	}
	t.Override = append(t.Override, Rule[A]{
		Match: []Match{{Mainkey: mainkey, Subkeys: []int{subkey}}},
		Attrs: *attrs,
	})
}

// Owners counts the rules that list (mainkey, subkey) explicitly
func (t *Table[A]) Owners(mainkey, subkey int) int {
	n := 0
	for _, rules := range [][]Rule[A]{t.Override, t.Builtin} {
		for _, r := range rules {
			if slices.ContainsFunc(r.Match, func(m Match) bool { return m.Lists(mainkey, subkey) }) {
				n++
			}
		}
	}
	return n
}

// Clone deep copies the table
func (t *Table[A]) Clone() *Table[A] {
	return &Table[A]{
		Builtin:  cloneRules(t.Builtin),
		Override: cloneRules(t.Override),
		Default:  t.Default,
		base:     t.base,
	}
}

// Removed lists the explicit pairs of the starting built-in list that no rule
// lists any more, one single-subkey match per pair.
func (t *Table[A]) Removed() []Match {
	var out []Match
	seen := map[keyPair]bool{}
	for _, r := range t.base {
		for _, m := range r.Match {
			for _, s := range m.Subkeys {
				p := keyPair{m.Mainkey, s}
				if seen[p] || t.Owners(m.Mainkey, s) > 0 {
					continue
				}
				seen[p] = true
				out = append(out, Match{Mainkey: m.Mainkey, Subkeys: []int{s}})
			}
		}
	}
	return out
}

// validate checks that every rule has a match and no explicit pair has two owners
func (t *Table[A]) validate(domain Domain, check func(A) error) error {
	seen := map[keyPair]bool{}
	for _, rules := range [][]Rule[A]{t.Override, t.Builtin} {
		for i, r := range rules {
			if len(r.Match) == 0 {
				return fmt.Errorf("%s rule %d has no match", domain, i)
			}
			if check != nil {
				if err := check(r.Attrs); err != nil {
					return fmt.Errorf("%s rule %d: %w", domain, i, err)
				}
			}
			listed := map[keyPair]bool{}
			for _, m := range r.Match {
				for _, s := range m.Subkeys {
					listed[keyPair{m.Mainkey, s}] = true
				}
			}
			for p := range listed {
				if seen[p] {
					return fmt.Errorf("%s pair (%d, %d) is owned by more than one rule", domain, p.main, p.sub)
				}
				seen[p] = true
			}
		}
	}
	return nil
}

type keyPair struct{ main, sub int }

// strip removes subkey from every explicit set under mainkey. Matches left
// empty and rules left without matches are dropped, since they select nothing.
func strip[A any](rules []Rule[A], mainkey, subkey int) []Rule[A] {
	out := rules[:0]
	for _, r := range rules {
		matches := r.Match[:0]
		for _, m := range r.Match {
			if m.Lists(mainkey, subkey) {
				m.Subkeys = slices.DeleteFunc(m.Subkeys, func(s int) bool { return s == subkey })
				if len(m.Subkeys) == 0 {
					continue
				}
			}
			matches = append(matches, m)
		}
		if len(matches) == 0 {
			continue
		}
		r.Match = matches
		out = append(out, r)
	}
	return out
}

func cloneRules[A any](rules []Rule[A]) []Rule[A] {
	if rules == nil {
		return nil
	}
	out := make([]Rule[A], len(rules))
	for i, r := range rules {
		out[i] = r.clone()
	}
	return out
}
