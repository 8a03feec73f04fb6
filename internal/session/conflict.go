package session

import (
	"fmt"
	"slices"
)

// Rule decides whether two sessions of a given kind pair conflict.
type Rule uint8

const (
	// RuleNever: the kinds coexist freely.
	RuleNever Rule = iota
	// RuleAlways: at most one session of either kind per scope.
	RuleAlways
	// RuleShared: the sessions conflict when their claims overlap.
	RuleShared
)

var ruleNames = [...]string{"never", "always", "shared"}

// String implements fmt.Stringer.
func (r Rule) String() string {
	if int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return fmt.Sprintf("rule(%d)", uint8(r))
}

// ParseRule resolves a rule from its String form.
func ParseRule(name string) (Rule, error) {
	for i, n := range ruleNames {
		if n == name {
			return Rule(i), nil
		}
	}
	return 0, fmt.Errorf("unknown conflict rule %q", name)
}

// KindPair is an unordered pair of kinds, stored with A <= B.
type KindPair struct {
	A, B Kind
}

// PairOf returns the canonical pair for a and b.
func PairOf(a, b Kind) KindPair {
	if a > b {
		a, b = b, a
	}
	return KindPair{A: a, B: b}
}

// ConflictMatrix maps kind pairs to rules. Pairs that are absent never
// conflict. Which kinds block which others is domain policy; the matrix is
// data so deployments can override it from configuration.
type ConflictMatrix map[KindPair]Rule

// DefaultMatrix returns the stock conflict rules:
//
//   - two trades conflict when they share a trader or negotiator;
//   - caravan formation, caravan split and transporter loading are
//     mutually exclusive dialogs, one per scope;
//   - rituals conflict with each other and with every other kind when they
//     share an entity.
func DefaultMatrix() ConflictMatrix {
	dialogs := []Kind{KindCaravanForm, KindCaravanSplit, KindTransporterLoad}

	m := ConflictMatrix{}
	m.Set(KindTrade, KindTrade, RuleShared)
	m.Set(KindRitual, KindRitual, RuleShared)
	m.Set(KindRitual, KindTrade, RuleShared)
	for _, a := range dialogs {
		m.Set(KindTrade, a, RuleShared)
		m.Set(KindRitual, a, RuleShared)
		for _, b := range dialogs {
			m.Set(a, b, RuleAlways)
		}
	}
	return m
}

// Set records the rule for the pair (a, b).
func (m ConflictMatrix) Set(a, b Kind, r Rule) {
	m[PairOf(a, b)] = r
}

// Rule returns the rule for the pair (a, b).
func (m ConflictMatrix) Rule(a, b Kind) Rule {
	return m[PairOf(a, b)]
}

// Clone returns an independent copy of m.
func (m ConflictMatrix) Clone() ConflictMatrix {
	out := make(ConflictMatrix, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Conflicts reports whether a and b may not be open in the same scope.
func (m ConflictMatrix) Conflicts(a, b *Session) bool {
	switch m.Rule(a.Kind(), b.Kind()) {
	case RuleAlways:
		return true
	case RuleShared:
		return overlaps(a.Payload.Claims(), b.Payload.Claims())
	default:
		return false
	}
}

func overlaps(a, b []int32) bool {
	for _, id := range a {
		if slices.Contains(b, id) {
			return true
		}
	}
	return false
}
