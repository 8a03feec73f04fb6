package harness

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string       // Assertion type
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Journal for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nJournal:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] frame=%d %s player=%d %s %s\n", ev.Seq, ev.Frame, ev.Scope, ev.Player, ev.Op, ev.Detail)
		}
	}
	return buf.String()
}

// check evaluates every assertion against the harness's peers.
func (h *Harness) check(assertions []Assertion, result *Result) {
	first := h.connected()[0]
	for _, a := range assertions {
		if err := h.evaluate(first, a, result); err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			result.AddError(err.Error())
		}
	}
}

func (h *Harness) evaluate(m *member, a Assertion, result *Result) error {
	scope := scopeOf(a.Scope)
	fail := func(actual, expected string, args ...any) error {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf(expected, args...),
			Actual:   actual,
		}
	}

	switch a.Type {
	case AssertConverged:
		players := sortedPlayers(result.Hashes)
		want := result.Hashes[players[0]]
		for _, p := range players[1:] {
			if result.Hashes[p] != want {
				return fail(fmt.Sprintf("player %d diverged with %s", p, result.Hashes[p][:12]), "hash %s like player %d", want[:12], players[0])
			}
		}
		return nil

	case AssertEntity:
		v, ok := m.world.Value(scope, a.Entity)
		switch {
		case a.Absent && ok:
			return fail(fmt.Sprintf("value %d", v), "entity %d absent in %s", a.Entity, scope)
		case a.Absent:
			return nil
		case !ok:
			return fail("entity does not exist", "entity %d = %d in %s", a.Entity, a.Value, scope)
		case v != a.Value:
			return fail(fmt.Sprintf("%d", v), "entity %d = %d in %s", a.Entity, a.Value, scope)
		}
		return nil

	case AssertTick:
		if got := m.ctrl.Tick(scope); got != uint64(a.Value) {
			return fail(fmt.Sprintf("%d", got), "%s tick %d", scope, a.Value)
		}
		return nil

	case AssertFrame:
		if got := m.ctrl.Frame(); got != uint64(a.Value) {
			return fail(fmt.Sprintf("%d", got), "frame %d", a.Value)
		}
		return nil

	case AssertSessions:
		mgr, ok := m.ctrl.Sessions().For(scope)
		if !ok {
			return fail("scope not loaded", "%d sessions in %s", a.Count, scope)
		}
		var kinds []string
		for _, s := range mgr.Sessions() {
			kinds = append(kinds, s.Kind().String())
		}
		if len(kinds) != a.Count {
			return fail(fmt.Sprintf("%d: %v", len(kinds), kinds), "%d sessions in %s", a.Count, scope)
		}
		if len(a.Kinds) > 0 && !slices.Equal(kinds, a.Kinds) {
			return fail(fmt.Sprintf("%v", kinds), "session kinds %v in %s", a.Kinds, scope)
		}
		return nil

	case AssertSpeed:
		got := m.ctrl.Votes().EffectiveSpeed(scope, false).String()
		if got != a.Speed {
			return fail(got, "%s speed %s", scope, a.Speed)
		}
		return nil

	case AssertFaction:
		view, ok := m.ctrl.Factions().View(scope)
		if !ok {
			return fail("scope has no partition", "faction view in %s", scope)
		}
		id, owned := view.Faction()
		switch {
		case a.Faction == nil && owned:
			return fail(fmt.Sprintf("faction %d", id), "no active faction in %s", scope)
		case a.Faction == nil:
			return nil
		case !owned:
			return fail("no active faction", "faction %d active in %s", *a.Faction, scope)
		case int32(id) != *a.Faction:
			return fail(fmt.Sprintf("faction %d", id), "faction %d active in %s", *a.Faction, scope)
		}
		return nil

	case AssertResearch:
		view, ok := m.ctrl.Factions().View(scope)
		if !ok {
			return fail("scope has no partition", "research %s in %s", a.Project, scope)
		}
		if got := view.Research(a.Project); got != a.Amount {
			return fail(fmt.Sprintf("%g", got), "research %s = %g in %s", a.Project, a.Amount, scope)
		}
		return nil
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}
