// Package world is a small deterministic simulation: entities with an
// integer value in each scope, grown every tick. It stands in for a real
// game behind peer.Simulation in the scenario harness and the CLI.
package world

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/faction"
	"github.com/roach88/lockstep/internal/syncwork"
)

// ActionKind selects what an Action does.
type ActionKind uint8

const (
	// Spawn creates Entity with Amount as its value.
	Spawn ActionKind = iota + 1
	// Despawn removes Entity.
	Despawn
	// Add adds Amount to Entity's value.
	Add
	// Designate marks Entity's cell for the installed faction.
	Designate
)

var actionNames = map[ActionKind]string{
	Spawn:     "spawn",
	Despawn:   "despawn",
	Add:       "add",
	Designate: "designate",
}

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	if n, ok := actionNames[k]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// ParseAction parses an action name.
func ParseAction(name string) (ActionKind, error) {
	for k, n := range actionNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

var (
	// ErrNoEntity is returned for an action on an entity that does not exist.
	ErrNoEntity = errors.New("no such entity")

	// ErrEntityExists is returned when spawning an entity twice.
	ErrEntityExists = errors.New("entity already exists")
)

// Action is the payload of an OpSimulation command.
type Action struct {
	Kind   ActionKind
	Entity int32
	Amount int64
}

// Describe implements syncwork.Describable.
func (a *Action) Describe(w *syncwork.Worker) error {
	kind := uint8(a.Kind)
	if err := w.BindUint8("kind", &kind); err != nil {
		return err
	}
	a.Kind = ActionKind(kind)
	if err := w.BindInt32("entity", &a.Entity); err != nil {
		return err
	}
	return w.BindInt64("amount", &a.Amount)
}

// Encode returns the command payload for a.
func (a Action) Encode() ([]byte, error) {
	return syncwork.Encode(&a)
}

// DecodeAction parses a command payload.
func DecodeAction(data []byte) (Action, error) {
	var a Action
	if err := syncwork.Decode(data, &a); err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}
	if _, ok := actionNames[a.Kind]; !ok {
		return Action{}, fmt.Errorf("decode action: unknown kind %d", a.Kind)
	}
	return a, nil
}

// World implements peer.Simulation.
type World struct {
	entities map[command.Scope]map[int32]int64
}

// New creates an empty world.
func New() *World {
	return &World{entities: make(map[command.Scope]map[int32]int64)}
}

// Apply implements peer.Simulation.
func (w *World) Apply(_ context.Context, cmd command.Command, view *faction.View) error {
	a, err := DecodeAction(cmd.Payload)
	if err != nil {
		return err
	}
	ents := w.entities[cmd.Scope]

	switch a.Kind {
	case Spawn:
		if _, ok := ents[a.Entity]; ok {
			return fmt.Errorf("spawn %d in %s: %w", a.Entity, cmd.Scope, ErrEntityExists)
		}
		if ents == nil {
			ents = make(map[int32]int64)
			w.entities[cmd.Scope] = ents
		}
		ents[a.Entity] = a.Amount
	case Despawn:
		if _, ok := ents[a.Entity]; !ok {
			return fmt.Errorf("despawn %d in %s: %w", a.Entity, cmd.Scope, ErrNoEntity)
		}
		delete(ents, a.Entity)
		if len(ents) == 0 {
			delete(w.entities, cmd.Scope)
		}
	case Add:
		if _, ok := ents[a.Entity]; !ok {
			return fmt.Errorf("add to %d in %s: %w", a.Entity, cmd.Scope, ErrNoEntity)
		}
		ents[a.Entity] += a.Amount
	case Designate:
		if view == nil {
			return fmt.Errorf("designate in %s: scope has no partition", cmd.Scope)
		}
		view.Designate(faction.Designation{Cell: a.Entity, Def: "mine", Target: cmd.Player})
	}
	return nil
}

// Tick implements peer.Simulation. Every entity in scope grows by one.
func (w *World) Tick(scope command.Scope, _ uint64) {
	for id := range w.entities[scope] {
		w.entities[scope][id]++
	}
}

// Exists implements session.TargetChecker. The global scope sees entities
// of every scope.
func (w *World) Exists(scope command.Scope, id int32) bool {
	if !scope.IsGlobal() {
		_, ok := w.entities[scope][id]
		return ok
	}
	for _, ents := range w.entities {
		if _, ok := ents[id]; ok {
			return true
		}
	}
	return false
}

// Value returns an entity's value.
func (w *World) Value(scope command.Scope, id int32) (int64, bool) {
	v, ok := w.entities[scope][id]
	return v, ok
}

// Entities returns the ids in scope, ascending.
func (w *World) Entities(scope command.Scope) []int32 {
	ids := make([]int32, 0, len(w.entities[scope]))
	for id := range w.entities[scope] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type scopeEntities struct {
	values map[int32]int64
}

func (s *scopeEntities) Describe(w *syncwork.Worker) error {
	return syncwork.BindMap(w, "entities", &s.values, syncwork.Int32, syncwork.Int64)
}

// BindState implements peer.Simulation.
func (w *World) BindState(wk *syncwork.Worker) error {
	st := make(map[int32]*scopeEntities, len(w.entities))
	if wk.IsWriting() {
		for scope, ents := range w.entities {
			st[int32(scope)] = &scopeEntities{values: ents}
		}
	}
	err := syncwork.BindMap(wk, "scopes", &st, syncwork.Int32, func(wk *syncwork.Worker, v **scopeEntities) error {
		if *v == nil {
			*v = &scopeEntities{}
		}
		return wk.Bind("item", *v)
	})
	if err != nil || wk.IsWriting() {
		return err
	}
	entities := make(map[command.Scope]map[int32]int64, len(st))
	for scope, s := range st {
		if len(s.values) > 0 {
			entities[command.Scope(scope)] = s.values
		}
	}
	w.entities = entities
	return nil
}

// Maintain is a faction.MaintainFunc: each installed faction accrues one
// point of research per designation.
func Maintain(_ faction.ID, v *faction.View) error {
	v.AddResearch("mining", float64(len(v.Designations())))
	return nil
}
