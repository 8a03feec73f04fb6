package faction

import (
	"slices"

	"github.com/roach88/lockstep/internal/syncwork"
)

// ID identifies a faction.
type ID int32

// Designation marks a cell for work.
type Designation struct {
	Cell   int32
	Def    string
	Target int32
}

// Describe implements syncwork.Describable.
func (d *Designation) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("cell", &d.Cell); err != nil {
		return err
	}
	if err := w.BindString("def", &d.Def); err != nil {
		return err
	}
	return w.BindInt32("target", &d.Target)
}

// Zone is a named group of cells. Stockpile zones are haul destinations.
type Zone struct {
	ID        int32
	Label     string
	Stockpile bool
	Cells     []int32
}

// Describe implements syncwork.Describable.
func (z *Zone) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("id", &z.ID); err != nil {
		return err
	}
	if err := w.BindString("label", &z.Label); err != nil {
		return err
	}
	if err := w.BindBool("stockpile", &z.Stockpile); err != nil {
		return err
	}
	return syncwork.BindSlice(w, "cells", &z.Cells, syncwork.Int32)
}

// SavedState is the persisted slice of a scope's sub-state that belongs to
// one faction.
type SavedState struct {
	Designations []Designation
	Zones        []Zone
	Research     map[string]float64
	Policies     map[string]string
	NextZoneID   int32
}

// NewSavedState returns an empty state.
func NewSavedState() *SavedState {
	return &SavedState{
		Research:   make(map[string]float64),
		Policies:   make(map[string]string),
		NextZoneID: 1,
	}
}

// Describe implements syncwork.Describable.
func (s *SavedState) Describe(w *syncwork.Worker) error {
	if err := syncwork.BindElems(w, "designations", &s.Designations); err != nil {
		return err
	}
	if err := syncwork.BindElems(w, "zones", &s.Zones); err != nil {
		return err
	}
	if err := syncwork.BindMap(w, "research", &s.Research, syncwork.String, syncwork.Float64); err != nil {
		return err
	}
	if err := syncwork.BindMap(w, "policies", &s.Policies, syncwork.String, syncwork.String); err != nil {
		return err
	}
	return w.BindInt32("next_zone_id", &s.NextZoneID)
}

// LiveState is a SavedState plus the caches the simulation reads every
// tick. Caches are derived data: they are rebuilt on activation and never
// persisted.
type LiveState struct {
	saved *SavedState

	haulCells []int32
	byCell    map[int32]int
}

func newLiveState(saved *SavedState) *LiveState {
	l := &LiveState{saved: saved}
	l.rebuild()
	return l
}

func (l *LiveState) rebuild() {
	l.haulCells = l.haulCells[:0]
	for _, z := range l.saved.Zones {
		if z.Stockpile {
			l.haulCells = append(l.haulCells, z.Cells...)
		}
	}
	slices.Sort(l.haulCells)
	l.haulCells = slices.Compact(l.haulCells)

	l.byCell = make(map[int32]int, len(l.saved.Designations))
	for i, d := range l.saved.Designations {
		l.byCell[d.Cell] = i
	}
}

// Saved returns the persisted part of the state.
func (l *LiveState) Saved() *SavedState {
	return l.saved
}
