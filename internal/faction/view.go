package faction

import (
	"slices"

	"github.com/roach88/lockstep/internal/command"
)

// View is the simulation's handle on a scope's partitionable sub-state.
//
// Every accessor reads through a single pointer to the installed LiveState,
// so Install rebinds all of them at once and no field can be left pointing
// at the previous faction.
type View struct {
	scope   command.Scope
	faction ID
	owned   bool
	live    *LiveState
}

// Scope returns the scope this view belongs to.
func (v *View) Scope() command.Scope {
	return v.scope
}

// Faction returns the installed faction. ok is false before the first
// Install or CaptureCurrent.
func (v *View) Faction() (id ID, ok bool) {
	return v.faction, v.owned
}

// Designations returns the installed designations in insertion order.
func (v *View) Designations() []Designation {
	return slices.Clone(v.live.saved.Designations)
}

// DesignationAt returns the designation on cell, if any.
func (v *View) DesignationAt(cell int32) (Designation, bool) {
	i, ok := v.live.byCell[cell]
	if !ok {
		return Designation{}, false
	}
	return v.live.saved.Designations[i], true
}

// Designate adds or replaces the designation on d.Cell.
func (v *View) Designate(d Designation) {
	if i, ok := v.live.byCell[d.Cell]; ok {
		v.live.saved.Designations[i] = d
		return
	}
	v.live.byCell[d.Cell] = len(v.live.saved.Designations)
	v.live.saved.Designations = append(v.live.saved.Designations, d)
}

// RemoveDesignation clears the designation on cell.
func (v *View) RemoveDesignation(cell int32) bool {
	i, ok := v.live.byCell[cell]
	if !ok {
		return false
	}
	v.live.saved.Designations = slices.Delete(v.live.saved.Designations, i, i+1)
	v.live.rebuild()
	return true
}

// Zones returns the installed zones.
func (v *View) Zones() []Zone {
	return slices.Clone(v.live.saved.Zones)
}

// AddZone creates a zone over cells and returns its id.
func (v *View) AddZone(label string, stockpile bool, cells []int32) int32 {
	id := v.live.saved.NextZoneID
	v.live.saved.NextZoneID++
	v.live.saved.Zones = append(v.live.saved.Zones, Zone{
		ID:        id,
		Label:     label,
		Stockpile: stockpile,
		Cells:     slices.Clone(cells),
	})
	v.live.rebuild()
	return id
}

// HaulCells returns the sorted stockpile cells of the installed faction.
func (v *View) HaulCells() []int32 {
	return slices.Clone(v.live.haulCells)
}

// Research returns progress on project.
func (v *View) Research(project string) float64 {
	return v.live.saved.Research[project]
}

// AddResearch advances project by amount.
func (v *View) AddResearch(project string, amount float64) {
	v.live.saved.Research[project] += amount
}

// Policy returns the value of policy.
func (v *View) Policy(policy string) (string, bool) {
	val, ok := v.live.saved.Policies[policy]
	return val, ok
}

// SetPolicy sets policy to value.
func (v *View) SetPolicy(policy, value string) {
	v.live.saved.Policies[policy] = value
}
