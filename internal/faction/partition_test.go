package faction

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
)

const (
	colony  ID = 1
	raiders ID = 2
)

func newPartition(t *testing.T) (*Partition, *View) {
	t.Helper()
	p := NewPartition(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	v := p.Attach(0, nil)
	return p, v
}

func liveBytes(t *testing.T, v *View) []byte {
	t.Helper()
	data, err := syncwork.Encode(v.live.saved)
	require.NoError(t, err)
	return data
}

func TestInstall_ABARestoresIdenticalState(t *testing.T) {
	p, v := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.CreateNew(0, raiders))

	require.NoError(t, p.Install(0, colony))
	v.Designate(Designation{Cell: 5, Def: "mine"})
	v.AddZone("stockpile", true, []int32{9, 3})
	v.AddResearch("electricity", 12.5)
	v.SetPolicy("medicine", "herbal")
	afterA := liveBytes(t, v)
	haulA := v.HaulCells()

	require.NoError(t, p.Install(0, raiders))
	assert.Empty(t, v.Designations(), "raiders must not see colony designations")
	assert.Empty(t, v.HaulCells())
	v.Designate(Designation{Cell: 5, Def: "deconstruct"})
	v.AddZone("dump", true, []int32{1})
	v.AddResearch("electricity", 99)

	require.NoError(t, p.Install(0, colony))
	assert.Equal(t, afterA, liveBytes(t, v))
	assert.Equal(t, haulA, v.HaulCells())
	d, ok := v.DesignationAt(5)
	require.True(t, ok)
	assert.Equal(t, "mine", d.Def)
}

func TestInstall_UnknownFaction(t *testing.T) {
	p, _ := newPartition(t)
	err := p.Install(0, 42)
	assert.True(t, errors.Is(err, ErrUnknownFaction))

	err = p.Install(7, colony)
	assert.True(t, errors.Is(err, ErrUnknownScope))
}

func TestCaptureCurrent_AdoptsPreexistingState(t *testing.T) {
	p := NewPartition()
	legacy := NewSavedState()
	legacy.Designations = []Designation{{Cell: 1, Def: "haul"}}
	v := p.Attach(3, legacy)

	_, owned := v.Faction()
	assert.False(t, owned)

	require.NoError(t, p.CaptureCurrent(3, colony))
	active, ok := p.Active(3)
	require.True(t, ok)
	assert.Equal(t, colony, active)

	require.NoError(t, p.CreateNew(3, raiders))
	require.NoError(t, p.Install(3, raiders))
	require.NoError(t, p.Install(3, colony))
	assert.Equal(t, legacy.Designations, v.Designations())

	assert.ErrorIs(t, p.CaptureCurrent(3, colony), ErrFactionExists)
}

func TestCaptureCurrent_ClaimedScopeIsRejected(t *testing.T) {
	p, v := newPartition(t)
	require.NoError(t, p.CaptureCurrent(0, colony))
	v.AddResearch("electricity", 1)

	err := p.CaptureCurrent(0, raiders)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	assert.Equal(t, []ID{colony}, p.Factions(0))

	require.NoError(t, p.CreateNew(0, raiders))
	require.NoError(t, p.Install(0, raiders))
	v.AddResearch("electricity", 100)
	require.NoError(t, p.Install(0, colony))
	assert.Equal(t, 1.0, v.Research("electricity"))
}

func TestCreateNew_Duplicate(t *testing.T) {
	p, _ := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	assert.ErrorIs(t, p.CreateNew(0, colony), ErrFactionExists)
	assert.Equal(t, []ID{colony}, p.Factions(0))
}

func TestRemove(t *testing.T) {
	p, _ := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.CreateNew(0, raiders))
	require.NoError(t, p.Install(0, colony))

	assert.ErrorIs(t, p.Remove(0, colony), ErrFactionActive)
	require.NoError(t, p.Remove(0, raiders))
	assert.ErrorIs(t, p.Remove(0, raiders), ErrUnknownFaction)
	assert.Equal(t, []ID{colony}, p.Factions(0))
}

func TestMaintain_RunsEachFactionAndRestores(t *testing.T) {
	p, v := newPartition(t)
	require.NoError(t, p.CreateNew(0, raiders))
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.Install(0, raiders))

	var order []ID
	err := p.Maintain(0, 10, func(f ID, view *View) error {
		order = append(order, f)
		active, _ := view.Faction()
		assert.Equal(t, f, active)
		view.AddResearch("tick", 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []ID{colony, raiders}, order)

	active, _ := p.Active(0)
	assert.Equal(t, raiders, active)
	assert.Equal(t, 1.0, v.Research("tick"))

	require.NoError(t, p.Install(0, colony))
	assert.Equal(t, 1.0, v.Research("tick"))
}

func TestMaintain_RejectsInstallDuringPass(t *testing.T) {
	p, _ := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.CreateNew(0, raiders))
	require.NoError(t, p.Install(0, colony))

	err := p.Maintain(0, 1, func(f ID, _ *View) error {
		if f == colony {
			// Re-installing the faction under maintenance is a no-op.
			assert.NoError(t, p.Install(0, colony))
			assert.ErrorIs(t, p.Install(0, raiders), ErrMaintenanceActive)
			assert.ErrorIs(t, p.Maintain(0, 1, nil), ErrMaintenanceActive)
		}
		return nil
	})
	require.NoError(t, err)

	active, _ := p.Active(0)
	assert.Equal(t, colony, active)
}

func TestMaintain_JoinsErrorsAndRestores(t *testing.T) {
	p, _ := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.CreateNew(0, raiders))
	require.NoError(t, p.Install(0, raiders))

	boom := errors.New("boom")
	var ran []ID
	err := p.Maintain(0, 1, func(f ID, _ *View) error {
		ran = append(ran, f)
		if f == colony {
			return boom
		}
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []ID{colony, raiders}, ran)

	active, _ := p.Active(0)
	assert.Equal(t, raiders, active)
	require.NoError(t, p.Install(0, colony), "partition must be usable after a failed pass")
}

func TestSaveState_RoundTrip(t *testing.T) {
	p, v := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.CreateNew(0, raiders))
	require.NoError(t, p.Install(0, raiders))
	v.AddZone("dump", true, []int32{4, 2})
	require.NoError(t, p.Install(0, colony))
	v.SetPolicy("food", "simple")

	w := syncwork.NewWriter()
	require.NoError(t, p.BindSaveState(w, 0))

	q := NewPartition()
	qv := q.Attach(0, nil)
	require.NoError(t, q.BindSaveState(syncwork.NewReader(w.Bytes()), 0))

	active, ok := q.Active(0)
	require.True(t, ok)
	assert.Equal(t, colony, active)
	pol, _ := qv.Policy("food")
	assert.Equal(t, "simple", pol)

	require.NoError(t, q.Install(0, raiders))
	assert.Equal(t, []int32{2, 4}, qv.HaulCells(), "caches are rebuilt after load")
}

func TestSaveState_TruncatedLeavesScope(t *testing.T) {
	p, _ := newPartition(t)
	require.NoError(t, p.CreateNew(0, colony))
	require.NoError(t, p.Install(0, colony))
	w := syncwork.NewWriter()
	require.NoError(t, p.BindSaveState(w, 0))
	data := w.Bytes()

	q := NewPartition()
	q.Attach(0, nil)
	require.NoError(t, q.CreateNew(0, raiders))
	require.Error(t, q.BindSaveState(syncwork.NewReader(data[:len(data)-1]), 0))
	assert.Equal(t, []ID{raiders}, q.Factions(0))
}

func TestDetach(t *testing.T) {
	p, _ := newPartition(t)
	assert.Equal(t, []command.Scope{0}, p.Scopes())
	assert.True(t, p.Detach(0))
	assert.False(t, p.Detach(0))
	_, ok := p.View(0)
	assert.False(t, ok)
}

func TestFactionWire(t *testing.T) {
	data, err := EncodeFaction(raiders)
	require.NoError(t, err)
	got, err := DecodeFaction(data)
	require.NoError(t, err)
	assert.Equal(t, raiders, got)

	_, err = DecodeFaction(data[:len(data)-1])
	assert.Error(t, err)
}

func TestSaveState_UnclaimedScope(t *testing.T) {
	p, v := newPartition(t)
	v.Designate(Designation{Cell: 9, Def: "mine"})

	w := syncwork.NewWriter()
	require.NoError(t, p.BindSaveState(w, 0))

	q := NewPartition()
	qv := q.Attach(0, nil)
	require.NoError(t, q.BindSaveState(syncwork.NewReader(w.Bytes()), 0))

	_, owned := q.Active(0)
	assert.False(t, owned)
	d, ok := qv.DesignationAt(9)
	require.True(t, ok)
	assert.Equal(t, "mine", d.Def)
}
