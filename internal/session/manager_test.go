package session

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
)

func quiet() ManagerOption {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func trade(trader, negotiator int32) *Session {
	return New(&TradePayload{Trader: trader, Negotiator: negotiator})
}

func ritual(target, organizer int32, participants ...int32) *Session {
	return New(&RitualPayload{Ritual: 1, Target: target, Organizer: organizer, Participants: participants})
}

func caravan(pawns ...int32) *Session {
	return New(&CaravanFormPayload{Destination: 100, Pawns: pawns})
}

// present is a TargetChecker backed by a set of live entity ids.
type present map[int32]bool

func (p present) Exists(_ command.Scope, id int32) bool { return p[id] }

func TestAddSession_ConflictLeavesOne(t *testing.T) {
	m := NewManager(0, quiet())

	first := trade(1, 2)
	require.True(t, m.AddSession(first))

	second := trade(1, 3)
	assert.False(t, m.AddSession(second))
	assert.Equal(t, 1, m.Len())
	assert.Zero(t, second.ID, "a rejected session is not assigned an id")

	got, ok := m.SessionByID(first.ID)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestAddSession_SameSessionTwice(t *testing.T) {
	m := NewManager(0, quiet())
	s := caravan(5)

	require.True(t, m.AddSession(s))
	assert.False(t, m.AddSession(s))
	assert.Equal(t, 1, m.Len())
}

func TestAddSession_NonConflicting(t *testing.T) {
	m := NewManager(0, quiet())

	require.True(t, m.AddSession(trade(1, 2)))
	require.True(t, m.AddSession(trade(3, 4)))
	require.True(t, m.AddSession(ritual(10, 11)))
	assert.Equal(t, 3, m.Len())
}

func TestAddSession_AssignsSequentialIDs(t *testing.T) {
	m := NewManager(2, quiet())
	a, b := trade(1, 2), trade(3, 4)
	m.AddSession(a)
	m.AddSession(b)

	assert.Equal(t, int32(1), a.ID)
	assert.Equal(t, int32(2), b.ID)
	assert.Equal(t, command.Scope(2), b.Scope)
}

func TestGetOrAddSessionAnyConflict(t *testing.T) {
	m := NewManager(0, quiet())
	form := caravan(1, 2)
	require.True(t, m.AddSession(form))

	// Transporter loading is exclusive with caravan formation.
	load := New(&TransporterLoadPayload{Transporters: []int32{50}})
	got := m.GetOrAddSessionAnyConflict(load)
	assert.Same(t, form, got)
	assert.Equal(t, 1, m.Len())

	fresh := trade(7, 8)
	assert.Same(t, fresh, m.GetOrAddSessionAnyConflict(fresh))
	assert.Equal(t, 2, m.Len())
}

func TestGetOrAddSessionOfKind(t *testing.T) {
	m := NewManager(0, quiet())
	form := caravan(1, 2)
	require.True(t, m.AddSession(form))

	t.Run("same kind returns existing", func(t *testing.T) {
		assert.Same(t, form, m.GetOrAddSessionOfKind(caravan(9)))
	})

	t.Run("different kind returns nil", func(t *testing.T) {
		split := New(&CaravanSplitPayload{Caravan: 70})
		assert.Nil(t, m.GetOrAddSessionOfKind(split))
		assert.Equal(t, 1, m.Len())
	})

	t.Run("no conflict adds", func(t *testing.T) {
		r := ritual(30, 31)
		assert.Same(t, r, m.GetOrAddSessionOfKind(r))
		assert.Equal(t, 2, m.Len())
	})
}

func TestRemoveSession_FiresHooks(t *testing.T) {
	var removed []int32
	m := NewManager(0, quiet(), WithRemoveHook(func(s *Session) {
		removed = append(removed, s.ID)
	}))

	s := trade(1, 2)
	m.AddSession(s)

	assert.True(t, m.RemoveSession(s))
	assert.False(t, m.RemoveSession(s))
	assert.Equal(t, []int32{s.ID}, removed)
	assert.Empty(t, m.SessionsOfKind(KindTrade))
	_, ok := m.FirstOfKind(KindTrade)
	assert.False(t, ok)
}

func TestLookupByKind(t *testing.T) {
	m := NewManager(0, quiet())
	a, b := trade(1, 2), trade(3, 4)
	m.AddSession(a)
	m.AddSession(ritual(10, 11))
	m.AddSession(b)

	assert.Equal(t, []*Session{a, b}, m.SessionsOfKind(KindTrade))
	first, ok := m.FirstOfKind(KindTrade)
	require.True(t, ok)
	assert.Same(t, a, first)
}

func TestIsAnySessionPausing(t *testing.T) {
	m := NewManager(0, quiet())
	assert.False(t, m.IsAnySessionPausing())

	m.AddSession(ritual(10, 11))
	assert.False(t, m.IsAnySessionPausing(), "rituals do not pause")

	s := trade(1, 2)
	m.AddSession(s)
	assert.True(t, m.IsAnySessionPausing())

	m.RemoveSession(s)
	assert.False(t, m.IsAnySessionPausing())
}

func TestTick_AdvancesTickable(t *testing.T) {
	m := NewManager(0, quiet())
	r := ritual(10, 11)
	m.AddSession(r)
	m.AddSession(trade(1, 2))

	for tick := uint64(1); tick <= 3; tick++ {
		assert.Empty(t, m.Tick(tick, nil))
	}
	assert.Equal(t, uint64(3), r.Payload.(*RitualPayload).Elapsed)
}

func TestTick_RemovesInvalidAfterIteration(t *testing.T) {
	var removed []int32
	m := NewManager(0, quiet(), WithRemoveHook(func(s *Session) {
		removed = append(removed, s.ID)
	}))

	gone := ritual(10, 11)
	kept := ritual(20, 21)
	lost := trade(1, 2)
	m.AddSession(gone)
	m.AddSession(kept)
	m.AddSession(lost)

	alive := present{11: true, 20: true, 21: true, 1: true}
	invalid := m.Tick(5, alive)

	assert.Equal(t, []*Session{gone, lost}, invalid)
	assert.Equal(t, []int32{gone.ID, lost.ID}, removed)
	assert.Equal(t, []*Session{kept}, m.Sessions())
	assert.Equal(t, uint64(0), gone.Payload.(*RitualPayload).Elapsed, "invalid sessions do not tick")
	assert.Equal(t, uint64(1), kept.Payload.(*RitualPayload).Elapsed)
}

func TestTeardown(t *testing.T) {
	var removed []int32
	m := NewManager(0, quiet(), WithRemoveHook(func(s *Session) {
		removed = append(removed, s.ID)
	}))
	m.AddSession(trade(1, 2))
	m.AddSession(trade(3, 4))

	assert.Equal(t, 2, m.Teardown())
	assert.Equal(t, []int32{2, 1}, removed)
	assert.Zero(t, m.Len())
}

func TestSaveState_RoundTrip(t *testing.T) {
	src := NewManager(3, quiet())
	src.AddSession(caravan(1, 2))
	src.AddSession(trade(5, 6)) // semi-persistent only
	src.AddSession(ritual(10, 11, 12))
	src.Tick(1, nil)

	w := syncwork.NewWriter()
	require.NoError(t, src.BindSaveState(w))

	dst := NewManager(3, quiet())
	dst.AddSession(trade(40, 41))
	require.NoError(t, dst.BindSaveState(syncwork.NewReader(w.Bytes())))

	require.Equal(t, 2, dst.Len())
	sessions := dst.Sessions()
	assert.Equal(t, KindCaravanForm, sessions[0].Kind())
	assert.Equal(t, int32(1), sessions[0].ID)
	assert.Equal(t, []int32{1, 2}, sessions[0].Payload.(*CaravanFormPayload).Pawns)
	assert.Equal(t, KindRitual, sessions[1].Kind())
	assert.Equal(t, uint64(1), sessions[1].Payload.(*RitualPayload).Elapsed)

	// The id counter survives, so a new session does not reuse id 2.
	s := trade(70, 71)
	require.True(t, dst.AddSession(s))
	assert.Equal(t, int32(4), s.ID)
}

func TestSemiPersistent_ReplacesOnlySemiPersistent(t *testing.T) {
	src := NewManager(0, quiet())
	src.AddSession(ritual(10, 11))
	src.AddSession(trade(1, 2))
	src.AddSession(New(&CaravanSplitPayload{Caravan: 9, Pawns: []int32{3}}))

	full := syncwork.NewWriter()
	require.NoError(t, src.BindSaveState(full))
	semi := syncwork.NewWriter()
	require.NoError(t, src.BindSemiPersistent(semi))

	// A rejoining peer loads the save, drifts, then takes the checkpoint.
	dst := NewManager(0, quiet())
	require.NoError(t, dst.BindSaveState(syncwork.NewReader(full.Bytes())))
	stale := trade(20, 21)
	require.True(t, dst.AddSession(stale))
	require.NoError(t, dst.BindSemiPersistent(syncwork.NewReader(semi.Bytes())))

	var kinds []Kind
	var ids []int32
	for _, s := range dst.Sessions() {
		kinds = append(kinds, s.Kind())
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []Kind{KindRitual, KindTrade, KindCaravanSplit}, kinds)
	assert.Equal(t, []int32{1, 2, 3}, ids)

	trades := dst.SessionsOfKind(KindTrade)
	require.Len(t, trades, 1)
	assert.Equal(t, int32(1), trades[0].Payload.(*TradePayload).Trader)
}

func TestSaveState_TruncatedLeavesManagerUntouched(t *testing.T) {
	src := NewManager(0, quiet())
	src.AddSession(caravan(1, 2))
	w := syncwork.NewWriter()
	require.NoError(t, src.BindSaveState(w))
	data := w.Bytes()

	dst := NewManager(0, quiet())
	existing := ritual(10, 11)
	dst.AddSession(existing)

	err := dst.BindSaveState(syncwork.NewReader(data[:len(data)-1]))
	require.Error(t, err)
	assert.Equal(t, []*Session{existing}, dst.Sessions())
}
