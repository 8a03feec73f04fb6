package faction

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
)

var (
	// ErrUnknownScope is returned for a scope that was never attached.
	ErrUnknownScope = errors.New("scope not attached")

	// ErrUnknownFaction is returned when a faction has no record in the scope.
	ErrUnknownFaction = errors.New("faction has no partition record")

	// ErrFactionExists is returned when creating a record that already exists.
	ErrFactionExists = errors.New("faction already has a partition record")

	// ErrFactionActive is returned when removing the installed faction.
	ErrFactionActive = errors.New("faction is installed")

	// ErrAlreadyClaimed is returned when capturing a scope some faction
	// already owns.
	ErrAlreadyClaimed = errors.New("scope already claimed by a faction")

	// ErrMaintenanceActive is returned for an install attempted while the
	// scope's maintenance pass holds the partition.
	ErrMaintenanceActive = errors.New("maintenance pass in progress")
)

// table is the partition state of one scope.
type table struct {
	view        *View
	records     map[ID]*LiveState
	maintaining bool
}

// Partition keeps one record per faction per scope and binds exactly one of
// them into each scope's View.
//
// Every method takes the scope and faction explicitly; there is no ambient
// "current faction". Partition is driven by the simulation goroutine and is
// not safe for concurrent use.
type Partition struct {
	logger *slog.Logger
	tables map[command.Scope]*table
}

// Option configures a Partition.
type Option func(*Partition)

// WithLogger sets the partition's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Partition) {
		p.logger = l
	}
}

// NewPartition creates an empty partition.
func NewPartition(opts ...Option) *Partition {
	p := &Partition{
		logger: slog.Default(),
		tables: make(map[command.Scope]*table),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach registers scope with the sub-state that is live before any faction
// owns it and returns the scope's View. A nil state attaches an empty one.
// Attaching an already attached scope returns its existing View.
func (p *Partition) Attach(scope command.Scope, current *SavedState) *View {
	if t, ok := p.tables[scope]; ok {
		return t.view
	}
	if current == nil {
		current = NewSavedState()
	}
	t := &table{
		view:    &View{scope: scope, live: newLiveState(current)},
		records: make(map[ID]*LiveState),
	}
	p.tables[scope] = t
	return t.view
}

// View returns the View of scope.
func (p *Partition) View(scope command.Scope) (*View, bool) {
	t, ok := p.tables[scope]
	if !ok {
		return nil, false
	}
	return t.view, true
}

func (p *Partition) table(scope command.Scope) (*table, error) {
	t, ok := p.tables[scope]
	if !ok {
		return nil, fmt.Errorf("%s: %w", scope, ErrUnknownScope)
	}
	return t, nil
}

// CaptureCurrent adopts whatever is live in scope as faction's record and
// marks faction installed. Used once at load, for the state that was live
// before partitioning; once a faction owns scope it fails with
// ErrAlreadyClaimed.
func (p *Partition) CaptureCurrent(scope command.Scope, faction ID) error {
	t, err := p.table(scope)
	if err != nil {
		return err
	}
	if _, exists := t.records[faction]; exists {
		return fmt.Errorf("capture faction %d in %s: %w", faction, scope, ErrFactionExists)
	}
	if t.view.owned {
		return fmt.Errorf("capture faction %d in %s: held by %d: %w", faction, scope, t.view.faction, ErrAlreadyClaimed)
	}
	t.records[faction] = t.view.live
	t.view.faction = faction
	t.view.owned = true
	p.logger.Debug("captured partition", "scope", scope.String(), "faction", faction)
	return nil
}

// CreateNew seeds an empty record for a faction with no prior presence in
// scope. The installed faction does not change.
func (p *Partition) CreateNew(scope command.Scope, faction ID) error {
	t, err := p.table(scope)
	if err != nil {
		return err
	}
	if _, exists := t.records[faction]; exists {
		return fmt.Errorf("create faction %d in %s: %w", faction, scope, ErrFactionExists)
	}
	t.records[faction] = newLiveState(NewSavedState())
	p.logger.Debug("created partition", "scope", scope.String(), "faction", faction)
	return nil
}

// Install rebinds scope's View to faction's record. The previously installed
// record is untouched, so switching back is another Install. Installing the
// faction that is already installed is a no-op.
func (p *Partition) Install(scope command.Scope, faction ID) error {
	t, err := p.table(scope)
	if err != nil {
		return err
	}
	if t.view.owned && t.view.faction == faction {
		return nil
	}
	if t.maintaining {
		return fmt.Errorf("install faction %d in %s: %w", faction, scope, ErrMaintenanceActive)
	}
	return p.install(t, faction)
}

func (p *Partition) install(t *table, faction ID) error {
	live, ok := t.records[faction]
	if !ok {
		return fmt.Errorf("install faction %d in %s: %w", faction, t.view.scope, ErrUnknownFaction)
	}
	live.rebuild()
	t.view.live = live
	t.view.faction = faction
	t.view.owned = true
	return nil
}

// Active returns the faction installed in scope.
func (p *Partition) Active(scope command.Scope) (ID, bool) {
	t, ok := p.tables[scope]
	if !ok {
		return 0, false
	}
	return t.view.Faction()
}

// Factions returns the factions with a record in scope, ascending.
func (p *Partition) Factions(scope command.Scope) []ID {
	t, ok := p.tables[scope]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(t.records))
}

// Remove deletes faction's record from scope. The installed faction cannot
// be removed.
func (p *Partition) Remove(scope command.Scope, faction ID) error {
	t, err := p.table(scope)
	if err != nil {
		return err
	}
	if _, ok := t.records[faction]; !ok {
		return fmt.Errorf("remove faction %d in %s: %w", faction, scope, ErrUnknownFaction)
	}
	if t.view.owned && t.view.faction == faction {
		return fmt.Errorf("remove faction %d in %s: %w", faction, scope, ErrFactionActive)
	}
	delete(t.records, faction)
	return nil
}

// Detach forgets scope entirely, on unload.
func (p *Partition) Detach(scope command.Scope) bool {
	if _, ok := p.tables[scope]; !ok {
		return false
	}
	delete(p.tables, scope)
	return true
}

// Scopes returns the attached scopes, ascending.
func (p *Partition) Scopes() []command.Scope {
	return slices.Sorted(maps.Keys(p.tables))
}

// MaintainFunc is one faction's maintenance pass.
type MaintainFunc func(faction ID, v *View) error

// Maintain runs fn once per faction in scope, in ascending faction order,
// with that faction installed for the duration of the call. The faction
// installed beforehand is restored afterwards, even when fn fails. No other
// install may happen in scope while the pass runs. Errors from individual
// factions are joined; a failing faction does not stop the others.
func (p *Partition) Maintain(scope command.Scope, tick uint64, fn MaintainFunc) error {
	t, err := p.table(scope)
	if err != nil {
		return err
	}
	if t.maintaining {
		return fmt.Errorf("maintain %s: %w", scope, ErrMaintenanceActive)
	}

	t.maintaining = true
	prevLive, prevFaction, prevOwned := t.view.live, t.view.faction, t.view.owned
	defer func() {
		t.view.live, t.view.faction, t.view.owned = prevLive, prevFaction, prevOwned
		t.maintaining = false
	}()

	var errs []error
	for _, faction := range slices.Sorted(maps.Keys(t.records)) {
		if err := p.install(t, faction); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := fn(faction, t.view); err != nil {
			p.logger.Warn("faction maintenance failed",
				"scope", scope.String(),
				"faction", faction,
				"tick", tick,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("maintain faction %d in %s: %w", faction, scope, err))
		}
	}
	return errors.Join(errs...)
}

// scopeState is the persisted form of one scope's table.
type scopeState struct {
	owned   bool
	active  int32
	records map[int32]*SavedState
	// unclaimed is the live sub-state while no faction owns the scope.
	unclaimed *SavedState
}

func (s *scopeState) Describe(w *syncwork.Worker) error {
	if err := w.BindBool("owned", &s.owned); err != nil {
		return err
	}
	if err := w.BindInt32("active", &s.active); err != nil {
		return err
	}
	if !s.owned {
		if s.unclaimed == nil {
			s.unclaimed = NewSavedState()
		}
		if err := w.Bind("unclaimed", s.unclaimed); err != nil {
			return err
		}
	}
	return syncwork.BindMap(w, "records", &s.records, syncwork.Int32, func(w *syncwork.Worker, v **SavedState) error {
		if *v == nil {
			*v = NewSavedState()
		}
		return w.Bind("item", *v)
	})
}

// BindSaveState writes or reads scope's records and its installed faction.
// Reading requires the scope to be attached and replaces its records; on a
// decode error the scope is left as it was.
func (p *Partition) BindSaveState(w *syncwork.Worker, scope command.Scope) error {
	t, err := p.table(scope)
	if err != nil {
		return err
	}

	st := scopeState{owned: t.view.owned, active: int32(t.view.faction)}
	if w.IsWriting() {
		if !st.owned {
			st.unclaimed = t.view.live.saved
		}
		st.records = make(map[int32]*SavedState, len(t.records))
		for id, live := range t.records {
			st.records[int32(id)] = live.saved
		}
	}
	if err := w.Bind("partition", &st); err != nil {
		return err
	}
	if w.IsWriting() {
		return nil
	}

	records := make(map[ID]*LiveState, len(st.records))
	for id, saved := range st.records {
		records[ID(id)] = newLiveState(saved)
	}
	if st.owned {
		if _, ok := records[ID(st.active)]; !ok {
			return fmt.Errorf("load %s: installed faction %d: %w", scope, st.active, ErrUnknownFaction)
		}
	}

	t.records = records
	if st.owned {
		t.view.live = records[ID(st.active)]
		t.view.faction = ID(st.active)
		t.view.owned = true
	} else {
		t.view.live = newLiveState(st.unclaimed)
		t.view.faction = 0
		t.view.owned = false
	}
	return nil
}
