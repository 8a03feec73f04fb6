package session

import (
	"log/slog"
	"slices"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
)

// TargetChecker reports whether an entity still exists in a scope.
type TargetChecker interface {
	Exists(scope command.Scope, id int32) bool
}

// RemoveHook runs after a session has been unregistered.
type RemoveHook func(s *Session)

// Manager owns the sessions open in one scope.
//
// The primary registry is the ordered list of sessions; byID, byKind and the
// capability lists are indices derived from it. A Manager is driven only by
// the simulation goroutine and is not safe for concurrent use.
type Manager struct {
	scope  command.Scope
	matrix ConflictMatrix
	logger *slog.Logger
	hooks  []RemoveHook

	nextID   int32
	sessions []*Session
	byID     map[int32]*Session
	byKind   map[Kind][]*Session

	persistent     []*Session
	semiPersistent []*Session
	tickable       []*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMatrix sets the conflict rules. The matrix is cloned.
func WithMatrix(m ConflictMatrix) ManagerOption {
	return func(mg *Manager) {
		mg.matrix = m.Clone()
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(mg *Manager) {
		mg.logger = l
	}
}

// WithRemoveHook adds a hook fired after every removal.
func WithRemoveHook(h RemoveHook) ManagerOption {
	return func(mg *Manager) {
		mg.hooks = append(mg.hooks, h)
	}
}

// NewManager creates an empty manager for scope.
func NewManager(scope command.Scope, opts ...ManagerOption) *Manager {
	m := &Manager{
		scope:  scope,
		matrix: DefaultMatrix(),
		logger: slog.Default(),
		nextID: 1,
		byID:   make(map[int32]*Session),
		byKind: make(map[Kind][]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scope returns the scope this manager serves.
func (m *Manager) Scope() command.Scope {
	return m.scope
}

// conflicting returns the first registered session that conflicts with s.
func (m *Manager) conflicting(s *Session) *Session {
	for _, existing := range m.sessions {
		if existing == s || m.matrix.Conflicts(existing, s) {
			return existing
		}
	}
	return nil
}

// AddSession registers s unless a conflicting session is already open.
// A conflict is the expected outcome of a duplicate open, not an error: it
// returns false and leaves the manager untouched.
func (m *Manager) AddSession(s *Session) bool {
	if m.conflicting(s) != nil {
		return false
	}
	m.register(s)
	return true
}

// GetOrAddSessionAnyConflict returns the open session that conflicts with s,
// whatever its kind, or registers and returns s when nothing conflicts.
func (m *Manager) GetOrAddSessionAnyConflict(s *Session) *Session {
	if existing := m.conflicting(s); existing != nil {
		return existing
	}
	m.register(s)
	return s
}

// GetOrAddSessionOfKind is GetOrAddSessionAnyConflict restricted to s's own
// kind: a conflicting session of another kind yields nil and s is not
// added.
func (m *Manager) GetOrAddSessionOfKind(s *Session) *Session {
	existing := m.conflicting(s)
	if existing == nil {
		m.register(s)
		return s
	}
	if existing.Kind() == s.Kind() {
		return existing
	}
	return nil
}

func (m *Manager) register(s *Session) {
	if s.ID == 0 {
		s.ID = m.nextID
		m.nextID++
	} else if s.ID >= m.nextID {
		m.nextID = s.ID + 1
	}
	s.Scope = m.scope

	m.sessions = append(m.sessions, s)
	m.byID[s.ID] = s
	kind := s.Kind()
	m.byKind[kind] = append(m.byKind[kind], s)
	if kind.Persistent() {
		m.persistent = append(m.persistent, s)
	}
	if kind.SemiPersistent() {
		m.semiPersistent = append(m.semiPersistent, s)
	}
	if _, ok := s.Payload.(Ticker); ok {
		m.tickable = append(m.tickable, s)
	}

	m.logger.Debug("session added",
		"scope", m.scope.String(),
		"id", s.ID,
		"kind", kind.String(),
	)
}

func without(list []*Session, s *Session) []*Session {
	return slices.DeleteFunc(list, func(x *Session) bool { return x == s })
}

// RemoveSession unregisters s and fires the remove hooks. It returns whether
// s was present in the primary registry.
func (m *Manager) RemoveSession(s *Session) bool {
	idx := slices.Index(m.sessions, s)
	if idx < 0 {
		return false
	}
	m.sessions = slices.Delete(m.sessions, idx, idx+1)

	if m.byID[s.ID] == s {
		delete(m.byID, s.ID)
	}
	kind := s.Kind()
	if rest := without(m.byKind[kind], s); len(rest) > 0 {
		m.byKind[kind] = rest
	} else {
		delete(m.byKind, kind)
	}
	m.persistent = without(m.persistent, s)
	m.semiPersistent = without(m.semiPersistent, s)
	m.tickable = without(m.tickable, s)

	m.logger.Debug("session removed",
		"scope", m.scope.String(),
		"id", s.ID,
		"kind", kind.String(),
	)
	for _, h := range m.hooks {
		h(s)
	}
	return true
}

// RemoveByID removes the session with id, reporting whether one existed.
func (m *Manager) RemoveByID(id int32) bool {
	s, ok := m.byID[id]
	if !ok {
		return false
	}
	return m.RemoveSession(s)
}

// SessionByID returns the session with id, if open.
func (m *Manager) SessionByID(id int32) (*Session, bool) {
	s, ok := m.byID[id]
	return s, ok
}

// SessionsOfKind returns the open sessions of kind in open order.
func (m *Manager) SessionsOfKind(kind Kind) []*Session {
	return slices.Clone(m.byKind[kind])
}

// FirstOfKind returns the earliest-opened session of kind.
func (m *Manager) FirstOfKind(kind Kind) (*Session, bool) {
	list := m.byKind[kind]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// IsAnySessionPausing reports whether an open session holds the scope's
// clock.
func (m *Manager) IsAnySessionPausing() bool {
	for _, s := range m.sessions {
		if s.Kind().Pausing() {
			return true
		}
	}
	return false
}

// Sessions returns every open session in open order.
func (m *Manager) Sessions() []*Session {
	return slices.Clone(m.sessions)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return len(m.sessions)
}

// Tick runs one tick boundary. Every session's targets are checked first;
// valid tickable sessions then advance; finally the invalid ones are removed,
// after iteration so no list is mutated while it is walked. The removed
// sessions are returned in open order. A nil checker treats every target as
// present.
func (m *Manager) Tick(tick uint64, targets TargetChecker) []*Session {
	var invalid []*Session
	var reasons []*InvalidTargetError
	for _, s := range m.sessions {
		if err := m.validate(s, tick, targets); err != nil {
			invalid = append(invalid, s)
			reasons = append(reasons, err)
		}
	}

	for _, s := range m.tickable {
		if slices.Contains(invalid, s) {
			continue
		}
		s.Payload.(Ticker).Tick(tick)
	}

	for i, s := range invalid {
		m.logger.Warn("removing session with missing target",
			"scope", m.scope.String(),
			"id", s.ID,
			"kind", s.Kind().String(),
			"error", reasons[i],
		)
		m.RemoveSession(s)
	}
	return invalid
}

func (m *Manager) validate(s *Session, tick uint64, targets TargetChecker) *InvalidTargetError {
	if targets == nil {
		return nil
	}
	for _, id := range s.Payload.Targets() {
		if !targets.Exists(m.scope, id) {
			return &InvalidTargetError{
				Scope:     m.scope,
				SessionID: s.ID,
				Kind:      s.Kind(),
				Target:    id,
				Tick:      tick,
			}
		}
	}
	return nil
}

// Teardown removes every session, newest first, firing hooks for each.
func (m *Manager) Teardown() int {
	n := len(m.sessions)
	for i := n - 1; i >= 0; i-- {
		m.RemoveSession(m.sessions[i])
	}
	return n
}

// sessionList is a persisted set of sessions plus the id counter.
type sessionList struct {
	nextID   int32
	sessions []*Session
}

func (l *sessionList) Describe(w *syncwork.Worker) error {
	if err := w.BindInt32("next_id", &l.nextID); err != nil {
		return err
	}
	return syncwork.BindSlice(w, "sessions", &l.sessions, func(w *syncwork.Worker, s **Session) error {
		if *s == nil {
			*s = &Session{}
		}
		return w.Bind("item", *s)
	})
}

// BindSaveState writes or reads the full save state: the persistent
// sessions and the id counter. Reading replaces every session currently
// open, without firing hooks.
func (m *Manager) BindSaveState(w *syncwork.Worker) error {
	l := sessionList{nextID: m.nextID, sessions: m.persistent}
	if err := w.Bind("save_state", &l); err != nil {
		return err
	}
	if w.IsWriting() {
		return nil
	}
	m.reset()
	m.restore(l)
	return nil
}

// BindSemiPersistent writes or reads the rejoin checkpoint. Reading replaces
// the open semi-persistent sessions and leaves the rest alone.
func (m *Manager) BindSemiPersistent(w *syncwork.Worker) error {
	l := sessionList{nextID: m.nextID, sessions: m.semiPersistent}
	if err := w.Bind("semi_persistent", &l); err != nil {
		return err
	}
	if w.IsWriting() {
		return nil
	}
	for _, s := range slices.Clone(m.semiPersistent) {
		m.drop(s)
	}
	m.restore(l)
	return nil
}

func (m *Manager) restore(l sessionList) {
	for _, s := range l.sessions {
		m.register(s)
	}
	m.nextID = max(m.nextID, l.nextID)
}

// drop unregisters without firing hooks.
func (m *Manager) drop(s *Session) {
	hooks := m.hooks
	m.hooks = nil
	m.RemoveSession(s)
	m.hooks = hooks
}

func (m *Manager) reset() {
	m.sessions = nil
	m.byID = make(map[int32]*Session)
	m.byKind = make(map[Kind][]*Session)
	m.persistent = nil
	m.semiPersistent = nil
	m.tickable = nil
	m.nextID = 1
}
