package peer

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/session"
	"github.com/roach88/lockstep/internal/syncwork"
)

// Hash is a digest of a controller's complete state.
type Hash [32]byte

// String returns the hash in hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func bindScope(w *syncwork.Worker, s *command.Scope) error {
	v := int32(*s)
	if err := w.BindInt32("item", &v); err != nil {
		return err
	}
	*s = command.Scope(v)
	return nil
}

// scopeState is one loaded scope's tick, sessions and partition.
type scopeState struct {
	scope command.Scope
	core  *core
}

func (s *scopeState) Describe(w *syncwork.Worker) error {
	tick := s.core.ticks[s.scope]
	if err := w.BindUint64("tick", &tick); err != nil {
		return err
	}
	s.core.ticks[s.scope] = tick

	m, ok := s.core.sessions.For(s.scope)
	if !ok {
		return fmt.Errorf("%s: %w", s.scope, ErrScopeNotLoaded)
	}
	if err := m.BindSaveState(w); err != nil {
		return err
	}
	if s.scope.IsGlobal() {
		return nil
	}
	return s.core.factions.BindSaveState(w, s.scope)
}

// savedState is the full save: every core structure plus the simulation.
type savedState struct {
	core *core
	sim  Simulation
}

func (s *savedState) Describe(w *syncwork.Worker) error {
	version := codec.FormatVersion
	if err := w.BindUint16("format_version", &version); err != nil {
		return err
	}
	if version != codec.FormatVersion {
		return &codec.FormatError{What: "format_version", Message: fmt.Sprintf("unsupported version %d", version)}
	}
	if err := w.BindUint64("frame", &s.core.frame); err != nil {
		return err
	}
	if err := w.BindUint64("horizon", &s.core.horizon); err != nil {
		return err
	}
	if err := w.BindUint64("last_seq", &s.core.lastSeq); err != nil {
		return err
	}

	var locals []command.Scope
	if w.IsWriting() {
		locals = s.core.sessions.Scopes()[1:]
	}
	if err := syncwork.BindSlice(w, "scopes", &locals, bindScope); err != nil {
		return err
	}
	if !w.IsWriting() {
		for _, scope := range locals {
			s.core.sessions.Load(scope)
			s.core.factions.Attach(scope, nil)
		}
	}

	for _, scope := range append([]command.Scope{command.GlobalScope}, locals...) {
		if err := w.Bind("scope", &scopeState{scope: scope, core: s.core}); err != nil {
			return err
		}
	}

	if err := s.core.votes.BindState(w); err != nil {
		return err
	}

	var pending []command.Command
	if w.IsWriting() {
		for _, scope := range s.core.log.Scopes() {
			pending = append(pending, s.core.log.Peek(scope)...)
		}
	}
	if err := syncwork.BindElems(w, "pending", &pending); err != nil {
		return err
	}
	if !w.IsWriting() {
		for _, cmd := range pending {
			s.core.log.Schedule(cmd)
		}
	}

	return w.Bind("simulation", syncwork.DescribeFunc(s.sim.BindState))
}

// semiState is the rejoin checkpoint of every loaded scope's sessions.
type semiState struct {
	sessions *session.Registry
}

func (s *semiState) Describe(w *syncwork.Worker) error {
	scopes := s.sessions.Scopes()
	if err := syncwork.BindSlice(w, "scopes", &scopes, bindScope); err != nil {
		return err
	}
	for _, scope := range scopes {
		m, ok := s.sessions.For(scope)
		if !ok {
			// Not loaded here: read into a manager that is thrown away.
			m = session.NewManager(scope)
		}
		if err := m.BindSemiPersistent(w); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) opts() []syncwork.Option {
	return []syncwork.Option{syncwork.WithLimits(c.limits)}
}

// SaveState encodes the full state: frame position, every loaded scope's
// tick, persistent sessions and faction partition, votes, commands
// scheduled but not yet applied, and the simulation.
func (c *Controller) SaveState() ([]byte, error) {
	data, err := syncwork.Encode(&savedState{core: &c.core, sim: c.sim}, c.opts()...)
	if err != nil {
		return nil, fmt.Errorf("save state: %w", err)
	}
	return data, nil
}

// LoadState replaces the controller's state with a SaveState blob. The
// core is decoded into fresh structures and swapped in only on success.
// The simulation is read in place; it is checkpointed first and restored
// if the blob fails to decode.
//
// Received commands newer than the blob's last seq stay queued, so a
// joiner that buffers the live stream while fetching a save loses nothing.
// Older ones are already part of the save and are dropped.
func (c *Controller) LoadState(data []byte) error {
	checkpoint, err := syncwork.Encode(syncwork.DescribeFunc(c.sim.BindState), c.opts()...)
	if err != nil {
		return fmt.Errorf("load state: checkpoint simulation: %w", err)
	}

	fresh := c.newCore()
	if err := syncwork.Decode(data, &savedState{core: &fresh, sim: c.sim}, c.opts()...); err != nil {
		if rerr := syncwork.Decode(checkpoint, syncwork.DescribeFunc(c.sim.BindState), c.opts()...); rerr != nil {
			return fmt.Errorf("load state: %w (restore simulation: %v)", err, rerr)
		}
		return fmt.Errorf("load state: %w", err)
	}

	kept := c.intake.Retain(func(cmd command.Command) bool { return cmd.Seq > fresh.lastSeq })
	c.core = fresh
	for {
		last := c.received.Load()
		if last >= fresh.lastSeq || c.received.CompareAndSwap(last, fresh.lastSeq) {
			break
		}
	}
	c.logger.Info("state loaded", "frame", c.frame, "seq", c.lastSeq, "queued", kept, "scopes", len(c.sessions.Scopes()))
	return nil
}

// SemiPersistentState encodes the rejoin checkpoint: the semi-persistent
// sessions of every loaded scope.
func (c *Controller) SemiPersistentState() ([]byte, error) {
	data, err := syncwork.Encode(&semiState{sessions: c.sessions}, c.opts()...)
	if err != nil {
		return nil, fmt.Errorf("save semi-persistent state: %w", err)
	}
	return data, nil
}

// LoadSemiPersistent restores a rejoin checkpoint over the current state.
// The blob is validated against a scratch registry first so a bad blob
// changes nothing.
func (c *Controller) LoadSemiPersistent(data []byte) error {
	scratch := session.NewRegistry()
	for _, scope := range c.sessions.Scopes() {
		scratch.Load(scope)
	}
	if err := syncwork.Decode(data, &semiState{sessions: scratch}, c.opts()...); err != nil {
		return fmt.Errorf("load semi-persistent state: %w", err)
	}
	if err := syncwork.Decode(data, &semiState{sessions: c.sessions}, c.opts()...); err != nil {
		return fmt.Errorf("load semi-persistent state: %w", err)
	}
	return nil
}

// StateHash digests the full and semi-persistent state. Peers that have
// run the same frames from the same commands report the same hash.
func (c *Controller) StateHash() (Hash, error) {
	full, err := c.SaveState()
	if err != nil {
		return Hash{}, err
	}
	semi, err := c.SemiPersistentState()
	if err != nil {
		return Hash{}, err
	}
	h := blake3.New(32, nil)
	_, _ = h.Write(full)
	_, _ = h.Write(semi)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// TraceState decodes a SaveState blob into a scratch controller around sim
// and returns the human-readable tree of every field read.
func TraceState(data []byte, sim Simulation, opts ...Option) (string, error) {
	c := New(sim, opts...)
	fresh := c.newCore()
	trace := syncwork.NewTrace()
	err := syncwork.Decode(data, &savedState{core: &fresh, sim: sim}, append(c.opts(), syncwork.WithTrace(trace))...)
	if err != nil {
		return trace.String(), fmt.Errorf("trace state: %w", err)
	}
	return trace.String(), nil
}
