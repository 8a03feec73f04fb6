// Package timevote arbitrates time speed between players sharing a scope.
//
// Votes arrive as ordinary commands, so every peer holds the same vote set
// at the same tick; the effective speed is a pure function of that set.
package timevote

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/syncwork"
)

// Reset is the record of the most recent vote reset in a scope.
type Reset struct {
	Cause ResetCause
	Count int
}

// Arbiter holds the recorded votes of every scope.
type Arbiter struct {
	logger    *slog.Logger
	votes     map[command.Scope]map[int32]Speed
	lastReset map[command.Scope]Reset
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the arbiter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Arbiter) {
		a.logger = l
	}
}

// NewArbiter creates an arbiter with no votes.
func NewArbiter(opts ...Option) *Arbiter {
	a := &Arbiter{
		logger:    slog.Default(),
		votes:     make(map[command.Scope]map[int32]Speed),
		lastReset: make(map[command.Scope]Reset),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RecordVote sets player's vote in scope, replacing any earlier vote.
func (a *Arbiter) RecordVote(scope command.Scope, player int32, speed Speed) error {
	if !speed.Valid() {
		return fmt.Errorf("record vote for player %d in %s: %s", player, scope, speed)
	}
	m, ok := a.votes[scope]
	if !ok {
		m = make(map[int32]Speed)
		a.votes[scope] = m
	}
	m[player] = speed
	return nil
}

// ResetVotes clears every vote in scope and returns how many were cleared.
func (a *Arbiter) ResetVotes(scope command.Scope, cause ResetCause) int {
	n := len(a.votes[scope])
	delete(a.votes, scope)
	a.lastReset[scope] = Reset{Cause: cause, Count: n}
	a.logger.Debug("votes reset",
		"scope", scope.String(),
		"cause", cause.String(),
		"cleared", n,
	)
	return n
}

// LastReset returns the most recent reset of scope.
func (a *Arbiter) LastReset(scope command.Scope) (Reset, bool) {
	r, ok := a.lastReset[scope]
	return r, ok
}

// RemovePlayer drops player's vote in every scope.
func (a *Arbiter) RemovePlayer(player int32) {
	for scope, m := range a.votes {
		delete(m, player)
		if len(m) == 0 {
			delete(a.votes, scope)
		}
	}
}

// EffectiveSpeed returns the lowest recorded vote in scope. With
// excludePaused, Paused votes are ignored. When no vote remains the result
// is Paused.
func (a *Arbiter) EffectiveSpeed(scope command.Scope, excludePaused bool) Speed {
	found := false
	lowest := Paused
	for _, v := range a.votes[scope] {
		if excludePaused && v == Paused {
			continue
		}
		if !found || v < lowest {
			lowest = v
			found = true
		}
	}
	if !found {
		return Paused
	}
	return lowest
}

// Votes returns a copy of scope's votes.
func (a *Arbiter) Votes(scope command.Scope) map[int32]Speed {
	return maps.Clone(a.votes[scope])
}

// Scopes returns the scopes with recorded votes, ascending.
func (a *Arbiter) Scopes() []command.Scope {
	return slices.Sorted(maps.Keys(a.votes))
}

type scopeVotes struct {
	votes map[int32]Speed
}

func (s *scopeVotes) Describe(w *syncwork.Worker) error {
	return syncwork.BindMap(w, "votes", &s.votes, syncwork.Int32, func(w *syncwork.Worker, v *Speed) error {
		raw := uint8(*v)
		if err := w.BindUint8("speed", &raw); err != nil {
			return err
		}
		*v = Speed(raw)
		if !v.Valid() {
			return fmt.Errorf("invalid speed %d", raw)
		}
		return nil
	})
}

type arbiterState struct {
	scopes map[int32]*scopeVotes
}

func (s *arbiterState) Describe(w *syncwork.Worker) error {
	return syncwork.BindMap(w, "scopes", &s.scopes, syncwork.Int32, func(w *syncwork.Worker, v **scopeVotes) error {
		if *v == nil {
			*v = &scopeVotes{}
		}
		return w.Bind("item", *v)
	})
}

// BindState writes or reads every scope's votes, in ascending scope and
// player order. Reading replaces all votes; reset history is not persisted.
func (a *Arbiter) BindState(w *syncwork.Worker) error {
	st := arbiterState{scopes: make(map[int32]*scopeVotes, len(a.votes))}
	if w.IsWriting() {
		for scope, m := range a.votes {
			st.scopes[int32(scope)] = &scopeVotes{votes: m}
		}
	}
	if err := w.Bind("time_votes", &st); err != nil {
		return err
	}
	if w.IsWriting() {
		return nil
	}
	votes := make(map[command.Scope]map[int32]Speed, len(st.scopes))
	for scope, sv := range st.scopes {
		if len(sv.votes) > 0 {
			votes[command.Scope(scope)] = sv.votes
		}
	}
	a.votes = votes
	return nil
}
