package session

import (
	"slices"

	"github.com/roach88/lockstep/internal/command"
)

// Registry holds the global manager and one manager per loaded local scope.
// Managers are looked up by scope id; nothing outside the registry holds a
// reference across a load/unload cycle.
type Registry struct {
	opts   []ManagerOption
	global *Manager
	locals map[command.Scope]*Manager
}

// NewRegistry creates a registry whose managers are built with opts.
func NewRegistry(opts ...ManagerOption) *Registry {
	return &Registry{
		opts:   opts,
		global: NewManager(command.GlobalScope, opts...),
		locals: make(map[command.Scope]*Manager),
	}
}

// Global returns the global scope's manager.
func (r *Registry) Global() *Manager {
	return r.global
}

// Load returns scope's manager, creating it if the scope was not loaded.
func (r *Registry) Load(scope command.Scope) *Manager {
	if scope.IsGlobal() {
		return r.global
	}
	if m, ok := r.locals[scope]; ok {
		return m
	}
	m := NewManager(scope, r.opts...)
	r.locals[scope] = m
	return m
}

// Unload tears down scope's manager, firing remove hooks for every session,
// and forgets it. The global scope cannot be unloaded.
func (r *Registry) Unload(scope command.Scope) bool {
	m, ok := r.locals[scope]
	if !ok {
		return false
	}
	m.Teardown()
	delete(r.locals, scope)
	return true
}

// For returns the manager for scope if it is loaded.
func (r *Registry) For(scope command.Scope) (*Manager, bool) {
	if scope.IsGlobal() {
		return r.global, true
	}
	m, ok := r.locals[scope]
	return m, ok
}

// Scopes returns every loaded scope, global first, then locals ascending.
func (r *Registry) Scopes() []command.Scope {
	out := []command.Scope{command.GlobalScope}
	locals := make([]command.Scope, 0, len(r.locals))
	for s := range r.locals {
		locals = append(locals, s)
	}
	slices.Sort(locals)
	return append(out, locals...)
}
