package command

import (
	"sort"
)

// Log holds one ordered queue of scheduled commands per scope.
//
// The Log is owned by the simulation goroutine and is not safe for
// concurrent use; network goroutines go through an Intake instead.
type Log struct {
	queues map[Scope][]Command
}

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{queues: make(map[Scope][]Command)}
}

// Schedule appends cmd to the tail of its scope's queue. The target tick is
// not validated against the current tick: commands may target ticks that
// have not been reached, which is how peers with different latencies apply
// them at the same point.
func (l *Log) Schedule(cmd Command) {
	l.queues[cmd.Scope] = append(l.queues[cmd.Scope], cmd)
}

// DrainDue removes and returns, in enqueue order, every command in scope
// whose TargetTick is at or before tick. Commands that are not yet due keep
// their relative order.
func (l *Log) DrainDue(scope Scope, tick uint64) []Command {
	q := l.queues[scope]
	if len(q) == 0 {
		return nil
	}

	var due []Command
	kept := q[:0]
	for _, cmd := range q {
		if cmd.TargetTick <= tick {
			due = append(due, cmd)
		} else {
			kept = append(kept, cmd)
		}
	}

	// Clear the vacated tail so payloads can be collected.
	for i := len(kept); i < len(q); i++ {
		q[i] = Command{}
	}

	if len(kept) == 0 {
		delete(l.queues, scope)
	} else {
		l.queues[scope] = kept
	}
	return due
}

// Pending returns the number of commands queued for scope.
func (l *Log) Pending(scope Scope) int {
	return len(l.queues[scope])
}

// Peek returns a copy of scope's queue without removing anything.
func (l *Log) Peek(scope Scope) []Command {
	q := l.queues[scope]
	if len(q) == 0 {
		return nil
	}
	out := make([]Command, len(q))
	copy(out, q)
	return out
}

// Discard drops every queued command for scope and returns how many were
// dropped. Only called on scope teardown, where every peer tears down at
// the same command.
func (l *Log) Discard(scope Scope) int {
	n := len(l.queues[scope])
	delete(l.queues, scope)
	return n
}

// Scopes returns the scopes with queued commands in ascending order.
func (l *Log) Scopes() []Scope {
	scopes := make([]Scope, 0, len(l.queues))
	for s := range l.queues {
		scopes = append(scopes, s)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes
}
