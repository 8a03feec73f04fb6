// Package command implements the scheduled command log: the only path by
// which simulation state in a scope may change.
//
// ARCHITECTURE:
//
// Every player action becomes a Command with a target tick. The relay stamps
// commands with a sequence number and echoes them to every peer in one total
// order. Network goroutines push received commands into an Intake; the
// simulation goroutine moves them into the Log at a tick boundary and drains
// the ones that are due.
//
//	network goroutine ──Push──▶ Intake ──DrainInto──▶ Log ──DrainDue──▶ Dispatcher
//	                                   (simulation goroutine only)
//
// ORDERING:
//
// Per scope, DrainDue returns due commands in enqueue order. Scopes are
// independent queues with no cross-scope ordering. A scope that is not
// loaded yet keeps buffering; commands are never dropped.
//
// FAILURE:
//
// A command whose target has disappeared is still dispatched; its handler
// must no-op. Skipping it would diverge from peers that have not yet
// observed the removal.
package command
