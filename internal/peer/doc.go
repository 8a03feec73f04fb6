// Package peer runs one participant's copy of the world in lockstep with
// every other participant.
//
// A Controller owns the command log, sessions, faction partitions and time
// votes for every loaded scope. Commands arrive already ordered by the
// relay; the controller schedules them by target frame and applies them
// when that frame runs. Frames are released by the relay, so no peer can
// run a frame before it holds every command targeting it.
//
// Each frame, per scope (global first, then locals ascending):
//
//	apply due commands → run ticksPerFrame simulation ticks
//
// and each tick checks session targets, ticks sessions and the simulation,
// and runs per-faction maintenance.
//
// A Client connects a Controller to a relay over any Conn; Dial uses the
// websocket transport.
package peer
