// Package session arbitrates the exclusive interactions (trades, caravan
// dialogs, rituals) open in each scope, so that every peer agrees on a single
// owner for the state each one touches.
//
// Session kinds form a closed set. Each kind carries its own payload type;
// whether two sessions may coexist is decided by a ConflictMatrix over the
// kind pair and the entities each payload claims. Opening a session that
// conflicts is not an error: the caller gets false, or the existing session
// back, and nothing changes.
//
// A Manager tracks three capability sets independently: sessions written to
// the full save state, sessions written to the lighter rejoin checkpoint, and
// sessions that advance every tick. Sessions whose targets disappear are
// detected at the next tick boundary and removed after the pass completes.
package session
