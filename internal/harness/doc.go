// Package harness runs scripted multiplayer scenarios end to end.
//
// A scenario starts one controller per player, connects each to a relay
// over an in-memory pipe, and journals to an in-memory SQLite store. Steps
// submit commands one at a time and release frames; assertions then check
// the first player's state, and "converged" checks that every connected
// peer reports the same state hash.
//
// # Scenario Format
//
//	name: trade_pauses_map
//	description: "An open trade holds the map's clock"
//	players: [1, 2]
//	scopes: [0]
//	stagger: true
//	steps:
//	  - {player: 1, scope: 0, vote: fast}
//	  - {player: 1, scope: 0, action: {kind: spawn, entity: 1, amount: 10}}
//	  - {player: 2, scope: 0, open: {kind: trade, pawns: [1, 2]}}
//	  - advance: 3
//	  - {player: 3, join: true}
//	assertions:
//	  - type: converged
//	  - {type: entity, scope: 0, entity: 1, value: 10}
//	  - {type: sessions, scope: 0, count: 1, kinds: [trade]}
//
// An omitted scope means the global scope.
//
// # Assertion Types
//
//   - converged: every connected peer has the same state hash
//   - entity: an entity's value, or absent: true
//   - tick, frame: a scope's tick or the frame count
//   - sessions: open session count and optionally their kinds
//   - speed: the effective speed of a scope
//   - faction: the active faction, or none when faction is omitted
//   - research: progress on a faction's research project
//
// # Determinism
//
// Commands are journaled one at a time, so seqs and target frames depend
// only on the scenario. With stagger set, later peers skip catching up on
// some steps; the state they reach is the same, which is the point.
// Results compare against golden files with RunWithGolden.
package harness
