// Package store provides SQLite-backed durable storage for the relay.
//
// The store holds:
//   - Commands: the append-only journal of every command the relay ordered
//   - Snapshots: lz4-compressed state blobs (save states and rejoin
//     checkpoints) keyed by UUIDv7
//
// # Ordering
//
// All ordering uses seq INTEGER (the relay's logical clock), NEVER
// timestamps. The journal is read back ORDER BY seq ASC, so replaying it
// reproduces the exact order every peer saw.
//
// # Snapshots
//
// Blobs are opaque to the store. Each row records the codec format version
// it was written with; a mismatched version is refused rather than decoded.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package store
