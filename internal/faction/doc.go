// Package faction partitions a scope's sub-state (designations, zones,
// research, policies and the caches derived from them) per controlling
// faction, so several factions can be active in one shared world without
// reading each other's state.
//
// A scope's View holds a single pointer to the installed faction's
// LiveState. Install swaps that pointer; the previous faction's record is
// kept as is. Maintain installs each faction in turn for its periodic pass
// and restores the original installation when done.
package faction
