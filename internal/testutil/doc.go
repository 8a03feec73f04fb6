// Package testutil provides deterministic fakes shared by tests and the
// scenario harness: an in-memory journal, an in-memory connection pair and
// a predictable snapshot id generator.
package testutil
