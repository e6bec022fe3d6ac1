// Package store persists technology component state to SQLite.
//
// Durable components (groups, pairings, rules, timers) snapshot
// themselves into plain maps; the store flattens one such snapshot into
// per-component rows of JSON blobs and rebuilds it on load. Save replaces
// the whole snapshot in a single transaction, so a restore after a crash
// always sees a consistent generation.
package store
