// Package automation implements the in-band automation primitives:
// pairings, rules, and timers, owned by a Manager.
//
// Every primitive is itself a local functional endpoint, so it is
// addressable, observable, and configurable through the same property
// model as the devices it automates. Configuration lives in the config
// section; fire counters and status live read-only in the state section.
//
// Pairings mirror one property onto another, optionally through transform
// expressions, in the push direction, the pull direction, or both. A
// pairing must never re-trigger itself from its own write: writes carry
// the pairing's origin tag so local echo notifications are filtered out,
// and notifications whose value equals the value the pairing last wrote
// are dropped, which also covers echoes that crossed a transport and lost
// the tag.
//
// Rules subscribe to a condition set and fire an action list on the edge
// where the combined condition turns true. Staying true does not re-fire.
//
// Timers compute their next wake-up delay from a schedule expression,
// gate firing through a predicate expression, and either reschedule,
// return to idle, or delete themselves after firing.
//
// Expression evaluation and coercion errors never escape a reactive
// cycle: they are logged and the cycle is skipped, keeping the manager
// alive under malformed user programs.
package automation
