package expr

import "time"

// Env supplies the evaluation environment for a single run of a program.
//
// The zero value is a valid environment with no input value, no previous
// value, a zero fire count, and the real clock in local time.
type Env struct {
	// Value is the current input value (the "v" variable). When HasValue is
	// true it is also pre-pushed onto the stack before the first token runs,
	// so transforms can consume it without naming it.
	Value    any
	HasValue bool

	// Previous is the previous input value (the "v_l" variable), or nil when
	// no previous value exists. The edge-detection operators compare against
	// it.
	Previous any

	// Count is the owning primitive's fire count (the "c" variable).
	Count float64

	// Now is the real-time-clock snapshot used by the rtc.* query operators.
	// The zero value means time.Now(). Tests inject a fixed instant.
	Now time.Time

	// UTC selects UTC rather than local time for rtc.* queries. The rtc.utc
	// operator sets it for the remainder of a single evaluation.
	UTC bool

	// WeekStartSunday makes rtc.dow and the week-of operators number weeks
	// from Sunday instead of Monday. The rtc.wss operator sets it for the
	// remainder of a single evaluation.
	WeekStartSunday bool

	// OneBased makes the day/week/month numbering operators one-based
	// instead of zero-based.
	OneBased bool
}

// WithValue returns a copy of the environment carrying v as the current
// input value.
func (e Env) WithValue(v any) Env {
	e.Value = v
	e.HasValue = true
	return e
}

// now resolves the clock snapshot in the configured location.
func (e Env) now() time.Time {
	t := e.Now
	if t.IsZero() {
		t = time.Now()
	}
	if e.UTC {
		return t.UTC()
	}
	return t.Local()
}
