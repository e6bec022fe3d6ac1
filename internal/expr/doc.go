// Package expr implements the Weft automation expression language: a small
// stack-based (RPN) language used for pairing transforms, rule conditions,
// and timer schedules.
//
// Programs are whitespace-separated token sequences evaluated left to right
// against a value stack. All numeric literals are floating point; there is
// no integer/float distinction at the language level. Composite values
// (arrays, maps, strings) are permitted on the stack for the composition
// operators.
//
//	"5 3 +"                       => 8
//	"2 ^"            (input 3)    => 9
//	"c 0 == IF 0.001 ELSE 0.4 ENDIF"
//
// The top of stack after the final token is the program's result. A program
// that terminates with an empty stack yields no result at all, which callers
// treat as "do not propagate" (pairings) or "condition false" (rules,
// timers).
//
// Trigonometric operators work in turns, not radians: COS on 0.25 is
// cos(2π·0.25) = 0. This is a deliberate constrained-device simplification.
//
// Evaluation is pure: the program is immutable, all state lives in the
// transient machine, and identical (program, Env) pairs always produce
// identical results. The only environment inputs are the current and
// previous values, the fire count, and an injectable clock snapshot for the
// rtc.* query operators.
//
// Malformed programs (unknown tokens, stack underflow, type mismatches,
// division by zero) fail with *EvalError; evaluation never panics on
// user-authored programs.
package expr
