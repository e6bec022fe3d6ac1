package expr

import (
	"errors"
	"fmt"
)

// ErrEval is the sentinel all evaluation failures wrap. Use errors.Is to
// detect any evaluation failure, or errors.As with *EvalError for details.
var ErrEval = errors.New("expr: evaluation failed")

// EvalError describes a failure while evaluating a program.
//
// Evaluation failures are recoverable by design: automation primitives log
// them and treat the cycle as "no propagation"; they must never crash the
// host process.
type EvalError struct {
	// Token is the offending token text.
	Token string

	// Pos is the zero-based token position within the program.
	Pos int

	// Depth is the stack depth at the time of failure.
	Depth int

	// Reason describes what went wrong.
	Reason string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("expr: %s at token %d (%q), stack depth %d", e.Reason, e.Pos, e.Token, e.Depth)
}

func (e *EvalError) Unwrap() error { return ErrEval }
