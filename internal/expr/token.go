package expr

import (
	"strconv"
	"strings"
)

type tokenKind uint8

const (
	tokNumber tokenKind = iota
	tokKey              // ":name" string-key literal
	tokOp
)

type token struct {
	text string
	kind tokenKind
	num  float64
}

// Program is a compiled automation expression. Programs are immutable and
// safe for concurrent evaluation.
type Program struct {
	src    string
	tokens []token
}

// MustCompile compiles a program and panics on failure. For use in tests and
// fixed built-in expressions only; user-supplied programs go through Compile.
func MustCompile(src string) Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Compile tokenizes and validates a program.
//
// Tokens are separated by whitespace. Numeric literals parse as floats,
// ":name" tokens are string-key literals, and every other token must name a
// known operator. Unknown tokens are rejected here rather than at
// evaluation time so a misconfigured automation fails on save, not at 3am.
func Compile(src string) (Program, error) {
	fields := strings.Fields(src)
	tokens := make([]token, 0, len(fields))

	for i, f := range fields {
		switch {
		case strings.HasPrefix(f, ":") && len(f) > 1:
			tokens = append(tokens, token{text: f[1:], kind: tokKey})
		default:
			if n, err := strconv.ParseFloat(f, 64); err == nil {
				tokens = append(tokens, token{text: f, kind: tokNumber, num: n})
				continue
			}
			if _, ok := operators[f]; !ok && !isStructural(f) {
				return Program{}, &EvalError{Token: f, Pos: i, Reason: "unknown token"}
			}
			tokens = append(tokens, token{text: f, kind: tokOp})
		}
	}

	return Program{src: src, tokens: tokens}, nil
}

// String returns the program source.
func (p Program) String() string { return p.src }

// Empty reports whether the program has no tokens. Empty programs evaluate
// to the identity transform (the input value, if any, is the result).
func (p Program) Empty() bool { return len(p.tokens) == 0 }

func isStructural(text string) bool {
	return text == "IF" || text == "ELSE" || text == "ENDIF"
}
