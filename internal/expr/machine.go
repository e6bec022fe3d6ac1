package expr

import (
	"math"
	"reflect"
)

const twoPi = 2 * math.Pi

// machine is the transient evaluation state for a single run.
type machine struct {
	stack []any
	env   Env

	// current token, for error reporting
	pos int
	tok string
}

// Evaluate runs the program against the environment.
//
// The returned bool reports whether the program produced a result: a
// program that terminates with an empty stack yields (nil, false, nil),
// the defined "no propagation" signal.
func (p Program) Evaluate(env Env) (any, bool, error) {
	m := &machine{env: env}
	if env.HasValue {
		m.stack = append(m.stack, normalize(env.Value))
	}

	for i := 0; i < len(p.tokens); i++ {
		t := p.tokens[i]
		m.pos, m.tok = i, t.text

		switch t.kind {
		case tokNumber:
			m.push(t.num)
		case tokKey:
			m.push(t.text)
		case tokOp:
			switch t.text {
			case "IF":
				cond, err := m.popFloat()
				if err != nil {
					return nil, false, err
				}
				if !truthy(cond) {
					j, err := skipFalseBranch(p.tokens, i)
					if err != nil {
						return nil, false, m.fail(err.Error())
					}
					i = j
				}
			case "ELSE":
				// Reached only after executing the true branch: jump past
				// the matching ENDIF without evaluating the else branch.
				j, err := skipToEndif(p.tokens, i)
				if err != nil {
					return nil, false, m.fail(err.Error())
				}
				i = j
			case "ENDIF":
				// End of a taken branch.
			default:
				if err := operators[t.text](m); err != nil {
					return nil, false, err
				}
			}
		}
	}

	if len(m.stack) == 0 {
		return nil, false, nil
	}
	return m.stack[len(m.stack)-1], true, nil
}

// EvaluateFloat evaluates the program and coerces the result to a float.
// The bool is false when the program yields no result.
func (p Program) EvaluateFloat(env Env) (float64, bool, error) {
	v, ok, err := p.Evaluate(env)
	if err != nil || !ok {
		return 0, ok, err
	}
	f, fok := floatOf(v)
	if !fok {
		return 0, false, &EvalError{Token: "<result>", Pos: len(p.tokens), Reason: "result is not numeric"}
	}
	return f, true, nil
}

// ─── Stack primitives ───────────────────────────────────────────────────────

func (m *machine) fail(reason string) error {
	return &EvalError{Token: m.tok, Pos: m.pos, Depth: len(m.stack), Reason: reason}
}

func (m *machine) push(v any) {
	m.stack = append(m.stack, v)
}

func (m *machine) pop() (any, error) {
	if len(m.stack) == 0 {
		return nil, m.fail("stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *machine) popFloat() (float64, error) {
	v, err := m.pop()
	if err != nil {
		return 0, err
	}
	f, ok := floatOf(v)
	if !ok {
		return 0, m.fail("operand is not numeric")
	}
	return f, nil
}

func (m *machine) popString() (string, error) {
	v, err := m.pop()
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", m.fail("operand is not a string key")
	}
	return s, nil
}

func (m *machine) popArray() ([]any, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	a, ok := v.([]any)
	if !ok {
		return nil, m.fail("operand is not an array")
	}
	return a, nil
}

func (m *machine) popMap() (map[string]any, error) {
	v, err := m.pop()
	if err != nil {
		return nil, err
	}
	mp, ok := v.(map[string]any)
	if !ok {
		return nil, m.fail("operand is not a map")
	}
	return mp, nil
}

// ─── Operator table ─────────────────────────────────────────────────────────

type opFunc func(*machine) error

var operators map[string]opFunc

func init() {
	operators = map[string]opFunc{
		// Arithmetic
		"+": binaryOp(func(m *machine, a, b float64) (float64, error) { return a + b, nil }),
		"-": binaryOp(func(m *machine, a, b float64) (float64, error) { return a - b, nil }),
		"*": binaryOp(func(m *machine, a, b float64) (float64, error) { return a * b, nil }),
		"/": binaryOp(func(m *machine, a, b float64) (float64, error) {
			if b == 0 {
				return 0, m.fail("division by zero")
			}
			return a / b, nil
		}),
		"%": binaryOp(func(m *machine, a, b float64) (float64, error) {
			if b == 0 {
				return 0, m.fail("modulo by zero")
			}
			return math.Mod(a, b), nil
		}),
		"^": binaryOp(func(m *machine, a, b float64) (float64, error) { return math.Pow(a, b), nil }),

		// Comparison and logic, booleans are 1.0/0.0
		"==": opEqual(false),
		"!=": opEqual(true),
		"<":  binaryOp(func(m *machine, a, b float64) (float64, error) { return bool01(a < b), nil }),
		">":  binaryOp(func(m *machine, a, b float64) (float64, error) { return bool01(a > b), nil }),
		"<=": binaryOp(func(m *machine, a, b float64) (float64, error) { return bool01(a <= b), nil }),
		">=": binaryOp(func(m *machine, a, b float64) (float64, error) { return bool01(a >= b), nil }),
		"&&": binaryOp(func(m *machine, a, b float64) (float64, error) { return bool01(truthy(a) && truthy(b)), nil }),
		"||": binaryOp(func(m *machine, a, b float64) (float64, error) { return bool01(truthy(a) || truthy(b)), nil }),
		"!": unaryOp(func(m *machine, a float64) (float64, error) { return bool01(!truthy(a)), nil }),

		// Stack manipulation
		"DUP":  opDup,
		"SWAP": opSwap,
		"DROP": opDrop,
		"OVER": opOver,
		"POP":  opArrayPop,
		"PUSH": opArrayPush,

		// Trigonometry in turns: COS on x computes cos(2πx)
		"SIN": unaryOp(func(m *machine, a float64) (float64, error) { return math.Sin(a * twoPi), nil }),
		"COS": unaryOp(func(m *machine, a float64) (float64, error) { return math.Cos(a * twoPi), nil }),
		"TAN": unaryOp(func(m *machine, a float64) (float64, error) { return math.Tan(a * twoPi), nil }),
		"ASIN": unaryOp(func(m *machine, a float64) (float64, error) {
			if a < -1 || a > 1 {
				return 0, m.fail("ASIN operand out of range")
			}
			return math.Asin(a) / twoPi, nil
		}),
		"ACOS": unaryOp(func(m *machine, a float64) (float64, error) {
			if a < -1 || a > 1 {
				return 0, m.fail("ACOS operand out of range")
			}
			return math.Acos(a) / twoPi, nil
		}),

		// Numeric helpers
		"SQRT": unaryOp(func(m *machine, a float64) (float64, error) {
			if a < 0 {
				return 0, m.fail("SQRT operand negative")
			}
			return math.Sqrt(a), nil
		}),
		"ABS":   unaryOp(func(m *machine, a float64) (float64, error) { return math.Abs(a), nil }),
		"FLOOR": unaryOp(func(m *machine, a float64) (float64, error) { return math.Floor(a), nil }),
		"CEIL":  unaryOp(func(m *machine, a float64) (float64, error) { return math.Ceil(a), nil }),
		"ROUND": unaryOp(func(m *machine, a float64) (float64, error) { return math.Round(a), nil }),
		"MIN":   binaryOp(func(m *machine, a, b float64) (float64, error) { return math.Min(a, b), nil }),
		"MAX":   binaryOp(func(m *machine, a, b float64) (float64, error) { return math.Max(a, b), nil }),
		"POLY3": opPoly3,

		// Array and map composition
		"[]":  func(m *machine) error { m.push([]any{}); return nil },
		"[1]": opArrayLit(1),
		"[2]": opArrayLit(2),
		"[3]": opArrayLit(3),
		"[4]": opArrayLit(4),
		"{}":  func(m *machine) error { m.push(map[string]any{}); return nil },
		"GET": opMapGet,
		"PUT": opMapPut,

		// History and count variables
		"v":   opCurrent,
		"v_l": opPrevious,
		"c":   func(m *machine) error { m.push(m.env.Count); return nil },

		// Edge detection against the previous value, thresholded at 0.5
		"RISE": opEdge(func(cur, prev float64) bool { return truthy(cur) && !truthy(prev) }),
		"FALL": opEdge(func(cur, prev float64) bool { return !truthy(cur) && truthy(prev) }),
		"CHG":  opEdge(func(cur, prev float64) bool { return cur != prev }),

		// Unit conversions
		"H>S": unaryOp(func(m *machine, a float64) (float64, error) { return a * 3600, nil }),
		"D>S": unaryOp(func(m *machine, a float64) (float64, error) { return a * 86400, nil }),

		// Real-time clock queries (rtc.go)
		"rtc.y":   opRTC(rtcYear),
		"rtc.dow": opRTC(rtcDayOfWeek),
		"rtc.dom": opRTC(rtcDayOfMonth),
		"rtc.tod": opRTC(rtcTimeOfDay),
		"rtc.moy": opRTC(rtcMonthOfYear),
		"rtc.wom": opRTC(rtcWeekOfMonth),
		"rtc.awm": opRTC(rtcAlignedWeekOfMonth),
		"rtc.woy": opRTC(rtcWeekOfYear),
		"rtc.wss": func(m *machine) error { m.env.WeekStartSunday = true; return nil },
		"rtc.utc": func(m *machine) error { m.env.UTC = true; return nil },
	}
}

func unaryOp(f func(*machine, float64) (float64, error)) opFunc {
	return func(m *machine) error {
		a, err := m.popFloat()
		if err != nil {
			return err
		}
		r, err := f(m, a)
		if err != nil {
			return err
		}
		m.push(r)
		return nil
	}
}

func binaryOp(f func(*machine, float64, float64) (float64, error)) opFunc {
	return func(m *machine) error {
		b, err := m.popFloat()
		if err != nil {
			return err
		}
		a, err := m.popFloat()
		if err != nil {
			return err
		}
		r, err := f(m, a, b)
		if err != nil {
			return err
		}
		m.push(r)
		return nil
	}
}

// opEqual compares generically: numerically when both operands are numeric,
// deep equality otherwise (arrays, maps, strings).
func opEqual(negate bool) opFunc {
	return func(m *machine) error {
		b, err := m.pop()
		if err != nil {
			return err
		}
		a, err := m.pop()
		if err != nil {
			return err
		}
		eq := valuesEqual(a, b)
		if negate {
			eq = !eq
		}
		m.push(bool01(eq))
		return nil
	}
}

func opDup(m *machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	m.push(v)
	m.push(v)
	return nil
}

func opSwap(m *machine) error {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	m.push(b)
	m.push(a)
	return nil
}

func opDrop(m *machine) error {
	_, err := m.pop()
	return err
}

func opOver(m *machine) error {
	if len(m.stack) < 2 {
		return m.fail("stack underflow")
	}
	m.push(m.stack[len(m.stack)-2])
	return nil
}

// opArrayPop decomposes the array on top of the stack: [1,2] becomes the
// array [1] with the element 2 pushed above it. This is distinct from DROP,
// which discards the stack top.
func opArrayPop(m *machine) error {
	a, err := m.popArray()
	if err != nil {
		return err
	}
	if len(a) == 0 {
		return m.fail("POP on empty array")
	}
	rest := make([]any, len(a)-1)
	copy(rest, a[:len(a)-1])
	m.push(rest)
	m.push(a[len(a)-1])
	return nil
}

// opArrayPush is POP's inverse: pops a value and the array beneath it,
// pushes the array with the value appended.
func opArrayPush(m *machine) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.popArray()
	if err != nil {
		return err
	}
	out := make([]any, len(a), len(a)+1)
	copy(out, a)
	m.push(append(out, v))
	return nil
}

// opArrayLit builds a fixed-size array from the top n stack values,
// preserving push order: the oldest pushed value is index 0.
func opArrayLit(n int) opFunc {
	return func(m *machine) error {
		if len(m.stack) < n {
			return m.fail("stack underflow")
		}
		out := make([]any, n)
		copy(out, m.stack[len(m.stack)-n:])
		m.stack = m.stack[:len(m.stack)-n]
		m.push(out)
		return nil
	}
}

func opMapGet(m *machine) error {
	key, err := m.popString()
	if err != nil {
		return err
	}
	mp, err := m.popMap()
	if err != nil {
		return err
	}
	v, ok := mp[key]
	if !ok {
		return m.fail("key " + key + " not present")
	}
	m.push(v)
	return nil
}

// opMapPut pops the key, the value, and the target map, and pushes an
// updated copy. The source map is never mutated: programs are pure and a
// map may be shared with the caller's property state.
func opMapPut(m *machine) error {
	key, err := m.popString()
	if err != nil {
		return err
	}
	v, err := m.pop()
	if err != nil {
		return err
	}
	mp, err := m.popMap()
	if err != nil {
		return err
	}
	out := make(map[string]any, len(mp)+1)
	for k, val := range mp {
		out[k] = val
	}
	out[key] = v
	m.push(out)
	return nil
}

// opPoly3 evaluates a cubic polynomial. Coefficients are pushed
// highest-degree first, then the variable: "a b c d n POLY3" computes
// a·n³ + b·n² + c·n + d.
func opPoly3(m *machine) error {
	n, err := m.popFloat()
	if err != nil {
		return err
	}
	d, err := m.popFloat()
	if err != nil {
		return err
	}
	c, err := m.popFloat()
	if err != nil {
		return err
	}
	b, err := m.popFloat()
	if err != nil {
		return err
	}
	a, err := m.popFloat()
	if err != nil {
		return err
	}
	m.push(((a*n+b)*n+c)*n + d)
	return nil
}

func opCurrent(m *machine) error {
	if !m.env.HasValue {
		return m.fail("no current value")
	}
	m.push(normalize(m.env.Value))
	return nil
}

func opPrevious(m *machine) error {
	if m.env.Previous == nil {
		return m.fail("no previous value")
	}
	m.push(normalize(m.env.Previous))
	return nil
}

// opEdge pops the current sample and compares it against the environment's
// previous value. An absent previous value is treated as 0 so a rising edge
// can fire on the first observation.
func opEdge(detect func(cur, prev float64) bool) opFunc {
	return func(m *machine) error {
		cur, err := m.popFloat()
		if err != nil {
			return err
		}
		var prev float64
		if m.env.Previous != nil {
			if p, ok := floatOf(normalize(m.env.Previous)); ok {
				prev = p
			}
		}
		m.push(bool01(detect(cur, prev)))
		return nil
	}
}

func opRTC(query func(m *machine) float64) opFunc {
	return func(m *machine) error {
		m.push(query(m))
		return nil
	}
}

// ─── Branch skipping ────────────────────────────────────────────────────────

// skipFalseBranch advances from an IF whose condition was false: it returns
// the index of the matching ELSE (execution resumes after it) or the
// matching ENDIF. Nested conditionals inside the skipped branch are not
// evaluated.
func skipFalseBranch(tokens []token, from int) (int, error) {
	depth := 0
	for i := from + 1; i < len(tokens); i++ {
		if tokens[i].kind != tokOp {
			continue
		}
		switch tokens[i].text {
		case "IF":
			depth++
		case "ELSE":
			if depth == 0 {
				return i, nil
			}
		case "ENDIF":
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, errUnterminated
}

// skipToEndif advances from an ELSE reached after executing the true branch
// to the matching ENDIF.
func skipToEndif(tokens []token, from int) (int, error) {
	depth := 0
	for i := from + 1; i < len(tokens); i++ {
		if tokens[i].kind != tokOp {
			continue
		}
		switch tokens[i].text {
		case "IF":
			depth++
		case "ENDIF":
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, errUnterminated
}

var errUnterminated = &unterminatedError{}

type unterminatedError struct{}

func (*unterminatedError) Error() string { return "unterminated conditional" }

// ─── Value helpers ──────────────────────────────────────────────────────────

// normalize converts property values into the evaluator's numeric model:
// booleans become 1/0, integer types widen to float64. Strings, arrays, and
// maps pass through unchanged.
func normalize(v any) any {
	switch n := v.(type) {
	case bool:
		return bool01(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return v
	}
}

func floatOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		return bool01(n), true
	}
	return 0, false
}

func valuesEqual(a, b any) bool {
	fa, aok := floatOf(a)
	fb, bok := floatOf(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func bool01(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func truthy(f float64) bool { return f >= 0.5 }
