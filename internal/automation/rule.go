package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/expr"
	"github.com/weft-home/weft/internal/trait"
)

// MatchMode combines a rule's condition results.
type MatchMode string

const (
	// MatchAll requires every non-skipped condition to be true.
	MatchAll MatchMode = "all"

	// MatchAny requires at least one non-skipped condition to be true.
	MatchAny MatchMode = "any"
)

// Condition is one entry of a rule's condition set. An empty expression
// tests the property value itself against the truth threshold. Skipped
// conditions are kept in the set but neither subscribed nor evaluated.
type Condition struct {
	URI        string `json:"uri"`
	Expression string `json:"expr,omitempty"`
	Skip       bool   `json:"skip,omitempty"`
}

// RuleConfig describes a rule.
type RuleConfig struct {
	Conditions []Condition `json:"conditions"`
	Match      MatchMode   `json:"match"`
	Actions    []Action    `json:"actions"`
}

// compiledCond is one wired condition with its cached property value.
type compiledCond struct {
	cfg     Condition
	prog    expr.Program
	ref     propRef
	handle  *endpoint.Listener
	current any
	hasCur  bool
	prev    any
}

// Rule evaluates a condition set on every subscribed change and fires its
// action list on the edge where the combined result turns true. A rule
// that stays true does not re-fire; it must fall back to false first.
type Rule struct {
	*endpoint.Local

	resolver Resolver
	logger   Logger
	tr       *endpoint.SimpleTrait
	actions  []Action

	mu       sync.Mutex
	conds    []*compiledCond
	match    MatchMode
	combined bool
	fires    float64
	closed   bool
}

// NewRule creates and wires a rule. Every non-skipped condition URI must
// resolve; its current value seeds the condition cache.
func NewRule(id string, resolver Resolver, cfg RuleConfig) (*Rule, error) {
	r := &Rule{resolver: resolver, logger: noopLogger{}, actions: cfg.Actions}

	match := cfg.Match
	if match == "" {
		match = MatchAll
	}
	if match != MatchAll && match != MatchAny {
		return nil, fmt.Errorf("automation: unknown match mode %q", match)
	}
	r.match = match

	r.tr = endpoint.NewSimpleTrait("rule", KeyRuleMatch, KeyRuleFires, KeyRuleActive).
		Init(KeyRuleMatch, string(match)).
		Init(KeyRuleFires, int64(0)).
		Init(KeyRuleActive, false).
		MarkReadOnly(KeyRuleFires, KeyRuleActive).
		OnSet(r.onConfigSet)
	r.Local = endpoint.NewLocal(id, r.tr)
	r.Local.SetOnDelete(r.unwire)

	for _, c := range cfg.Conditions {
		cc := &compiledCond{cfg: c}
		if c.Expression != "" {
			prog, err := expr.Compile(c.Expression)
			if err != nil {
				r.Local.Delete(context.Background())
				return nil, err
			}
			cc.prog = prog
		}
		if !c.Skip {
			ref, err := resolveProperty(resolver, c.URI)
			if err != nil {
				r.Local.Delete(context.Background())
				return nil, err
			}
			cc.ref = ref
			if v, err := ref.fe.Fetch(context.Background(), ref.key); err == nil {
				cc.current, cc.hasCur = v, true
			}
			cond := cc
			cc.handle = ref.fe.AddPropertyListener(ref.key, func(_ endpoint.FunctionalEndpoint, _ trait.PropertyKey, v any) {
				r.onConditionChanged(cond, v)
			})
		}
		r.conds = append(r.conds, cc)
	}

	// The rule may already hold: arm the edge detector without firing so
	// only a fresh false-to-true transition fires.
	r.mu.Lock()
	if combined, err := r.evaluateLocked(); err == nil {
		r.combined = combined
	}
	active := r.combined
	r.mu.Unlock()
	r.tr.SilentSet(KeyRuleActive, active)
	return r, nil
}

// SetLogger sets the logger for the rule.
func (r *Rule) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// FireCount returns how many times the rule's actions have run.
func (r *Rule) FireCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.fires)
}

// Config returns the rule's configuration.
func (r *Rule) Config() RuleConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	conds := make([]Condition, len(r.conds))
	for i, c := range r.conds {
		conds[i] = c.cfg
	}
	return RuleConfig{Conditions: conds, Match: r.match, Actions: r.actions}
}

func (r *Rule) onConfigSet(key trait.PropertyKey, value any) error {
	if key.String() != KeyRuleMatch.String() {
		return nil
	}
	mode := MatchMode(value.(string))
	if mode != MatchAll && mode != MatchAny {
		return fmt.Errorf("automation: unknown match mode %q", mode)
	}
	r.mu.Lock()
	r.match = mode
	r.mu.Unlock()
	return nil
}

func (r *Rule) unwire() {
	r.mu.Lock()
	conds := r.conds
	r.closed = true
	r.mu.Unlock()
	for _, c := range conds {
		if c.handle != nil {
			c.ref.fe.RemoveListener(c.handle)
			c.handle = nil
		}
	}
}

// onConditionChanged re-evaluates the whole condition set against current
// cached values and fires on a false-to-true edge of the combined result.
func (r *Rule) onConditionChanged(c *compiledCond, value any) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	c.prev, c.current, c.hasCur = c.current, value, true

	combined, err := r.evaluateLocked()
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("condition evaluation failed, skipping cycle", "rule", r.ID(), "error", err)
		return
	}
	fire := combined && !r.combined
	changed := combined != r.combined
	r.combined = combined
	if fire {
		r.fires++
	}
	fires := int64(r.fires)
	actions := r.actions
	r.mu.Unlock()

	if changed {
		r.tr.SilentSet(KeyRuleActive, combined)
		r.Local.NotifyChanged(KeyRuleActive, combined, "")
	}
	if fire {
		r.tr.SilentSet(KeyRuleFires, fires)
		r.Local.NotifyChanged(KeyRuleFires, fires, "")
		runActions(context.Background(), r.resolver, r.logger, r.ID(), actions)
	}
}

// evaluateLocked combines the non-skipped conditions under r.mu. Each
// condition's expression sees that condition's current and previous
// values; an empty expression thresholds the value itself.
func (r *Rule) evaluateLocked() (bool, error) {
	anyTrue, allTrue, evaluated := false, true, false
	for _, c := range r.conds {
		if c.cfg.Skip {
			continue
		}
		evaluated = true

		var truth bool
		if c.prog.Empty() {
			f, ok := numeric(c.current)
			truth = ok && f >= 0.5
		} else {
			env := expr.Env{Previous: c.prev, Count: r.fires}.WithValue(c.current)
			f, ok, err := c.prog.EvaluateFloat(env)
			if err != nil {
				return false, err
			}
			truth = ok && f >= 0.5
		}
		if truth {
			anyTrue = true
		} else {
			allTrue = false
		}
	}
	if !evaluated {
		return false, nil
	}
	if r.match == MatchAny {
		return anyTrue, nil
	}
	return allTrue, nil
}

// CopyState snapshots the rule for persistence.
func (r *Rule) CopyState() map[string]any {
	cfg := r.Config()
	conds := make([]any, len(cfg.Conditions))
	for i, c := range cfg.Conditions {
		conds[i] = map[string]any{"uri": c.URI, "expr": c.Expression, "skip": c.Skip}
	}
	actions := actionsToState(cfg.Actions)

	r.mu.Lock()
	fires := r.fires
	r.mu.Unlock()
	return map[string]any{
		"conditions": conds,
		"match":      string(cfg.Match),
		"actions":    actions,
		"fires":      fires,
	}
}

// restoreCounters reinstates the persistent counters after a restart.
func (r *Rule) restoreCounters(state map[string]any) {
	r.mu.Lock()
	if f, ok := numeric(state["fires"]); ok {
		r.fires = f
	}
	fires := int64(r.fires)
	r.mu.Unlock()
	r.tr.SilentSet(KeyRuleFires, fires)
}

// ruleConfigFromState rebuilds a RuleConfig from a persisted snapshot.
func ruleConfigFromState(state map[string]any) RuleConfig {
	var cfg RuleConfig
	if m, ok := state["match"].(string); ok {
		cfg.Match = MatchMode(m)
	}
	if raw, ok := state["conditions"].([]any); ok {
		for _, entry := range raw {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			c := Condition{}
			c.URI, _ = m["uri"].(string)
			c.Expression, _ = m["expr"].(string)
			c.Skip, _ = m["skip"].(bool)
			cfg.Conditions = append(cfg.Conditions, c)
		}
	}
	cfg.Actions = actionsFromState(state["actions"])
	return cfg
}

// actionsFromState rebuilds an action list from a persisted snapshot.
func actionsFromState(raw any) []Action {
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	var actions []Action
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		a := Action{Body: m["body"]}
		a.URI, _ = m["uri"].(string)
		a.Method, _ = m["method"].(string)
		if s, ok := m["sync"].(string); ok {
			a.Sync = SyncMode(s)
		}
		actions = append(actions, a)
	}
	return actions
}

// lastFireStamp formats a fire time for the state section.
func lastFireStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
