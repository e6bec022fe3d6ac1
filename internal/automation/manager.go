package automation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/weft-home/weft/internal/endpoint"
)

// Manager owns the lifecycle of the automation primitives of one
// technology. Primitives are created through it, resolved through it, and
// persisted through its aggregated state snapshot.
type Manager struct {
	resolver Resolver
	logger   Logger

	mu       sync.Mutex
	pairings map[string]*Pairing
	rules    map[string]*Rule
	timers   map[string]*Timer

	// reserved holds IDs claimed by in-flight constructions so that a
	// concurrent Add cannot claim the same ID while the lock is released.
	reserved map[string]struct{}
}

// NewManager creates an empty manager resolving URIs through resolver.
func NewManager(resolver Resolver) *Manager {
	return &Manager{
		resolver: resolver,
		logger:   noopLogger{},
		pairings: make(map[string]*Pairing),
		rules:    make(map[string]*Rule),
		timers:   make(map[string]*Timer),
		reserved: make(map[string]struct{}),
	}
}

// SetLogger sets the logger for the manager and future primitives.
func (m *Manager) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// claim reserves an ID across all primitive kinds, generating one when
// the caller passes "". The reservation keeps the ID unavailable while
// the primitive is constructed without the manager lock held; the caller
// must either insert the primitive or release the reservation.
//
// Construction happens unlocked because primitive constructors resolve
// their URIs through the technology, and resolution of automation IDs
// routes back into the manager's lookup methods.
func (m *Manager) claim(id string) (string, Logger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	} else if m.taken(id) {
		return "", nil, fmt.Errorf("%w: %s", ErrPrimitiveExists, id)
	}
	m.reserved[id] = struct{}{}
	return id, m.logger, nil
}

// taken reports whether an ID is in use by any primitive kind or an
// in-flight construction. Caller holds m.mu.
func (m *Manager) taken(id string) bool {
	if _, ok := m.pairings[id]; ok {
		return true
	}
	if _, ok := m.rules[id]; ok {
		return true
	}
	if _, ok := m.timers[id]; ok {
		return true
	}
	_, ok := m.reserved[id]
	return ok
}

// release drops a reservation after a failed construction.
func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.reserved, id)
	m.mu.Unlock()
}

// AddPairing creates and wires a pairing. An empty ID generates one.
func (m *Manager) AddPairing(id string, cfg PairingConfig) (*Pairing, error) {
	id, logger, err := m.claim(id)
	if err != nil {
		return nil, err
	}
	p, err := NewPairing(id, m.resolver, cfg)
	if err != nil {
		m.release(id)
		return nil, err
	}
	p.SetLogger(logger)

	m.mu.Lock()
	delete(m.reserved, id)
	m.pairings[id] = p
	m.mu.Unlock()
	return p, nil
}

// AddRule creates and wires a rule. An empty ID generates one.
func (m *Manager) AddRule(id string, cfg RuleConfig) (*Rule, error) {
	id, logger, err := m.claim(id)
	if err != nil {
		return nil, err
	}
	r, err := NewRule(id, m.resolver, cfg)
	if err != nil {
		m.release(id)
		return nil, err
	}
	r.SetLogger(logger)

	m.mu.Lock()
	delete(m.reserved, id)
	m.rules[id] = r
	m.mu.Unlock()
	return r, nil
}

// AddTimer creates a timer. An empty ID generates one.
func (m *Manager) AddTimer(id string, cfg TimerConfig) (*Timer, error) {
	id, logger, err := m.claim(id)
	if err != nil {
		return nil, err
	}
	t, err := NewTimer(id, m.resolver, cfg)
	if err != nil {
		m.release(id)
		return nil, err
	}
	t.SetLogger(logger)
	t.mu.Lock()
	t.onAutoDelete = func(id string) { m.Remove(id) }
	t.mu.Unlock()

	m.mu.Lock()
	delete(m.reserved, id)
	m.timers[id] = t
	m.mu.Unlock()
	return t, nil
}

// Pairing looks up a pairing by ID.
func (m *Manager) Pairing(id string) (*Pairing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pairings[id]
	return p, ok
}

// Rule looks up a rule by ID.
func (m *Manager) Rule(id string) (*Rule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	return r, ok
}

// Timer looks up a timer by ID.
func (m *Manager) Timer(id string) (*Timer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	return t, ok
}

// Endpoints returns every primitive as a functional endpoint, for hosting
// in the technology's address space.
func (m *Manager) Endpoints() []endpoint.FunctionalEndpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]endpoint.FunctionalEndpoint, 0, len(m.pairings)+len(m.rules)+len(m.timers))
	for _, p := range m.pairings {
		out = append(out, p)
	}
	for _, r := range m.rules {
		out = append(out, r)
	}
	for _, t := range m.timers {
		out = append(out, t)
	}
	return out
}

// Remove deletes a primitive of any kind and reports whether it existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	var fe endpoint.FunctionalEndpoint
	if p, ok := m.pairings[id]; ok {
		fe = p
		delete(m.pairings, id)
	} else if r, ok := m.rules[id]; ok {
		fe = r
		delete(m.rules, id)
	} else if t, ok := m.timers[id]; ok {
		fe = t
		delete(m.timers, id)
	}
	m.mu.Unlock()

	if fe == nil {
		return false
	}
	fe.Delete(context.Background())
	return true
}

// Close tears down every primitive.
func (m *Manager) Close() {
	m.mu.Lock()
	fes := make([]endpoint.FunctionalEndpoint, 0, len(m.pairings)+len(m.rules)+len(m.timers))
	for _, p := range m.pairings {
		fes = append(fes, p)
	}
	for _, r := range m.rules {
		fes = append(fes, r)
	}
	for _, t := range m.timers {
		fes = append(fes, t)
	}
	m.pairings = make(map[string]*Pairing)
	m.rules = make(map[string]*Rule)
	m.timers = make(map[string]*Timer)
	m.mu.Unlock()

	for _, fe := range fes {
		fe.Delete(context.Background())
	}
}

// CopyState snapshots every primitive, keyed by kind and ID, so the
// technology can persist and restore them transactionally.
func (m *Manager) CopyState() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	pairings := make(map[string]any, len(m.pairings))
	for id, p := range m.pairings {
		pairings[id] = p.CopyState()
	}
	rules := make(map[string]any, len(m.rules))
	for id, r := range m.rules {
		rules[id] = r.CopyState()
	}
	timers := make(map[string]any, len(m.timers))
	for id, t := range m.timers {
		timers[id] = t.CopyState()
	}
	return map[string]any{"pairings": pairings, "rules": rules, "timers": timers}
}

// RestoreState recreates primitives from a snapshot. Primitives whose
// targets no longer resolve are skipped with a warning; restore is
// best-effort so one stale automation cannot block startup.
func (m *Manager) RestoreState(state map[string]any) error {
	for id, raw := range stateSection(state, "pairings") {
		cfg := PairingConfig{}
		cfg.Source, _ = raw["src"].(string)
		cfg.Destination, _ = raw["dst"].(string)
		cfg.Push, _ = raw["push"].(bool)
		cfg.Pull, _ = raw["pull"].(bool)
		cfg.Forward, _ = raw["fwd"].(string)
		cfg.Reverse, _ = raw["rev"].(string)
		p, err := m.AddPairing(id, cfg)
		if err != nil {
			m.logger.Warn("pairing not restored", "pairing", id, "error", err)
			continue
		}
		p.restoreCounters(raw)
	}

	for id, raw := range stateSection(state, "rules") {
		r, err := m.AddRule(id, ruleConfigFromState(raw))
		if err != nil {
			m.logger.Warn("rule not restored", "rule", id, "error", err)
			continue
		}
		r.restoreCounters(raw)
	}

	for id, raw := range stateSection(state, "timers") {
		cfg := TimerConfig{Actions: actionsFromState(raw["actions"])}
		cfg.Schedule, _ = raw["sched"].(string)
		cfg.Predicate, _ = raw["pred"].(string)
		cfg.AutoReset, _ = raw["reset"].(bool)
		cfg.AutoDelete, _ = raw["delete"].(bool)
		enabled, _ := raw["enabled"].(bool)

		// Arm only after the counters are back so the schedule expression
		// sees the restored fire count.
		t, err := m.AddTimer(id, cfg)
		if err != nil {
			m.logger.Warn("timer not restored", "timer", id, "error", err)
			continue
		}
		t.restoreCounters(raw)
		if enabled {
			cfg.Enabled = true
			if err := t.applyConfig(cfg); err != nil {
				m.logger.Warn("restored timer not armed", "timer", id, "error", err)
			}
		}
	}
	return nil
}

// stateSection extracts one kind's map from an aggregated snapshot.
func stateSection(state map[string]any, kind string) map[string]map[string]any {
	raw, ok := state[kind].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]any, len(raw))
	for id, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out[id] = m
		}
	}
	return out
}
