package technology

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/weft-home/weft/internal/automation"
	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/group"
	"github.com/weft-home/weft/internal/trait"
	"github.com/weft-home/weft/internal/transport"
)

// Logger defines the logging interface used by the Technology.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry is one hosted endpoint together with its hosting generation.
type entry struct {
	fe  endpoint.FunctionalEndpoint
	gen uint64
}

// Technology is the registry for one address space of endpoints. It
// implements the protocol server's Host, and the resolver interfaces of
// the group and automation packages.
//
// All public methods are thread-safe.
type Technology struct {
	name   string
	node   string
	logger Logger

	mu        sync.RWMutex
	gen       uint64
	endpoints map[string]entry
	groups    map[string]*group.Group

	automations *automation.Manager
}

// New creates an empty technology. name identifies the technology in
// discovery answers, node the process hosting it.
func New(name, node string) *Technology {
	t := &Technology{
		name:      name,
		node:      node,
		logger:    noopLogger{},
		endpoints: make(map[string]entry),
		groups:    make(map[string]*group.Group),
	}
	t.automations = automation.NewManager(t)
	return t
}

// Name returns the technology identifier.
func (t *Technology) Name() string { return t.name }

// SetLogger sets the logger for the technology and its automations.
func (t *Technology) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
	t.automations.SetLogger(logger)
}

// Automations returns the automation manager owned by this technology.
// Primitives created through it resolve their targets here.
func (t *Technology) Automations() *automation.Manager { return t.automations }

// Host registers an endpoint under its own identifier and returns the
// hosting generation. The generation must be presented to Unhost, which
// makes a deferred unhost harmless after the identifier was re-hosted.
func (t *Technology) Host(fe endpoint.FunctionalEndpoint) (uint64, error) {
	id := fe.ID()
	if id == "" {
		return 0, fmt.Errorf("technology: endpoint has no identifier")
	}
	if strings.HasPrefix(id, "g/") {
		return 0, fmt.Errorf("technology: identifier %q shadows the group namespace", id)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.endpoints[id]; ok {
		return 0, fmt.Errorf("%w: %s", ErrEndpointExists, id)
	}
	t.gen++
	t.endpoints[id] = entry{fe: fe, gen: t.gen}
	t.logger.Debug("endpoint hosted", "endpoint", id, "generation", t.gen)
	return t.gen, nil
}

// Unhost removes the endpoint hosted under id, provided gen still matches
// its hosting generation. It reports whether anything was removed.
func (t *Technology) Unhost(id string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.endpoints[id]
	if !ok || e.gen != gen {
		return false
	}
	delete(t.endpoints, id)
	t.logger.Debug("endpoint unhosted", "endpoint", id)
	return true
}

// Lookup returns the endpoint hosted under id. Group identifiers carry
// the "g/" prefix; automation primitives answer under their plain IDs.
func (t *Technology) Lookup(id string) (endpoint.FunctionalEndpoint, bool) {
	if rest, ok := strings.CutPrefix(id, "g/"); ok {
		t.mu.RLock()
		g, ok := t.groups[rest]
		t.mu.RUnlock()
		if !ok {
			return nil, false
		}
		return g, true
	}

	t.mu.RLock()
	e, ok := t.endpoints[id]
	t.mu.RUnlock()
	if ok {
		return e.fe, true
	}

	if p, ok := t.automations.Pairing(id); ok {
		return p, true
	}
	if r, ok := t.automations.Rule(id); ok {
		return r, true
	}
	if tm, ok := t.automations.Timer(id); ok {
		return tm, true
	}
	return nil, false
}

// Resolve implements the resolver interface of the group and automation
// packages. It is Lookup under another name.
func (t *Technology) Resolve(id string) (endpoint.FunctionalEndpoint, bool) {
	return t.Lookup(id)
}

// Hosted returns the hosted endpoints sorted by identifier. Groups and
// automation primitives are not included.
func (t *Technology) Hosted() []endpoint.FunctionalEndpoint {
	t.mu.RLock()
	out := make([]endpoint.FunctionalEndpoint, 0, len(t.endpoints))
	for _, e := range t.endpoints {
		out = append(out, e.fe)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Refs describes the hosted endpoints matching the filter, for discovery
// answers.
func (t *Technology) Refs(filter transport.Filter) []transport.EndpointRef {
	if filter.Technology != "" && filter.Technology != t.name {
		return nil
	}

	var refs []transport.EndpointRef
	for _, fe := range t.Hosted() {
		traits := traitNames(fe)
		if filter.Trait != "" && !contains(traits, filter.Trait) {
			continue
		}
		refs = append(refs, transport.EndpointRef{
			ID:         fe.ID(),
			Node:       t.node,
			Technology: t.name,
			Traits:     traits,
		})
	}
	return refs
}

// traitNames enumerates the traits an endpoint carries in its state and
// config sections.
func traitNames(fe endpoint.FunctionalEndpoint) []string {
	seen := make(map[string]bool)
	for _, section := range []trait.Section{trait.SectionState, trait.SectionConfig} {
		values, err := fe.FetchSection(context.Background(), section)
		if err != nil {
			continue
		}
		for key := range values {
			parts := strings.Split(key, "/")
			if len(parts) == 3 {
				seen[parts[1]] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CreateGroup creates and registers a group resolving its members here.
// An empty ID generates one.
func (t *Technology) CreateGroup(id string) (*group.Group, error) {
	if id == "" {
		id = uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.groups[id]; ok {
		return nil, fmt.Errorf("%w: g/%s", ErrEndpointExists, id)
	}
	g := group.New(id, t)
	t.groups[id] = g
	t.logger.Info("group created", "group", g.ID())
	return g, nil
}

// Group looks up a group by its plain identifier (without the "g/"
// prefix).
func (t *Technology) Group(id string) (*group.Group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[id]
	return g, ok
}

// Groups returns the registered groups sorted by identifier.
func (t *Technology) Groups() []*group.Group {
	t.mu.RLock()
	out := make([]*group.Group, 0, len(t.groups))
	for _, g := range t.groups {
		out = append(out, g)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// DeleteGroup disbands and unregisters a group. Members are untouched.
func (t *Technology) DeleteGroup(ctx context.Context, id string) bool {
	t.mu.Lock()
	g, ok := t.groups[id]
	if ok {
		delete(t.groups, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	g.Delete(ctx)
	t.logger.Info("group deleted", "group", "g/"+id)
	return true
}

// Close tears down the automations and groups. Hosted endpoints are left
// alone; their owners delete them.
func (t *Technology) Close(ctx context.Context) {
	t.automations.Close()

	t.mu.Lock()
	groups := make([]*group.Group, 0, len(t.groups))
	for _, g := range t.groups {
		groups = append(groups, g)
	}
	t.groups = make(map[string]*group.Group)
	t.mu.Unlock()

	for _, g := range groups {
		g.Delete(ctx)
	}
}

// CopyState snapshots the technology's durable components, keyed by
// component ID, for persistence.
func (t *Technology) CopyState() map[string]any {
	groups := make(map[string]any)
	t.mu.RLock()
	snapshot := make(map[string]*group.Group, len(t.groups))
	for id, g := range t.groups {
		snapshot[id] = g
	}
	t.mu.RUnlock()
	for id, g := range snapshot {
		groups[id] = g.CopyState()
	}
	return map[string]any{
		"groups":      groups,
		"automations": t.automations.CopyState(),
	}
}

// RestoreState recreates groups and automations from a snapshot taken by
// CopyState. Restore is best-effort: components whose targets no longer
// resolve are skipped with a warning so one stale entry cannot block
// startup. Endpoints must be hosted before restoring.
func (t *Technology) RestoreState(state map[string]any) error {
	if raw, ok := state["groups"].(map[string]any); ok {
		for id, entry := range raw {
			gs, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			g, err := t.CreateGroup(id)
			if err != nil {
				t.logger.Warn("group not restored", "group", id, "error", err)
				continue
			}
			if err := g.RestoreState(gs); err != nil {
				t.logger.Warn("group restored with missing members", "group", g.ID(), "error", err)
			}
		}
	}

	if raw, ok := state["automations"].(map[string]any); ok {
		if err := t.automations.RestoreState(raw); err != nil {
			return err
		}
	}
	return nil
}
