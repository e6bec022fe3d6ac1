package group

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/trait"
)

// ErrUnacceptableMember is returned when a candidate member violates the
// membership rules: groups cannot contain other groups, and every member
// must live in the group's own registry address space.
var ErrUnacceptableMember = errors.New("group: unacceptable member")

// Registry is the slice of the owning technology a group needs: resolving
// a member identifier to a hosted endpoint. Resolution failure means the
// endpoint does not belong to this address space.
type Registry interface {
	Resolve(id string) (endpoint.FunctionalEndpoint, bool)
}

// MemberFailure records one member operation that failed during a fan-out.
type MemberFailure struct {
	ID  string
	Err error
}

// MemberError aggregates per-member failures of a fan-out. Members that
// succeeded keep their new state; the caller sees exactly which members
// did not.
type MemberError struct {
	Failures []MemberFailure
}

func (e *MemberError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ID
	}
	return fmt.Sprintf("group: %d member operation(s) failed: %s",
		len(e.Failures), strings.Join(ids, ", "))
}

// tap is one relay listener installed on a member.
type tap struct {
	member endpoint.FunctionalEndpoint
	handle *endpoint.Listener
}

// Group is a composite functional endpoint. State-section writes fan out
// to every member; reads answer from the first member; the config section
// never fans out. Members are plain endpoints of the same registry, never
// other groups.
type Group struct {
	id        string
	registry  Registry
	exec      *endpoint.Executor
	listeners *endpoint.Listeners

	mu       sync.Mutex
	members  []endpoint.FunctionalEndpoint
	propTaps map[string]map[string]tap // flat key -> member ID -> relay
	secTaps  map[trait.Section]map[string]tap
	propKeys map[string]trait.PropertyKey // observed keys, for wiring late members
	deleted  bool
}

var _ endpoint.FunctionalEndpoint = (*Group)(nil)

// New creates an empty group. id is the bare group identifier; the
// addressable endpoint ID prefixes it with "g/".
func New(id string, registry Registry) *Group {
	exec := endpoint.NewExecutor()
	g := &Group{
		id:        id,
		registry:  registry,
		exec:      exec,
		listeners: endpoint.NewListeners(exec),
		propTaps:  make(map[string]map[string]tap),
		secTaps:   make(map[trait.Section]map[string]tap),
		propKeys:  make(map[string]trait.PropertyKey),
	}
	g.listeners.SetHooks(endpoint.Hooks{
		FirstProperty: g.wirePropertyTaps,
		LastProperty:  g.dropPropertyTaps,
		FirstSection:  g.wireSectionTaps,
		LastSection:   g.dropSectionTaps,
	})
	return g
}

// ID returns the group's addressable identifier.
func (g *Group) ID() string { return "g/" + g.id }

// ─── Membership ──────────────────────────────────────────────────────────────

// AddMember adds an endpoint to the group. Adding an endpoint that is
// already a member is a no-op. Groups are rejected as members, as is any
// endpoint the registry cannot resolve.
func (g *Group) AddMember(fe endpoint.FunctionalEndpoint) error {
	if _, isGroup := fe.(*Group); isGroup || strings.HasPrefix(fe.ID(), "g/") {
		return fmt.Errorf("%w: %s is a group", ErrUnacceptableMember, fe.ID())
	}
	if g.registry != nil {
		if _, ok := g.registry.Resolve(fe.ID()); !ok {
			return fmt.Errorf("%w: %s is not hosted by this registry", ErrUnacceptableMember, fe.ID())
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleted {
		return endpoint.ErrDeleted
	}
	for _, m := range g.members {
		if m.ID() == fe.ID() {
			return nil
		}
	}
	g.members = append(g.members, fe)

	// Late members join the active relays.
	for flat, key := range g.propKeys {
		g.propTaps[flat][fe.ID()] = g.newPropertyTap(fe, key)
	}
	for section, taps := range g.secTaps {
		taps[fe.ID()] = g.newSectionTap(fe, section)
	}
	return nil
}

// RemoveMember removes a member by endpoint ID and reports whether it was
// present.
func (g *Group) RemoveMember(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, m := range g.members {
		if m.ID() == id {
			g.members = append(g.members[:i:i], g.members[i+1:]...)
			for _, taps := range g.propTaps {
				if t, ok := taps[id]; ok {
					t.member.RemoveListener(t.handle)
					delete(taps, id)
				}
			}
			for _, taps := range g.secTaps {
				if t, ok := taps[id]; ok {
					t.member.RemoveListener(t.handle)
					delete(taps, id)
				}
			}
			return true
		}
	}
	return false
}

// Members returns the members in insertion order.
func (g *Group) Members() []endpoint.FunctionalEndpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]endpoint.FunctionalEndpoint(nil), g.members...)
}

// snapshot returns the member list for a fan-out or read.
func (g *Group) snapshot() []endpoint.FunctionalEndpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]endpoint.FunctionalEndpoint(nil), g.members...)
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Fetch reads a property from the first member. Members may disagree on
// state values; the first member's answer is the group's, deterministically.
func (g *Group) Fetch(ctx context.Context, key trait.PropertyKey) (any, error) {
	members := g.snapshot()
	if len(members) == 0 {
		return nil, endpoint.ErrPropertyNotFound
	}
	return members[0].Fetch(ctx, key)
}

// CachedProperty answers from the first member's cache.
func (g *Group) CachedProperty(key trait.PropertyKey) (any, bool) {
	members := g.snapshot()
	if len(members) == 0 {
		return nil, false
	}
	return members[0].CachedProperty(key)
}

// FetchSection reads a section from the first member.
func (g *Group) FetchSection(ctx context.Context, section trait.Section) (map[string]any, error) {
	members := g.snapshot()
	if len(members) == 0 {
		return nil, endpoint.ErrPropertyNotFound
	}
	return members[0].FetchSection(ctx, section)
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// fanOut runs op against every member concurrently and waits for all of
// them. Failures are collected into a MemberError sorted by member ID;
// members that succeeded keep their new state. Cancelling ctx cancels the
// in-flight member operations, but the fan-out still waits for each one to
// settle before returning.
func (g *Group) fanOut(ctx context.Context, op func(ctx context.Context, m endpoint.FunctionalEndpoint) error) error {
	members := g.snapshot()
	if len(members) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []MemberFailure
	for _, m := range members {
		wg.Add(1)
		go func(m endpoint.FunctionalEndpoint) {
			defer wg.Done()
			if err := op(ctx, m); err != nil {
				mu.Lock()
				failures = append(failures, MemberFailure{ID: m.ID(), Err: err})
				mu.Unlock()
			}
		}(m)
	}
	wg.Wait()

	if len(failures) == 0 {
		return nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
	return &MemberError{Failures: failures}
}

// stateOnly gates write fan-out to the state section. Config stays
// per-member and metadata is immutable through the group.
func stateOnly(key trait.PropertyKey) error {
	if key.Section != trait.SectionState {
		return endpoint.ErrInvalidOperation
	}
	return nil
}

// Set writes a state property on every member.
func (g *Group) Set(ctx context.Context, key trait.PropertyKey, value any, opts ...endpoint.Option) error {
	if err := stateOnly(key); err != nil {
		return err
	}
	return g.fanOut(ctx, func(ctx context.Context, m endpoint.FunctionalEndpoint) error {
		return m.Set(ctx, key, value, opts...)
	})
}

// Increment adds delta to a numeric state property on every member.
func (g *Group) Increment(ctx context.Context, key trait.PropertyKey, delta any, opts ...endpoint.Option) error {
	if err := stateOnly(key); err != nil {
		return err
	}
	return g.fanOut(ctx, func(ctx context.Context, m endpoint.FunctionalEndpoint) error {
		return m.Increment(ctx, key, delta, opts...)
	})
}

// Toggle inverts a boolean state property on every member. Members that
// disagree before the toggle still disagree after it; Toggle inverts each
// member's own value rather than forcing a common one.
func (g *Group) Toggle(ctx context.Context, key trait.PropertyKey, opts ...endpoint.Option) error {
	if err := stateOnly(key); err != nil {
		return err
	}
	return g.fanOut(ctx, func(ctx context.Context, m endpoint.FunctionalEndpoint) error {
		return m.Toggle(ctx, key, opts...)
	})
}

// Insert appends a value to an array state property on every member.
func (g *Group) Insert(ctx context.Context, key trait.PropertyKey, value any, opts ...endpoint.Option) error {
	if err := stateOnly(key); err != nil {
		return err
	}
	return g.fanOut(ctx, func(ctx context.Context, m endpoint.FunctionalEndpoint) error {
		return m.Insert(ctx, key, value, opts...)
	})
}

// Remove deletes a value from an array state property on every member.
func (g *Group) Remove(ctx context.Context, key trait.PropertyKey, value any, opts ...endpoint.Option) error {
	if err := stateOnly(key); err != nil {
		return err
	}
	return g.fanOut(ctx, func(ctx context.Context, m endpoint.FunctionalEndpoint) error {
		return m.Remove(ctx, key, value, opts...)
	})
}

// ApplyProperties writes a batch of state properties on every member. Each
// member receives the whole batch; a member fails the fan-out if any of
// its writes fails.
func (g *Group) ApplyProperties(ctx context.Context, values map[trait.PropertyKey]any, opts ...endpoint.Option) error {
	for key := range values {
		if err := stateOnly(key); err != nil {
			return err
		}
	}
	return g.fanOut(ctx, func(ctx context.Context, m endpoint.FunctionalEndpoint) error {
		for key, value := range values {
			if err := m.Set(ctx, key, value, opts...); err != nil {
				return err
			}
		}
		return nil
	})
}

// Invoke delegates a method call to the first member. Method fan-out is
// not defined for groups; only state-section property writes fan out.
func (g *Group) Invoke(ctx context.Context, method trait.MethodKey, args map[string]any) (endpoint.InvokeResult, error) {
	members := g.snapshot()
	if len(members) == 0 {
		return endpoint.InvokeResult{}, endpoint.ErrMethodNotFound
	}
	return members[0].Invoke(ctx, method, args)
}

// ─── Children ────────────────────────────────────────────────────────────────

// Child reports no children: groups do not aggregate member children.
func (g *Group) Child(string, string) (endpoint.FunctionalEndpoint, bool) { return nil, false }

// Children reports no children.
func (g *Group) Children(string) []endpoint.FunctionalEndpoint { return nil }

// Parent returns nil.
func (g *Group) Parent() endpoint.FunctionalEndpoint { return nil }

// ─── Listeners ───────────────────────────────────────────────────────────────

// AddPropertyListener subscribes to a property across all members. The
// first listener for a key installs a relay on every member; changes on
// any member surface as group notifications.
func (g *Group) AddPropertyListener(key trait.PropertyKey, fn endpoint.PropertyListenerFunc, opts ...endpoint.ListenOption) *endpoint.Listener {
	return g.listeners.AddProperty(key, fn, opts...)
}

// AddSectionListener subscribes to a section across all members.
func (g *Group) AddSectionListener(section trait.Section, fn endpoint.SectionListenerFunc, opts ...endpoint.ListenOption) *endpoint.Listener {
	return g.listeners.AddSection(section, fn, opts...)
}

// AddChildListener registers a child listener. Groups never notify it.
func (g *Group) AddChildListener(traitID string, fn endpoint.ChildListenerFunc, opts ...endpoint.ListenOption) *endpoint.Listener {
	return g.listeners.AddChild(traitID, fn, opts...)
}

// RemoveListener unregisters a listener. Removing the last listener for a
// key or section removes the member relays.
func (g *Group) RemoveListener(l *endpoint.Listener) {
	g.listeners.Remove(l)
}

func (g *Group) newPropertyTap(m endpoint.FunctionalEndpoint, key trait.PropertyKey) tap {
	handle := m.AddPropertyListener(key, func(_ endpoint.FunctionalEndpoint, key trait.PropertyKey, value any) {
		g.listeners.NotifyPropertyOnly(g, key, value, "")
	})
	return tap{member: m, handle: handle}
}

func (g *Group) newSectionTap(m endpoint.FunctionalEndpoint, section trait.Section) tap {
	handle := m.AddSectionListener(section, func(_ endpoint.FunctionalEndpoint, section trait.Section, contents map[string]any) {
		g.listeners.NotifySection(g, section, contents, "")
	})
	return tap{member: m, handle: handle}
}

func (g *Group) wirePropertyTaps(key trait.PropertyKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleted {
		return
	}
	flat := key.String()
	g.propKeys[flat] = key
	taps := make(map[string]tap, len(g.members))
	for _, m := range g.members {
		taps[m.ID()] = g.newPropertyTap(m, key)
	}
	g.propTaps[flat] = taps
}

func (g *Group) dropPropertyTaps(key trait.PropertyKey) {
	flat := key.String()
	g.mu.Lock()
	taps := g.propTaps[flat]
	delete(g.propTaps, flat)
	delete(g.propKeys, flat)
	g.mu.Unlock()

	for _, t := range taps {
		t.member.RemoveListener(t.handle)
	}
}

func (g *Group) wireSectionTaps(section trait.Section) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleted {
		return
	}
	taps := make(map[string]tap, len(g.members))
	for _, m := range g.members {
		taps[m.ID()] = g.newSectionTap(m, section)
	}
	g.secTaps[section] = taps
}

func (g *Group) dropSectionTaps(section trait.Section) {
	g.mu.Lock()
	taps := g.secTaps[section]
	delete(g.secTaps, section)
	g.mu.Unlock()

	for _, t := range taps {
		t.member.RemoveListener(t.handle)
	}
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Delete disbands the group. Members are untouched; only the composite and
// its relays go away.
func (g *Group) Delete(_ context.Context) (bool, error) {
	g.mu.Lock()
	if g.deleted {
		g.mu.Unlock()
		return false, nil
	}
	g.deleted = true
	var taps []tap
	for _, byMember := range g.propTaps {
		for _, t := range byMember {
			taps = append(taps, t)
		}
	}
	for _, byMember := range g.secTaps {
		for _, t := range byMember {
			taps = append(taps, t)
		}
	}
	g.propTaps = make(map[string]map[string]tap)
	g.secTaps = make(map[trait.Section]map[string]tap)
	g.propKeys = make(map[string]trait.PropertyKey)
	g.members = nil
	g.mu.Unlock()

	for _, t := range taps {
		t.member.RemoveListener(t.handle)
	}
	g.exec.Close()
	return true, nil
}

// ─── Persistence ─────────────────────────────────────────────────────────────

// CopyState snapshots the membership for persistence.
func (g *Group) CopyState() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]any, len(g.members))
	for i, m := range g.members {
		ids[i] = m.ID()
	}
	return map[string]any{"members": ids}
}

// RestoreState re-adds members by identifier, resolving each through the
// registry. Members that no longer resolve are skipped and reported.
func (g *Group) RestoreState(state map[string]any) error {
	raw, _ := state["members"].([]any)
	var errs []error
	for _, entry := range raw {
		id, ok := entry.(string)
		if !ok {
			errs = append(errs, fmt.Errorf("group: malformed member entry %v", entry))
			continue
		}
		if g.registry == nil {
			errs = append(errs, fmt.Errorf("group: no registry to resolve %s", id))
			continue
		}
		fe, ok := g.registry.Resolve(id)
		if !ok {
			errs = append(errs, fmt.Errorf("group: member %s no longer hosted", id))
			continue
		}
		if err := g.AddMember(fe); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
