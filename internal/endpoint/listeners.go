package endpoint

import (
	"sync"

	"github.com/weft-home/weft/internal/trait"
)

// listenerKind discriminates the three listener targets.
type listenerKind uint8

const (
	listenProperty listenerKind = iota
	listenSection
	listenChild
)

// Listener is an opaque registration handle. Remove it with the endpoint's
// RemoveListener.
type Listener struct {
	kind    listenerKind
	key     trait.PropertyKey
	section trait.Section
	traitID string
	origin  string

	propFn    PropertyListenerFunc
	sectionFn SectionListenerFunc
	childFn   ChildListenerFunc
}

// Hooks observes listener-set emptiness transitions. The remote proxy uses
// them to reference-count transport observations: the first listener for a
// key or section activates a subscription, the last removal cancels it.
type Hooks struct {
	FirstProperty func(key trait.PropertyKey)
	LastProperty  func(key trait.PropertyKey)
	FirstSection  func(section trait.Section)
	LastSection   func(section trait.Section)
}

// Listeners tracks the property, section, and child listeners of one
// endpoint and fans notifications out to them on the endpoint's Executor.
type Listeners struct {
	mu       sync.Mutex
	props    map[string][]*Listener
	sections map[trait.Section][]*Listener
	children map[string][]*Listener
	hooks    Hooks
	exec     *Executor
}

// NewListeners creates an empty listener set dispatching on exec.
func NewListeners(exec *Executor) *Listeners {
	return &Listeners{
		props:    make(map[string][]*Listener),
		sections: make(map[trait.Section][]*Listener),
		children: make(map[string][]*Listener),
		exec:     exec,
	}
}

// SetHooks installs emptiness-transition hooks. Must be called before any
// listener is registered.
func (ls *Listeners) SetHooks(h Hooks) {
	ls.mu.Lock()
	ls.hooks = h
	ls.mu.Unlock()
}

// AddProperty registers a property listener and reports whether it is the
// first for its key.
func (ls *Listeners) AddProperty(key trait.PropertyKey, fn PropertyListenerFunc, opts ...ListenOption) *Listener {
	lo := applyListenOptions(opts)
	l := &Listener{kind: listenProperty, key: key, origin: lo.Origin, propFn: fn}

	ls.mu.Lock()
	flat := key.String()
	first := len(ls.props[flat]) == 0
	ls.props[flat] = append(ls.props[flat], l)
	hook := ls.hooks.FirstProperty
	ls.mu.Unlock()

	if first && hook != nil {
		hook(key)
	}
	return l
}

// AddSection registers a section listener.
func (ls *Listeners) AddSection(section trait.Section, fn SectionListenerFunc, opts ...ListenOption) *Listener {
	lo := applyListenOptions(opts)
	l := &Listener{kind: listenSection, section: section, origin: lo.Origin, sectionFn: fn}

	ls.mu.Lock()
	first := len(ls.sections[section]) == 0
	ls.sections[section] = append(ls.sections[section], l)
	hook := ls.hooks.FirstSection
	ls.mu.Unlock()

	if first && hook != nil {
		hook(section)
	}
	return l
}

// AddChild registers a child-set listener for a trait.
func (ls *Listeners) AddChild(traitID string, fn ChildListenerFunc, opts ...ListenOption) *Listener {
	lo := applyListenOptions(opts)
	l := &Listener{kind: listenChild, traitID: traitID, origin: lo.Origin, childFn: fn}

	ls.mu.Lock()
	ls.children[traitID] = append(ls.children[traitID], l)
	ls.mu.Unlock()
	return l
}

// Remove unregisters a listener handle. Removing the last listener for a
// property key or section fires the corresponding Last hook.
func (ls *Listeners) Remove(l *Listener) {
	if l == nil {
		return
	}

	ls.mu.Lock()
	var lastHook func()
	switch l.kind {
	case listenProperty:
		flat := l.key.String()
		ls.props[flat] = removeListener(ls.props[flat], l)
		if len(ls.props[flat]) == 0 {
			delete(ls.props, flat)
			if h := ls.hooks.LastProperty; h != nil {
				key := l.key
				lastHook = func() { h(key) }
			}
		}
	case listenSection:
		ls.sections[l.section] = removeListener(ls.sections[l.section], l)
		if len(ls.sections[l.section]) == 0 {
			delete(ls.sections, l.section)
			if h := ls.hooks.LastSection; h != nil {
				section := l.section
				lastHook = func() { h(section) }
			}
		}
	case listenChild:
		ls.children[l.traitID] = removeListener(ls.children[l.traitID], l)
		if len(ls.children[l.traitID]) == 0 {
			delete(ls.children, l.traitID)
		}
	}
	ls.mu.Unlock()

	if lastHook != nil {
		lastHook()
	}
}

// PropertyCount returns the number of listeners for a key. Used by tests
// and subscription accounting.
func (ls *Listeners) PropertyCount(key trait.PropertyKey) int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.props[key.String()])
}

// NotifyProperty fans a property change out to the key's listeners and the
// key's section listeners on the executor. Listeners registered with the
// write's origin tag are skipped: a change echoing back to its own
// initiator is suppressed.
//
// sectionContents supplies the section snapshot handed to section
// listeners; it may be nil when the endpoint has no section listeners.
func (ls *Listeners) NotifyProperty(fe FunctionalEndpoint, key trait.PropertyKey, value any, origin string, sectionContents func() map[string]any) {
	ls.mu.Lock()
	propTargets := filterByOrigin(ls.props[key.String()], origin)
	sectionTargets := filterByOrigin(ls.sections[key.Section], origin)
	ls.mu.Unlock()

	if len(propTargets) == 0 && len(sectionTargets) == 0 {
		return
	}

	var contents map[string]any
	if len(sectionTargets) > 0 && sectionContents != nil {
		contents = sectionContents()
	}

	ls.exec.Do(func() {
		for _, l := range propTargets {
			l.propFn(fe, key, value)
		}
		for _, l := range sectionTargets {
			l.sectionFn(fe, key.Section, contents)
		}
	})
}

// NotifyPropertyOnly fans a property change out to the key's property
// listeners, leaving section listeners untouched. Composite endpoints that
// relay member section changes through NotifySection use this for the
// property path so a single member change is not delivered twice.
func (ls *Listeners) NotifyPropertyOnly(fe FunctionalEndpoint, key trait.PropertyKey, value any, origin string) {
	ls.mu.Lock()
	targets := filterByOrigin(ls.props[key.String()], origin)
	ls.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	ls.exec.Do(func() {
		for _, l := range targets {
			l.propFn(fe, key, value)
		}
	})
}

// NotifySection fans a whole-section replacement out to section listeners.
func (ls *Listeners) NotifySection(fe FunctionalEndpoint, section trait.Section, contents map[string]any, origin string) {
	ls.mu.Lock()
	targets := filterByOrigin(ls.sections[section], origin)
	ls.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	ls.exec.Do(func() {
		for _, l := range targets {
			l.sectionFn(fe, section, contents)
		}
	})
}

// NotifyChild fans a child addition or removal out to the trait's child
// listeners.
func (ls *Listeners) NotifyChild(fe FunctionalEndpoint, traitID string, child FunctionalEndpoint, added bool) {
	ls.mu.Lock()
	targets := append([]*Listener(nil), ls.children[traitID]...)
	ls.mu.Unlock()

	if len(targets) == 0 {
		return
	}
	ls.exec.Do(func() {
		for _, l := range targets {
			l.childFn(fe, traitID, child, added)
		}
	})
}

// HasPropertyListeners reports whether any property or section listeners
// would observe a change to key.
func (ls *Listeners) HasPropertyListeners(key trait.PropertyKey) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.props[key.String()]) > 0 || len(ls.sections[key.Section]) > 0
}

func applyListenOptions(opts []ListenOption) ListenOptions {
	var lo ListenOptions
	for _, opt := range opts {
		opt(&lo)
	}
	return lo
}

func removeListener(list []*Listener, l *Listener) []*Listener {
	for i, cand := range list {
		if cand == l {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// filterByOrigin copies the listener list, dropping listeners whose
// registered origin matches the write's origin tag.
func filterByOrigin(list []*Listener, origin string) []*Listener {
	if len(list) == 0 {
		return nil
	}
	out := make([]*Listener, 0, len(list))
	for _, l := range list {
		if origin != "" && l.origin == origin {
			continue
		}
		out = append(out, l)
	}
	return out
}
