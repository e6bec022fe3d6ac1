package endpoint

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/weft-home/weft/internal/trait"
)

// Logger defines the logging interface used by the endpoint runtime.
// This allows different logging implementations to be used.
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

// TraitImpl supplies the behaviour of one trait on a local endpoint:
// getters and setters for its properties and handlers for its methods.
// Implementations are registered at endpoint construction and dispatched by
// trait ID; an implementation is responsible for calling the host's
// NotifyChanged when its internal state changes outside a Set call.
type TraitImpl interface {
	// TraitID returns the trait identifier this implementation serves.
	TraitID() string

	// Properties returns every property key the trait exposes.
	Properties() []trait.PropertyKey

	// Get reads a property's current value.
	Get(key trait.PropertyKey) (any, error)

	// Set writes a property value. The value has already been coerced to
	// the key's declared type.
	Set(key trait.PropertyKey, value any) error

	// Invoke calls a named method on the trait.
	Invoke(ctx context.Context, method trait.MethodKey, args map[string]any) (InvokeResult, error)
}

// Local is the in-process functional endpoint runtime. It owns canonical
// property state through its registered trait implementations and fans
// change notifications out to listeners on a serial executor.
type Local struct {
	id        string
	traits    map[string]TraitImpl
	propIndex map[string]TraitImpl // flat key -> owning trait impl
	propKeys  map[string]trait.PropertyKey
	listeners *Listeners
	exec      *Executor
	logger    Logger

	// writeMu serializes property mutations so read-modify-write
	// operations (increment, toggle, array insert/remove) cannot lose
	// updates under concurrent writers.
	writeMu sync.Mutex

	mu          sync.Mutex
	parent      FunctionalEndpoint
	children    map[string]map[string]FunctionalEndpoint // trait ID -> child ID -> child
	transitions map[string]*transition
	deleted     bool
	onDelete    func()
}

var _ FunctionalEndpoint = (*Local)(nil)

// NewLocal creates a local endpoint composing the given trait
// implementations. The trait table is built once here; traits cannot be
// added later.
func NewLocal(id string, impls ...TraitImpl) *Local {
	exec := NewExecutor()
	l := &Local{
		id:          id,
		traits:      make(map[string]TraitImpl, len(impls)),
		propIndex:   make(map[string]TraitImpl),
		propKeys:    make(map[string]trait.PropertyKey),
		exec:        exec,
		listeners:   NewListeners(exec),
		logger:      noopLogger{},
		children:    make(map[string]map[string]FunctionalEndpoint),
		transitions: make(map[string]*transition),
	}
	for _, impl := range impls {
		l.traits[impl.TraitID()] = impl
		for _, key := range impl.Properties() {
			flat := key.String()
			l.propIndex[flat] = impl
			l.propKeys[flat] = key
		}
		if att, ok := impl.(interface{ Attach(*Local) }); ok {
			att.Attach(l)
		}
	}
	return l
}

// SetLogger sets the logger for the endpoint.
func (l *Local) SetLogger(logger Logger) {
	l.logger = logger
}

// SetOnDelete installs the hook run when the endpoint is deleted. The
// owning technology uses it to unhost the endpoint.
func (l *Local) SetOnDelete(fn func()) {
	l.mu.Lock()
	l.onDelete = fn
	l.mu.Unlock()
}

// ID returns the endpoint identifier.
func (l *Local) ID() string { return l.id }

// Executor returns the endpoint's serial executor.
func (l *Local) Executor() *Executor { return l.exec }

// Listeners exposes the listener set. Intended for composition by other
// endpoint variants, not for general use.
func (l *Local) Listeners() *Listeners { return l.listeners }

// Fetch reads a property's current value from its trait implementation.
// A deleted endpoint refuses reads the same way it refuses writes.
func (l *Local) Fetch(_ context.Context, key trait.PropertyKey) (any, error) {
	if err := l.checkAlive(); err != nil {
		return nil, err
	}
	impl, ok := l.propIndex[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, key)
	}
	return impl.Get(key)
}

// CachedProperty returns the property's current value. A local endpoint is
// its own cache, so this is Fetch without the error surface.
func (l *Local) CachedProperty(key trait.PropertyKey) (any, bool) {
	if l.checkAlive() != nil {
		return nil, false
	}
	impl, ok := l.propIndex[key.String()]
	if !ok {
		return nil, false
	}
	v, err := impl.Get(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set writes a property value. A non-zero duration option turns the write
// into a smooth transition for float properties; writing with duration
// zero while a transition is running cancels it and jumps to the target.
func (l *Local) Set(ctx context.Context, key trait.PropertyKey, value any, opts ...Option) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.set(ctx, key, value, opts)
}

// set is Set without the write lock, for read-modify-write operations
// that already hold it.
func (l *Local) set(_ context.Context, key trait.PropertyKey, value any, opts []Option) error {
	key = l.canonicalKey(key)
	o := ApplyOptions(opts)
	impl, ok := l.propIndex[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, key)
	}
	if err := l.checkAlive(); err != nil {
		return err
	}

	coerced, err := key.Coerce(value)
	if err != nil {
		return err
	}

	if o.Duration > 0 && key.Type == trait.TypeFloat {
		if from, ok := currentFloat(impl, key); ok {
			l.startTransition(impl, key, from, coerced.(float64), o.Duration, o.Origin)
			return nil
		}
	}

	l.cancelTransition(key)
	return l.applyAndNotify(impl, key, coerced, o.Origin)
}

// Increment adds delta to a numeric property.
func (l *Local) Increment(ctx context.Context, key trait.PropertyKey, delta any, opts ...Option) error {
	key = l.canonicalKey(key)
	if key.Type != trait.TypeFloat && key.Type != trait.TypeInt {
		return fmt.Errorf("%w: increment on %s", ErrInvalidOperation, key)
	}
	impl, ok := l.propIndex[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, key)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	cur, err := impl.Get(key)
	if err != nil {
		return err
	}

	d, err := key.Coerce(delta)
	if err != nil {
		return err
	}
	var next any
	switch key.Type {
	case trait.TypeFloat:
		c, _ := cur.(float64)
		next = c + d.(float64)
	case trait.TypeInt:
		c, _ := cur.(int64)
		next = c + d.(int64)
	}
	return l.set(ctx, key, next, opts)
}

// Toggle inverts a boolean property.
func (l *Local) Toggle(ctx context.Context, key trait.PropertyKey, opts ...Option) error {
	key = l.canonicalKey(key)
	if key.Type != trait.TypeBool {
		return fmt.Errorf("%w: toggle on %s", ErrInvalidOperation, key)
	}
	impl, ok := l.propIndex[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, key)
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	cur, err := impl.Get(key)
	if err != nil {
		return err
	}
	b, _ := cur.(bool)
	return l.set(ctx, key, !b, opts)
}

// Insert appends a value to an array property. Inserting a value that is
// already present is a no-op, so insert/remove pairs manage set-like
// membership lists.
func (l *Local) Insert(ctx context.Context, key trait.PropertyKey, value any, opts ...Option) error {
	return l.mutateArray(ctx, key, value, true, opts)
}

// Remove deletes the first matching value from an array property. Removing
// an absent value is a no-op.
func (l *Local) Remove(ctx context.Context, key trait.PropertyKey, value any, opts ...Option) error {
	return l.mutateArray(ctx, key, value, false, opts)
}

func (l *Local) mutateArray(ctx context.Context, key trait.PropertyKey, value any, insert bool, opts []Option) error {
	key = l.canonicalKey(key)
	if key.Type != trait.TypeArray {
		return fmt.Errorf("%w: array mutation on %s", ErrInvalidOperation, key)
	}
	impl, ok := l.propIndex[key.String()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPropertyNotFound, key)
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	cur, err := impl.Get(key)
	if err != nil {
		return err
	}
	arr, _ := cur.([]any)

	next, changed := mutateArrayValue(arr, value, insert)
	if !changed {
		return nil
	}
	return l.set(ctx, key, next, opts)
}

// mutateArrayValue returns a copy of arr with value inserted or removed and
// reports whether anything changed.
func mutateArrayValue(arr []any, value any, insert bool) ([]any, bool) {
	idx := -1
	for i, v := range arr {
		if reflect.DeepEqual(v, value) {
			idx = i
			break
		}
	}
	if insert {
		if idx >= 0 {
			return nil, false
		}
		out := make([]any, len(arr), len(arr)+1)
		copy(out, arr)
		return append(out, value), true
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]any, 0, len(arr)-1)
	out = append(out, arr[:idx]...)
	return append(out, arr[idx+1:]...), true
}

// Invoke calls a named method on the owning trait.
func (l *Local) Invoke(ctx context.Context, method trait.MethodKey, args map[string]any) (InvokeResult, error) {
	impl, ok := l.traits[method.Trait]
	if !ok {
		return InvokeResult{}, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	if err := l.checkAlive(); err != nil {
		return InvokeResult{}, err
	}
	return impl.Invoke(ctx, method, args)
}

// FetchSection reads every property in a section as a flat map.
func (l *Local) FetchSection(_ context.Context, section trait.Section) (map[string]any, error) {
	return l.sectionSnapshot(section), nil
}

func (l *Local) sectionSnapshot(section trait.Section) map[string]any {
	out := make(map[string]any)
	for flat, key := range l.propKeys {
		if key.Section != section {
			continue
		}
		if v, err := l.propIndex[flat].Get(key); err == nil {
			out[flat] = v
		}
	}
	return out
}

// ─── Children ───────────────────────────────────────────────────────────────

// AdoptChild registers a child endpoint under a trait and notifies child
// listeners. If the child is itself a Local, its parent back-reference is
// set to this endpoint.
func (l *Local) AdoptChild(traitID, childID string, child FunctionalEndpoint) {
	l.mu.Lock()
	if l.children[traitID] == nil {
		l.children[traitID] = make(map[string]FunctionalEndpoint)
	}
	l.children[traitID][childID] = child
	l.mu.Unlock()

	if lc, ok := child.(*Local); ok {
		lc.setParent(l)
	}
	l.listeners.NotifyChild(l, traitID, child, true)
}

// AbandonChild removes a child endpoint and notifies child listeners.
func (l *Local) AbandonChild(traitID, childID string) (FunctionalEndpoint, bool) {
	l.mu.Lock()
	child, ok := l.children[traitID][childID]
	if ok {
		delete(l.children[traitID], childID)
	}
	l.mu.Unlock()

	if ok {
		l.listeners.NotifyChild(l, traitID, child, false)
	}
	return child, ok
}

// Child looks up a child endpoint by trait and child ID.
func (l *Local) Child(traitID, childID string) (FunctionalEndpoint, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	child, ok := l.children[traitID][childID]
	return child, ok
}

// Children returns the child endpoints registered under a trait.
func (l *Local) Children(traitID string) []FunctionalEndpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FunctionalEndpoint, 0, len(l.children[traitID]))
	for _, c := range l.children[traitID] {
		out = append(out, c)
	}
	return out
}

// Parent returns the parent endpoint, or nil for a root endpoint.
func (l *Local) Parent() FunctionalEndpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.parent
}

func (l *Local) setParent(p FunctionalEndpoint) {
	l.mu.Lock()
	l.parent = p
	l.mu.Unlock()
}

// ─── Listeners ──────────────────────────────────────────────────────────────

// AddPropertyListener subscribes to changes of one property.
func (l *Local) AddPropertyListener(key trait.PropertyKey, fn PropertyListenerFunc, opts ...ListenOption) *Listener {
	return l.listeners.AddProperty(key, fn, opts...)
}

// AddSectionListener subscribes to changes anywhere in a section.
func (l *Local) AddSectionListener(section trait.Section, fn SectionListenerFunc, opts ...ListenOption) *Listener {
	return l.listeners.AddSection(section, fn, opts...)
}

// AddChildListener subscribes to child-set changes on a trait.
func (l *Local) AddChildListener(traitID string, fn ChildListenerFunc, opts ...ListenOption) *Listener {
	return l.listeners.AddChild(traitID, fn, opts...)
}

// RemoveListener unregisters a listener handle.
func (l *Local) RemoveListener(lst *Listener) {
	l.listeners.Remove(lst)
}

// NotifyChanged fans out a property change that happened inside a trait
// implementation (an internal state transition rather than a Set call).
func (l *Local) NotifyChanged(key trait.PropertyKey, value any, origin string) {
	l.notify(key, value, origin)
}

// Delete removes the endpoint: transitions are cancelled, the owning
// registry's unhost hook runs, and the executor drains.
func (l *Local) Delete(_ context.Context) (bool, error) {
	l.mu.Lock()
	if l.deleted {
		l.mu.Unlock()
		return false, nil
	}
	l.deleted = true
	onDelete := l.onDelete
	pending := make([]*transition, 0, len(l.transitions))
	for _, tr := range l.transitions {
		pending = append(pending, tr)
	}
	l.transitions = make(map[string]*transition)
	l.mu.Unlock()

	for _, tr := range pending {
		tr.stop()
	}
	if onDelete != nil {
		onDelete()
	}
	l.exec.Close()
	return true, nil
}

// canonicalKey replaces a caller-supplied key with the declared one, so
// writes arriving over the wire, where the declared type is not known to
// the sender, coerce against the right type.
func (l *Local) canonicalKey(key trait.PropertyKey) trait.PropertyKey {
	if ck, ok := l.propKeys[key.String()]; ok {
		return ck
	}
	return key
}

func (l *Local) checkAlive() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deleted {
		return ErrDeleted
	}
	return nil
}

// applyAndNotify writes through the trait implementation and fans out if
// the value actually changed. No value change means no listener fire.
func (l *Local) applyAndNotify(impl TraitImpl, key trait.PropertyKey, value any, origin string) error {
	old, getErr := impl.Get(key)
	if err := impl.Set(key, value); err != nil {
		return err
	}
	if getErr == nil && reflect.DeepEqual(old, value) {
		return nil
	}
	l.notify(key, value, origin)
	return nil
}

func (l *Local) notify(key trait.PropertyKey, value any, origin string) {
	l.listeners.NotifyProperty(l, key, value, origin, func() map[string]any {
		return l.sectionSnapshot(key.Section)
	})
}

func currentFloat(impl TraitImpl, key trait.PropertyKey) (float64, bool) {
	v, err := impl.Get(key)
	if err != nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
