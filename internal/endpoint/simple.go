package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/weft-home/weft/internal/trait"
)

// MethodFunc handles one method invocation on a SimpleTrait.
type MethodFunc func(ctx context.Context, args map[string]any) (InvokeResult, error)

// SimpleTrait is a value-backed TraitImpl: a thread-safe property bag with
// optional read-only keys, a set hook, and registered method handlers. It
// serves plain device traits, automation primitives' configuration
// surfaces, and test fixtures.
type SimpleTrait struct {
	id   string
	keys []trait.PropertyKey

	mu       sync.RWMutex
	values   map[string]any
	readOnly map[string]bool
	methods  map[string]MethodFunc
	onSet    func(key trait.PropertyKey, value any) error
}

var _ TraitImpl = (*SimpleTrait)(nil)

// NewSimpleTrait creates a trait implementation exposing the given keys,
// all initially nil and writable.
func NewSimpleTrait(traitID string, keys ...trait.PropertyKey) *SimpleTrait {
	return &SimpleTrait{
		id:       traitID,
		keys:     keys,
		values:   make(map[string]any, len(keys)),
		readOnly: make(map[string]bool),
		methods:  make(map[string]MethodFunc),
	}
}

// Init sets an initial value without running the set hook. For use during
// construction and state restore.
func (t *SimpleTrait) Init(key trait.PropertyKey, value any) *SimpleTrait {
	t.mu.Lock()
	t.values[key.String()] = value
	t.mu.Unlock()
	return t
}

// MarkReadOnly makes the given keys reject writes with ErrPropertyReadOnly.
func (t *SimpleTrait) MarkReadOnly(keys ...trait.PropertyKey) *SimpleTrait {
	t.mu.Lock()
	for _, k := range keys {
		t.readOnly[k.String()] = true
	}
	t.mu.Unlock()
	return t
}

// DefineMethod registers a handler for a method name.
func (t *SimpleTrait) DefineMethod(name string, fn MethodFunc) *SimpleTrait {
	t.mu.Lock()
	t.methods[name] = fn
	t.mu.Unlock()
	return t
}

// OnSet installs a hook run after every accepted write. A non-nil error
// from the hook rejects the write and rolls the value back.
func (t *SimpleTrait) OnSet(fn func(key trait.PropertyKey, value any) error) *SimpleTrait {
	t.mu.Lock()
	t.onSet = fn
	t.mu.Unlock()
	return t
}

// TraitID returns the trait identifier.
func (t *SimpleTrait) TraitID() string { return t.id }

// Properties returns the trait's property keys.
func (t *SimpleTrait) Properties() []trait.PropertyKey {
	return t.keys
}

// Get reads a property's current value.
func (t *SimpleTrait) Get(key trait.PropertyKey) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[key.String()], nil
}

// Set writes a property value, honouring read-only marks and the set hook.
func (t *SimpleTrait) Set(key trait.PropertyKey, value any) error {
	flat := key.String()

	t.mu.Lock()
	if t.readOnly[flat] {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPropertyReadOnly, key)
	}
	old, hadOld := t.values[flat]
	t.values[flat] = value
	hook := t.onSet
	t.mu.Unlock()

	if hook != nil {
		if err := hook(key, value); err != nil {
			t.mu.Lock()
			if hadOld {
				t.values[flat] = old
			} else {
				delete(t.values, flat)
			}
			t.mu.Unlock()
			return err
		}
	}
	return nil
}

// SilentSet writes a value bypassing read-only marks and the hook. For
// internal state the trait owner updates itself (fire counters, status).
func (t *SimpleTrait) SilentSet(key trait.PropertyKey, value any) {
	t.mu.Lock()
	t.values[key.String()] = value
	t.mu.Unlock()
}

// Invoke dispatches to a registered method handler.
func (t *SimpleTrait) Invoke(ctx context.Context, method trait.MethodKey, args map[string]any) (InvokeResult, error) {
	t.mu.RLock()
	fn, ok := t.methods[method.Name]
	t.mu.RUnlock()
	if !ok {
		return InvokeResult{}, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	return fn(ctx, args)
}
