package endpoint

import (
	"context"
	"time"

	"github.com/weft-home/weft/internal/trait"
)

// FunctionalEndpoint is the capability contract shared by every endpoint
// variant: local endpoints, remote proxies, groups, and automation
// primitives. Both local and remote variants satisfy the identical
// contract; callers cannot distinguish them except by latency and failure
// modes.
type FunctionalEndpoint interface {
	// ID returns the endpoint's identifier within its technology.
	ID() string

	// Fetch reads the authoritative value of a property. For remote
	// endpoints this always issues a real request; use CachedProperty for
	// cheap last-known reads.
	Fetch(ctx context.Context, key trait.PropertyKey) (any, error)

	// CachedProperty returns the last-known value of a property without
	// touching the network. The bool is false when no value is cached.
	CachedProperty(key trait.PropertyKey) (any, bool)

	// Set writes a property value. The value is coerced to the key's
	// declared type before it is applied.
	Set(ctx context.Context, key trait.PropertyKey, value any, opts ...Option) error

	// Increment adds delta to a numeric property.
	Increment(ctx context.Context, key trait.PropertyKey, delta any, opts ...Option) error

	// Toggle inverts a boolean property.
	Toggle(ctx context.Context, key trait.PropertyKey, opts ...Option) error

	// Insert appends a value to an array property.
	Insert(ctx context.Context, key trait.PropertyKey, value any, opts ...Option) error

	// Remove deletes the first matching value from an array property.
	Remove(ctx context.Context, key trait.PropertyKey, value any, opts ...Option) error

	// Invoke calls a named method. The result is a plain value or, for
	// methods that create or update children, a child endpoint reference.
	Invoke(ctx context.Context, method trait.MethodKey, args map[string]any) (InvokeResult, error)

	// FetchSection reads an entire section as a flat map keyed by
	// "section/trait/property".
	FetchSection(ctx context.Context, section trait.Section) (map[string]any, error)

	// Child looks up a child endpoint by trait and child ID.
	Child(traitID, childID string) (FunctionalEndpoint, bool)

	// Children returns the child endpoints of a trait.
	Children(traitID string) []FunctionalEndpoint

	// Parent returns the parent endpoint, or nil for a root endpoint. The
	// reference is lookup-only; children never own their parents.
	Parent() FunctionalEndpoint

	// AddPropertyListener subscribes to changes of one property. The first
	// listener for a key activates the underlying subscription (for remote
	// endpoints, a transport observation); removing the last one tears it
	// down.
	AddPropertyListener(key trait.PropertyKey, fn PropertyListenerFunc, opts ...ListenOption) *Listener

	// AddSectionListener subscribes to changes anywhere in a section.
	AddSectionListener(section trait.Section, fn SectionListenerFunc, opts ...ListenOption) *Listener

	// AddChildListener subscribes to child additions and removals on a
	// trait.
	AddChildListener(traitID string, fn ChildListenerFunc, opts ...ListenOption) *Listener

	// RemoveListener unregisters a listener handle returned by one of the
	// Add*Listener methods.
	RemoveListener(l *Listener)

	// Delete removes the endpoint. The bool reports whether the endpoint
	// existed and was removed.
	Delete(ctx context.Context) (bool, error)
}

// InvokeResult is the sum-type result of a method invocation: a plain value
// or a child endpoint reference for methods that create or update children.
type InvokeResult struct {
	Value any
	Child FunctionalEndpoint
}

// PropertyListenerFunc receives property change notifications.
type PropertyListenerFunc func(fe FunctionalEndpoint, key trait.PropertyKey, value any)

// SectionListenerFunc receives section change notifications with the
// section's updated flat contents.
type SectionListenerFunc func(fe FunctionalEndpoint, section trait.Section, contents map[string]any)

// ChildListenerFunc receives child-set change notifications.
type ChildListenerFunc func(fe FunctionalEndpoint, traitID string, child FunctionalEndpoint, added bool)

// WriteOptions carries write modifiers. On the wire these travel as
// query-string markers appended to the property path, not as distinct
// endpoints.
type WriteOptions struct {
	// Duration is a transition-duration hint: apply the change smoothly
	// over this duration instead of instantly. Zero means instant, and
	// writing zero while a transition is running cancels it and jumps to
	// the target.
	Duration time.Duration

	// Origin tags the write with the identity of its initiator so that
	// echo notifications back to the initiator can be suppressed.
	Origin string
}

// Option mutates WriteOptions.
type Option func(*WriteOptions)

// WithDuration requests a smooth transition over d.
func WithDuration(d time.Duration) Option {
	return func(o *WriteOptions) { o.Duration = d }
}

// WithOrigin tags the write with the initiator's identity.
func WithOrigin(origin string) Option {
	return func(o *WriteOptions) { o.Origin = origin }
}

// ApplyOptions folds a list of options into a WriteOptions value.
func ApplyOptions(opts []Option) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ListenOptions carries listener registration settings.
type ListenOptions struct {
	// Origin suppresses events whose originating write carries the same
	// tag. A pairing registers its listener and tags its writes with the
	// same origin so its own writes never echo back into it.
	Origin string
}

// ListenOption mutates ListenOptions.
type ListenOption func(*ListenOptions)

// ListenOrigin suppresses events originated by the given tag.
func ListenOrigin(origin string) ListenOption {
	return func(o *ListenOptions) { o.Origin = origin }
}
