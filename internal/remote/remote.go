package remote

import (
	"context"
	"fmt"
	"sync"

	"github.com/weft-home/weft/internal/codec"
	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/protocol"
	"github.com/weft-home/weft/internal/trait"
	"github.com/weft-home/weft/internal/transport"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// obsState is one live transport observation shared by every listener
// of its key or section.
type obsState struct {
	obs *transport.Observation
	seq uint64 // highest sequence applied
}

// Endpoint is a functional endpoint proxied over a transport.
type Endpoint struct {
	id        string
	conn      transport.Conn
	format    codec.Format
	exec      *endpoint.Executor
	listeners *endpoint.Listeners
	logger    Logger

	mu       sync.Mutex
	cache    map[trait.Section]map[string]any
	propObs  map[string]*obsState
	secObs   map[trait.Section]*obsState
	children map[string]map[string]endpoint.FunctionalEndpoint
	deleted  bool
}

var _ endpoint.FunctionalEndpoint = (*Endpoint)(nil)

// New creates a proxy for the endpoint hosted under id, reachable over
// conn. All requests use the given wire format.
func New(id string, conn transport.Conn, format codec.Format) *Endpoint {
	exec := endpoint.NewExecutor()
	e := &Endpoint{
		id:        id,
		conn:      conn,
		format:    format,
		exec:      exec,
		listeners: endpoint.NewListeners(exec),
		logger:    noopLogger{},
		cache:     make(map[trait.Section]map[string]any),
		propObs:   make(map[string]*obsState),
		secObs:    make(map[trait.Section]*obsState),
		children:  make(map[string]map[string]endpoint.FunctionalEndpoint),
	}
	e.listeners.SetHooks(endpoint.Hooks{
		FirstProperty: e.startPropertyObservation,
		LastProperty:  e.stopPropertyObservation,
		FirstSection:  e.startSectionObservation,
		LastSection:   e.stopSectionObservation,
	})
	return e
}

// SetLogger sets the logger for the proxy.
func (e *Endpoint) SetLogger(logger Logger) {
	e.logger = logger
}

// ID returns the endpoint identifier.
func (e *Endpoint) ID() string { return e.id }

// Fetch reads the authoritative value from the hosting node and
// refreshes the cache with it.
func (e *Endpoint) Fetch(ctx context.Context, key trait.PropertyKey) (any, error) {
	rsp, err := e.conn.Send(ctx, &transport.Request{
		Method: transport.MethodGet,
		Path:   protocol.PropertyPath(e.id, key),
		Format: e.format,
	})
	if err != nil {
		return nil, err
	}
	if !rsp.Code.IsSuccess() {
		return nil, propertyError(rsp.Code)
	}
	value, err := codec.Decode(rsp.Payload, rsp.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResult, err)
	}

	e.mu.Lock()
	e.cacheStore(key, value)
	e.mu.Unlock()
	return value, nil
}

// CachedProperty answers from the proxy cache without network traffic.
func (e *Endpoint) CachedProperty(key trait.PropertyKey) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	section, ok := e.cache[key.Section]
	if !ok {
		return nil, false
	}
	v, ok := section[key.String()]
	return v, ok
}

// Set writes a property on the hosting node. On success the written
// value is echoed into the cache; on failure the cache is untouched.
func (e *Endpoint) Set(ctx context.Context, key trait.PropertyKey, value any, opts ...endpoint.Option) error {
	o := endpoint.ApplyOptions(opts)
	payload, err := codec.Encode(value, e.format)
	if err != nil {
		return err
	}

	mods := protocol.Modifiers{Duration: o.Duration, Origin: o.Origin}
	rsp, err := e.conn.Send(ctx, &transport.Request{
		Method:  transport.MethodPut,
		Path:    protocol.PropertyPath(e.id, key),
		Query:   mods.Query(),
		Payload: payload,
		Format:  e.format,
	})
	if err != nil {
		return err
	}
	if !rsp.Code.IsSuccess() {
		return propertyError(rsp.Code)
	}

	e.mu.Lock()
	e.cacheStore(key, value)
	e.mu.Unlock()
	return nil
}

// Increment adds delta to a numeric property on the hosting node.
func (e *Endpoint) Increment(ctx context.Context, key trait.PropertyKey, delta any, opts ...endpoint.Option) error {
	return e.modify(ctx, key, protocol.OpIncrement, delta, opts)
}

// Toggle inverts a boolean property on the hosting node.
func (e *Endpoint) Toggle(ctx context.Context, key trait.PropertyKey, opts ...endpoint.Option) error {
	return e.modify(ctx, key, protocol.OpToggle, nil, opts)
}

// Insert adds a value to an array property on the hosting node.
func (e *Endpoint) Insert(ctx context.Context, key trait.PropertyKey, value any, opts ...endpoint.Option) error {
	return e.modify(ctx, key, protocol.OpInsert, value, opts)
}

// Remove deletes a value from an array property on the hosting node.
func (e *Endpoint) Remove(ctx context.Context, key trait.PropertyKey, value any, opts ...endpoint.Option) error {
	return e.modify(ctx, key, protocol.OpRemove, value, opts)
}

// modify issues a PUT with a write-operation modifier. The resulting
// value is only known to the hosting node, so the cached entry is
// dropped rather than guessed; the next notification or Fetch restores
// it.
func (e *Endpoint) modify(ctx context.Context, key trait.PropertyKey, op protocol.WriteOp, value any, opts []endpoint.Option) error {
	o := endpoint.ApplyOptions(opts)

	var payload []byte
	if op != protocol.OpToggle {
		var err error
		payload, err = codec.Encode(value, e.format)
		if err != nil {
			return err
		}
	}

	mods := protocol.Modifiers{Op: op, Duration: o.Duration, Origin: o.Origin}
	rsp, err := e.conn.Send(ctx, &transport.Request{
		Method:  transport.MethodPut,
		Path:    protocol.PropertyPath(e.id, key),
		Query:   mods.Query(),
		Payload: payload,
		Format:  e.format,
	})
	if err != nil {
		return err
	}
	if !rsp.Code.IsSuccess() {
		return propertyError(rsp.Code)
	}

	e.mu.Lock()
	if section, ok := e.cache[key.Section]; ok {
		delete(section, key.String())
	}
	e.mu.Unlock()
	return nil
}

// Invoke calls a method on the hosting node. Methods that return a
// child yield a proxy for it, sharing this endpoint's connection.
func (e *Endpoint) Invoke(ctx context.Context, method trait.MethodKey, args map[string]any) (endpoint.InvokeResult, error) {
	var payload []byte
	if len(args) > 0 {
		var err error
		payload, err = codec.Encode(args, e.format)
		if err != nil {
			return endpoint.InvokeResult{}, err
		}
	}

	rsp, err := e.conn.Send(ctx, &transport.Request{
		Method:  transport.MethodPost,
		Path:    protocol.MethodPath(e.id, method),
		Payload: payload,
		Format:  e.format,
	})
	if err != nil {
		return endpoint.InvokeResult{}, err
	}
	if !rsp.Code.IsSuccess() {
		return endpoint.InvokeResult{}, methodError(rsp.Code)
	}

	decoded, err := codec.Decode(rsp.Payload, rsp.Format)
	if err != nil {
		return endpoint.InvokeResult{}, fmt.Errorf("%w: %w", ErrBadResult, err)
	}

	if method.ReturnsChild() {
		ref, ok := decoded.(map[string]any)
		childID, okID := "", false
		if ok {
			childID, okID = ref["child"].(string)
		}
		if !okID {
			return endpoint.InvokeResult{}, fmt.Errorf("%w: expected child reference", ErrBadResult)
		}
		return endpoint.InvokeResult{Child: e.adoptChildProxy(method.Trait, childID)}, nil
	}
	return endpoint.InvokeResult{Value: decoded}, nil
}

// FetchSection reads a whole section and replaces its cache.
func (e *Endpoint) FetchSection(ctx context.Context, section trait.Section) (map[string]any, error) {
	rsp, err := e.conn.Send(ctx, &transport.Request{
		Method: transport.MethodGet,
		Path:   protocol.SectionPath(e.id, section),
		Format: e.format,
	})
	if err != nil {
		return nil, err
	}
	if !rsp.Code.IsSuccess() {
		return nil, propertyError(rsp.Code)
	}

	decoded, err := codec.Decode(rsp.Payload, rsp.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResult, err)
	}
	contents, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected section map", ErrBadResult)
	}

	e.mu.Lock()
	e.cache[section] = copyMap(contents)
	e.mu.Unlock()
	return contents, nil
}

// adoptChildProxy returns the tracked proxy for a child, creating it on
// first sight.
func (e *Endpoint) adoptChildProxy(traitID, childID string) endpoint.FunctionalEndpoint {
	e.mu.Lock()
	byID, ok := e.children[traitID]
	if !ok {
		byID = make(map[string]endpoint.FunctionalEndpoint)
		e.children[traitID] = byID
	}
	child, ok := byID[childID]
	if !ok {
		child = New(childID, e.conn, e.format)
		byID[childID] = child
	}
	e.mu.Unlock()

	if !ok {
		e.listeners.NotifyChild(e, traitID, child, true)
	}
	return child
}

// Child looks up a previously seen child proxy.
func (e *Endpoint) Child(traitID, childID string) (endpoint.FunctionalEndpoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	child, ok := e.children[traitID][childID]
	return child, ok
}

// Children returns the previously seen child proxies of a trait.
func (e *Endpoint) Children(traitID string) []endpoint.FunctionalEndpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]endpoint.FunctionalEndpoint, 0, len(e.children[traitID]))
	for _, child := range e.children[traitID] {
		out = append(out, child)
	}
	return out
}

// Parent returns nil: parent relationships are not proxied across the
// transport.
func (e *Endpoint) Parent() endpoint.FunctionalEndpoint { return nil }

// AddPropertyListener subscribes to one property. The first listener
// for the key opens a transport observation.
func (e *Endpoint) AddPropertyListener(key trait.PropertyKey, fn endpoint.PropertyListenerFunc, opts ...endpoint.ListenOption) *endpoint.Listener {
	return e.listeners.AddProperty(key, fn, opts...)
}

// AddSectionListener subscribes to a whole section. The first listener
// for the section opens a transport observation.
func (e *Endpoint) AddSectionListener(section trait.Section, fn endpoint.SectionListenerFunc, opts ...endpoint.ListenOption) *endpoint.Listener {
	return e.listeners.AddSection(section, fn, opts...)
}

// AddChildListener subscribes to child proxies appearing on a trait.
func (e *Endpoint) AddChildListener(traitID string, fn endpoint.ChildListenerFunc, opts ...endpoint.ListenOption) *endpoint.Listener {
	return e.listeners.AddChild(traitID, fn, opts...)
}

// RemoveListener unregisters a listener. Removing the last listener of
// a key or section cancels the shared observation.
func (e *Endpoint) RemoveListener(l *endpoint.Listener) {
	e.listeners.Remove(l)
}

// Delete asks the hosting node to delete the endpoint, then shuts the
// proxy down.
func (e *Endpoint) Delete(ctx context.Context) (bool, error) {
	rsp, err := e.conn.Send(ctx, &transport.Request{
		Method: transport.MethodDelete,
		Path:   "/" + e.id,
	})
	if err != nil {
		return false, err
	}

	existed := rsp.Code != transport.CodeGone
	if !rsp.Code.IsSuccess() && existed {
		return false, propertyError(rsp.Code)
	}

	e.mu.Lock()
	e.deleted = true
	obs := make([]*transport.Observation, 0, len(e.propObs)+len(e.secObs))
	for _, st := range e.propObs {
		obs = append(obs, st.obs)
	}
	for _, st := range e.secObs {
		obs = append(obs, st.obs)
	}
	e.propObs = make(map[string]*obsState)
	e.secObs = make(map[trait.Section]*obsState)
	e.mu.Unlock()

	for _, o := range obs {
		o.Cancel()
	}
	e.exec.Close()
	return existed, nil
}

// ─── Observations ────────────────────────────────────────────────────────────

func (e *Endpoint) startPropertyObservation(key trait.PropertyKey) {
	state := &obsState{}
	flat := key.String()

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return
	}
	e.propObs[flat] = state
	e.mu.Unlock()

	obs, err := e.conn.Observe(context.Background(), &transport.Request{
		Method: transport.MethodGet,
		Path:   protocol.PropertyPath(e.id, key),
		Format: e.format,
	}, func(n transport.Notification) {
		e.applyPropertyNotification(key, state, n)
	})
	if err != nil {
		e.logger.Warn("property observation not established",
			"endpoint", e.id, "key", flat, "error", err)
		return
	}

	e.mu.Lock()
	// A concurrent removal may already have dropped the state; cancel
	// the stream rather than leak it.
	if e.propObs[flat] != state {
		e.mu.Unlock()
		obs.Cancel()
		return
	}
	state.obs = obs
	e.mu.Unlock()
}

func (e *Endpoint) stopPropertyObservation(key trait.PropertyKey) {
	e.mu.Lock()
	state := e.propObs[key.String()]
	delete(e.propObs, key.String())
	e.mu.Unlock()

	if state != nil && state.obs != nil {
		state.obs.Cancel()
	}
}

func (e *Endpoint) startSectionObservation(section trait.Section) {
	state := &obsState{}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return
	}
	e.secObs[section] = state
	e.mu.Unlock()

	obs, err := e.conn.Observe(context.Background(), &transport.Request{
		Method: transport.MethodGet,
		Path:   protocol.SectionPath(e.id, section),
		Format: e.format,
	}, func(n transport.Notification) {
		e.applySectionNotification(section, state, n)
	})
	if err != nil {
		e.logger.Warn("section observation not established",
			"endpoint", e.id, "section", section.String(), "error", err)
		return
	}

	e.mu.Lock()
	if e.secObs[section] != state {
		e.mu.Unlock()
		obs.Cancel()
		return
	}
	state.obs = obs
	e.mu.Unlock()
}

func (e *Endpoint) stopSectionObservation(section trait.Section) {
	e.mu.Lock()
	state := e.secObs[section]
	delete(e.secObs, section)
	e.mu.Unlock()

	if state != nil && state.obs != nil {
		state.obs.Cancel()
	}
}

// applyPropertyNotification updates the cache from a notification and
// fans it out, dropping reordered stale sequences.
func (e *Endpoint) applyPropertyNotification(key trait.PropertyKey, state *obsState, n transport.Notification) {
	value, err := codec.Decode(n.Payload, n.Format)
	if err != nil {
		e.logger.Warn("dropping undecodable notification",
			"endpoint", e.id, "key", key.String(), "error", err)
		return
	}

	e.mu.Lock()
	if n.Sequence <= state.seq {
		e.mu.Unlock()
		return
	}
	state.seq = n.Sequence
	e.cacheStore(key, value)
	e.mu.Unlock()

	e.listeners.NotifyProperty(e, key, value, "", func() map[string]any {
		return e.cachedSection(key.Section)
	})
}

// applySectionNotification replaces the section cache from a
// notification and fans it out.
func (e *Endpoint) applySectionNotification(section trait.Section, state *obsState, n transport.Notification) {
	decoded, err := codec.Decode(n.Payload, n.Format)
	if err != nil {
		e.logger.Warn("dropping undecodable notification",
			"endpoint", e.id, "section", section.String(), "error", err)
		return
	}
	contents, ok := decoded.(map[string]any)
	if !ok {
		e.logger.Warn("dropping malformed section notification",
			"endpoint", e.id, "section", section.String())
		return
	}

	e.mu.Lock()
	if n.Sequence <= state.seq {
		e.mu.Unlock()
		return
	}
	state.seq = n.Sequence
	e.cache[section] = copyMap(contents)
	e.mu.Unlock()

	e.listeners.NotifySection(e, section, contents, "")
}

// cacheStore writes one value into the section cache. Callers hold e.mu.
func (e *Endpoint) cacheStore(key trait.PropertyKey, value any) {
	section, ok := e.cache[key.Section]
	if !ok {
		section = make(map[string]any)
		e.cache[key.Section] = section
	}
	section[key.String()] = value
}

// cachedSection snapshots a section cache for section listeners.
func (e *Endpoint) cachedSection(section trait.Section) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMap(e.cache[section])
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ─── Error mapping ───────────────────────────────────────────────────────────

func propertyError(code transport.Code) error {
	switch code {
	case transport.CodeNotFound:
		return endpoint.ErrPropertyNotFound
	case transport.CodeForbidden:
		return endpoint.ErrPropertyReadOnly
	case transport.CodeGone:
		return endpoint.ErrDeleted
	case transport.CodeBadRequest:
		return endpoint.ErrInvalidOperation
	default:
		return fmt.Errorf("%w: code %d", ErrRequestFailed, code)
	}
}

func methodError(code transport.Code) error {
	switch code {
	case transport.CodeNotFound:
		return endpoint.ErrMethodNotFound
	case transport.CodeGone:
		return endpoint.ErrDeleted
	case transport.CodeBadRequest:
		return endpoint.ErrInvalidMethodArguments
	default:
		return fmt.Errorf("%w: code %d", ErrRequestFailed, code)
	}
}
