package automation

import (
	"context"
	"sync"
	"time"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/expr"
	"github.com/weft-home/weft/internal/trait"
)

// PairingConfig describes a pairing between two property URIs. At least
// one of Push and Pull should be true for the pairing to have any effect.
type PairingConfig struct {
	Source      string `json:"src"`
	Destination string `json:"dst"`
	Push        bool   `json:"push"`
	Pull        bool   `json:"pull"`
	Forward     string `json:"fwd,omitempty"`
	Reverse     string `json:"rev,omitempty"`
}

// Pairing mirrors a source property onto a destination property. Push
// reacts to source changes and writes the destination through the forward
// transform; pull is the symmetric direction through the reverse
// transform. Both may be active at once for bidirectional mirroring.
type Pairing struct {
	*endpoint.Local

	resolver Resolver
	logger   Logger
	tr       *endpoint.SimpleTrait

	mu  sync.Mutex
	cfg PairingConfig
	fwd expr.Program
	rev expr.Program

	src, dst       *propRef // lazily resolved, cached
	pushTap        *tap
	pullTap        *tap
	prevSrc        any
	prevDst        any
	lastToSrc      any
	hasLastToSrc   bool
	lastToDst      any
	hasLastToDst   bool
	fires          float64
	lastFire       time.Time
	closed         bool
}

// tap is one listener installed on a foreign endpoint.
type tap struct {
	fe     endpoint.FunctionalEndpoint
	handle *endpoint.Listener
}

func (t *tap) remove() {
	if t != nil {
		t.fe.RemoveListener(t.handle)
	}
}

// NewPairing creates and wires a pairing. Subscription targets must
// resolve immediately; the write-side endpoints resolve lazily on first
// fire.
func NewPairing(id string, resolver Resolver, cfg PairingConfig) (*Pairing, error) {
	p := &Pairing{resolver: resolver, logger: noopLogger{}}

	p.tr = endpoint.NewSimpleTrait("pairing",
		KeyPairingSource, KeyPairingDestination, KeyPairingPush, KeyPairingPull,
		KeyPairingForward, KeyPairingReverse,
		KeyPairingFires, KeyPairingLastFire, KeyPairingTrap).
		Init(KeyPairingFires, int64(0)).
		Init(KeyPairingLastFire, "").
		Init(KeyPairingTrap, "").
		MarkReadOnly(KeyPairingFires, KeyPairingLastFire, KeyPairingTrap).
		OnSet(p.onConfigSet)
	p.Local = endpoint.NewLocal(id, p.tr)
	p.Local.SetOnDelete(p.unwire)

	if err := p.configure(cfg); err != nil {
		p.Local.Delete(context.Background())
		return nil, err
	}
	return p, nil
}

// SetLogger sets the logger for the pairing.
func (p *Pairing) SetLogger(logger Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Config returns the current configuration.
func (p *Pairing) Config() PairingConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// FireCount returns how many times the pairing has propagated a value.
func (p *Pairing) FireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.fires)
}

// origin is the write tag that suppresses local echo notifications.
func (p *Pairing) origin() string { return "pairing:" + p.ID() }

// onConfigSet reconfigures the pairing when one of its config properties
// is written through the property model.
func (p *Pairing) onConfigSet(key trait.PropertyKey, value any) error {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	switch key.String() {
	case KeyPairingSource.String():
		cfg.Source = value.(string)
	case KeyPairingDestination.String():
		cfg.Destination = value.(string)
	case KeyPairingPush.String():
		cfg.Push = value.(bool)
	case KeyPairingPull.String():
		cfg.Pull = value.(bool)
	case KeyPairingForward.String():
		cfg.Forward = value.(string)
	case KeyPairingReverse.String():
		cfg.Reverse = value.(string)
	default:
		return nil
	}
	return p.configure(cfg)
}

// configure compiles the transforms, tears down the old subscriptions,
// and installs the new ones. Failure leaves the pairing unwired.
func (p *Pairing) configure(cfg PairingConfig) error {
	fwd, err := expr.Compile(cfg.Forward)
	if err != nil {
		return err
	}
	rev, err := expr.Compile(cfg.Reverse)
	if err != nil {
		return err
	}

	p.mu.Lock()
	oldPush, oldPull := p.pushTap, p.pullTap
	p.pushTap, p.pullTap = nil, nil
	p.cfg, p.fwd, p.rev = cfg, fwd, rev
	p.src, p.dst = nil, nil
	p.hasLastToSrc, p.hasLastToDst = false, false
	closed := p.closed
	p.mu.Unlock()

	oldPush.remove()
	oldPull.remove()
	if closed {
		return nil
	}

	if cfg.Push {
		ref, err := resolveProperty(p.resolver, cfg.Source)
		if err != nil {
			return err
		}
		handle := ref.fe.AddPropertyListener(ref.key, p.onSourceChanged, endpoint.ListenOrigin(p.origin()))
		p.mu.Lock()
		p.src = &ref
		p.pushTap = &tap{fe: ref.fe, handle: handle}
		p.mu.Unlock()
	}
	if cfg.Pull {
		ref, err := resolveProperty(p.resolver, cfg.Destination)
		if err != nil {
			return err
		}
		handle := ref.fe.AddPropertyListener(ref.key, p.onDestinationChanged, endpoint.ListenOrigin(p.origin()))
		p.mu.Lock()
		p.dst = &ref
		p.pullTap = &tap{fe: ref.fe, handle: handle}
		p.mu.Unlock()
	}

	// Self-pairing would loop regardless of suppression.
	if cfg.Source == cfg.Destination && cfg.Source != "" {
		p.logger.Warn("pairing source equals destination, propagation disabled", "pairing", p.ID())
	}

	p.tr.SilentSet(KeyPairingSource, cfg.Source)
	p.tr.SilentSet(KeyPairingDestination, cfg.Destination)
	p.tr.SilentSet(KeyPairingPush, cfg.Push)
	p.tr.SilentSet(KeyPairingPull, cfg.Pull)
	p.tr.SilentSet(KeyPairingForward, cfg.Forward)
	p.tr.SilentSet(KeyPairingReverse, cfg.Reverse)
	return nil
}

// unwire removes the subscriptions. Runs on delete.
func (p *Pairing) unwire() {
	p.mu.Lock()
	push, pull := p.pushTap, p.pullTap
	p.pushTap, p.pullTap = nil, nil
	p.closed = true
	p.mu.Unlock()
	push.remove()
	pull.remove()
}

// onSourceChanged drives the push direction.
func (p *Pairing) onSourceChanged(_ endpoint.FunctionalEndpoint, _ trait.PropertyKey, value any) {
	p.mu.Lock()
	if p.cfg.Source == p.cfg.Destination {
		p.mu.Unlock()
		return
	}
	if p.hasLastToSrc && valuesEqual(value, p.lastToSrc) {
		// Echo of our own pull write coming back around.
		p.prevSrc = value
		p.mu.Unlock()
		return
	}
	prev := p.prevSrc
	p.prevSrc = value
	prog, count, uri := p.fwd, p.fires, p.cfg.Destination
	p.mu.Unlock()

	p.propagate(value, prev, prog, count, uri, &p.dst, &p.lastToDst, &p.hasLastToDst, "dst")
}

// onDestinationChanged drives the pull direction.
func (p *Pairing) onDestinationChanged(_ endpoint.FunctionalEndpoint, _ trait.PropertyKey, value any) {
	p.mu.Lock()
	if p.cfg.Source == p.cfg.Destination {
		p.mu.Unlock()
		return
	}
	if p.hasLastToDst && valuesEqual(value, p.lastToDst) {
		p.prevDst = value
		p.mu.Unlock()
		return
	}
	prev := p.prevDst
	p.prevDst = value
	prog, count, uri := p.rev, p.fires, p.cfg.Source
	p.mu.Unlock()

	p.propagate(value, prev, prog, count, uri, &p.src, &p.lastToSrc, &p.hasLastToSrc, "src")
}

// propagate evaluates one direction's transform and writes the result. An
// empty transform passes the value through unchanged. Evaluation errors
// and empty-stack results skip the cycle; write failures raise the trap
// property.
func (p *Pairing) propagate(value, prev any, prog expr.Program, count float64, uri string, ref **propRef, lastWritten *any, hasLast *bool, side string) {
	result := value
	if !prog.Empty() {
		env := expr.Env{Previous: prev, Count: count}.WithValue(value)
		v, ok, err := prog.Evaluate(env)
		if err != nil {
			p.logger.Warn("transform failed, skipping cycle", "pairing", p.ID(), "error", err)
			return
		}
		if !ok {
			return
		}
		result = v
	}

	p.mu.Lock()
	if *hasLast && valuesEqual(result, *lastWritten) {
		p.mu.Unlock()
		return
	}
	target := *ref
	p.mu.Unlock()

	if target == nil {
		resolved, err := resolveProperty(p.resolver, uri)
		if err != nil {
			p.trap(side + " resolve-fail")
			p.logger.Warn("pairing target unresolvable", "pairing", p.ID(), "uri", uri, "error", err)
			return
		}
		p.mu.Lock()
		*ref = &resolved
		target = &resolved
		p.mu.Unlock()
	}

	// Record before the write so a racing echo is already suppressed.
	p.mu.Lock()
	*lastWritten = result
	*hasLast = true
	p.mu.Unlock()

	if err := target.fe.Set(context.Background(), target.key, result, endpoint.WithOrigin(p.origin())); err != nil {
		p.trap(side + " write-fail")
		p.logger.Warn("pairing write failed", "pairing", p.ID(), "uri", uri, "error", err)
		return
	}

	p.mu.Lock()
	p.fires++
	p.lastFire = time.Now()
	fires, last := int64(p.fires), p.lastFire
	p.mu.Unlock()

	p.tr.SilentSet(KeyPairingFires, fires)
	p.tr.SilentSet(KeyPairingLastFire, last.Format(time.RFC3339))
	p.tr.SilentSet(KeyPairingTrap, "")
	p.Local.NotifyChanged(KeyPairingFires, fires, "")
}

// trap raises the observable failure status property.
func (p *Pairing) trap(status string) {
	p.tr.SilentSet(KeyPairingTrap, status)
	p.Local.NotifyChanged(KeyPairingTrap, status, "")
}

// CopyState snapshots configuration and counters for persistence.
func (p *Pairing) CopyState() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	state := map[string]any{
		"src":   p.cfg.Source,
		"dst":   p.cfg.Destination,
		"push":  p.cfg.Push,
		"pull":  p.cfg.Pull,
		"fires": p.fires,
	}
	if p.cfg.Forward != "" {
		state["fwd"] = p.cfg.Forward
	}
	if p.cfg.Reverse != "" {
		state["rev"] = p.cfg.Reverse
	}
	if !p.lastFire.IsZero() {
		state["last"] = p.lastFire.Format(time.RFC3339)
	}
	return state
}

// restoreCounters reinstates the persistent counters after a restart.
func (p *Pairing) restoreCounters(state map[string]any) {
	p.mu.Lock()
	if f, ok := numeric(state["fires"]); ok {
		p.fires = f
	}
	if s, ok := state["last"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			p.lastFire = t
		}
	}
	fires, last := int64(p.fires), p.lastFire
	p.mu.Unlock()

	p.tr.SilentSet(KeyPairingFires, fires)
	if !last.IsZero() {
		p.tr.SilentSet(KeyPairingLastFire, last.Format(time.RFC3339))
	}
}
