package automation

import (
	"context"
	"testing"
	"time"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/trait"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

var (
	keyLevel = trait.NewPropertyKey(trait.SectionState, "level", "v", trait.TypeFloat)
	keyOn    = trait.NewPropertyKey(trait.SectionState, "onoff", "v", trait.TypeBool)
)

type mapResolver struct {
	fes map[string]endpoint.FunctionalEndpoint
}

func (r *mapResolver) Resolve(id string) (endpoint.FunctionalEndpoint, bool) {
	fe, ok := r.fes[id]
	return fe, ok
}

func (r *mapResolver) add(fe endpoint.FunctionalEndpoint) {
	if r.fes == nil {
		r.fes = make(map[string]endpoint.FunctionalEndpoint)
	}
	r.fes[fe.ID()] = fe
}

func newLamp(id string) *endpoint.Local {
	level := endpoint.NewSimpleTrait("level", keyLevel).Init(keyLevel, 0.0)
	onoff := endpoint.NewSimpleTrait("onoff", keyOn).Init(keyOn, false)
	return endpoint.NewLocal(id, level, onoff)
}

// waitFor polls until cond holds or the test deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func drain(lamps ...*endpoint.Local) {
	// Two passes so a write triggered by the first pass settles too.
	for i := 0; i < 2; i++ {
		for _, l := range lamps {
			l.Executor().Sync()
		}
	}
}

// ─── Pairing ────────────────────────────────────────────────────────────────

func TestPairingConvergesWithoutFeedback(t *testing.T) {
	a, b := newLamp("a"), newLamp("b")
	r := &mapResolver{}
	r.add(a)
	r.add(b)

	p, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/b/s/level/v",
		Push:        true,
		Pull:        true,
	})
	if err != nil {
		t.Fatalf("NewPairing() error = %v", err)
	}

	// External change on the source converges both ends with exactly one
	// fire: the echo of the pairing's own write must not re-trigger it.
	if err := a.Set(context.Background(), keyLevel, 0.8); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(a, b)

	got, _ := b.Fetch(context.Background(), keyLevel)
	if got != 0.8 {
		t.Errorf("destination = %v, want 0.8", got)
	}
	if n := p.FireCount(); n != 1 {
		t.Errorf("fire count = %d, want exactly 1", n)
	}

	// The pull direction mirrors external destination changes back.
	if err := b.Set(context.Background(), keyLevel, 0.3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(b, a)

	got, _ = a.Fetch(context.Background(), keyLevel)
	if got != 0.3 {
		t.Errorf("source after pull = %v, want 0.3", got)
	}
	if n := p.FireCount(); n != 2 {
		t.Errorf("fire count = %d, want 2", n)
	}
}

func TestPairingForwardTransform(t *testing.T) {
	a, b := newLamp("a"), newLamp("b")
	r := &mapResolver{}
	r.add(a)
	r.add(b)

	p, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/b/s/level/v",
		Push:        true,
		Forward:     "2 *",
	})
	if err != nil {
		t.Fatalf("NewPairing() error = %v", err)
	}

	if err := a.Set(context.Background(), keyLevel, 0.2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(a, b)

	got, _ := b.Fetch(context.Background(), keyLevel)
	if got != 0.4 {
		t.Errorf("destination = %v, want 0.4", got)
	}
	if n := p.FireCount(); n != 1 {
		t.Errorf("fire count = %d, want 1", n)
	}
}

func TestPairingEvalErrorSkipsCycle(t *testing.T) {
	a, b := newLamp("a"), newLamp("b")
	r := &mapResolver{}
	r.add(a)
	r.add(b)

	// DROP empties the stack, then + has nothing to work with.
	p, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/b/s/level/v",
		Push:        true,
		Forward:     "DROP +",
	})
	if err != nil {
		t.Fatalf("NewPairing() error = %v", err)
	}

	if err := a.Set(context.Background(), keyLevel, 0.6); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(a, b)

	got, _ := b.Fetch(context.Background(), keyLevel)
	if got != 0.0 {
		t.Errorf("destination = %v, want untouched 0.0", got)
	}
	if n := p.FireCount(); n != 0 {
		t.Errorf("fire count = %d, want 0", n)
	}
}

func TestPairingWriteFailureRaisesTrap(t *testing.T) {
	a := newLamp("a")
	level := endpoint.NewSimpleTrait("level", keyLevel).Init(keyLevel, 0.0).MarkReadOnly(keyLevel)
	b := endpoint.NewLocal("b", level)
	r := &mapResolver{}
	r.add(a)
	r.add(b)

	p, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/b/s/level/v",
		Push:        true,
	})
	if err != nil {
		t.Fatalf("NewPairing() error = %v", err)
	}

	if err := a.Set(context.Background(), keyLevel, 0.6); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(a, b)

	trap, err := p.Fetch(context.Background(), KeyPairingTrap)
	if err != nil {
		t.Fatalf("Fetch(trap) error = %v", err)
	}
	if trap != "dst write-fail" {
		t.Errorf("trap = %v, want dst write-fail", trap)
	}
	if n := p.FireCount(); n != 0 {
		t.Errorf("fire count = %d, want 0", n)
	}
}

func TestPairingReconfigureThroughProperties(t *testing.T) {
	a, b, c := newLamp("a"), newLamp("b"), newLamp("c")
	r := &mapResolver{}
	r.add(a)
	r.add(b)
	r.add(c)

	p, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/b/s/level/v",
		Push:        true,
	})
	if err != nil {
		t.Fatalf("NewPairing() error = %v", err)
	}

	// Retarget the destination through the pairing's own config section.
	if err := p.Set(context.Background(), KeyPairingDestination, "/c/s/level/v"); err != nil {
		t.Fatalf("Set(dst) error = %v", err)
	}

	if err := a.Set(context.Background(), keyLevel, 0.9); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(a, b, c)

	gotB, _ := b.Fetch(context.Background(), keyLevel)
	gotC, _ := c.Fetch(context.Background(), keyLevel)
	if gotB != 0.0 || gotC != 0.9 {
		t.Errorf("b = %v, c = %v; want 0.0 and 0.9", gotB, gotC)
	}
}

func TestPairingRejectsBadTransform(t *testing.T) {
	a := newLamp("a")
	r := &mapResolver{}
	r.add(a)

	_, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/a/s/onoff/v",
		Push:        true,
		Forward:     "BOGUS",
	})
	if err == nil {
		t.Fatal("NewPairing() expected compile error")
	}
}

func TestPairingDeleteUnsubscribes(t *testing.T) {
	a, b := newLamp("a"), newLamp("b")
	r := &mapResolver{}
	r.add(a)
	r.add(b)

	p, err := NewPairing("pair-1", r, PairingConfig{
		Source:      "/a/s/level/v",
		Destination: "/b/s/level/v",
		Push:        true,
	})
	if err != nil {
		t.Fatalf("NewPairing() error = %v", err)
	}
	if _, err := p.Delete(context.Background()); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if err := a.Set(context.Background(), keyLevel, 0.8); err != nil {
		t.Fatalf("Set: %v", err)
	}
	drain(a, b)

	got, _ := b.Fetch(context.Background(), keyLevel)
	if got != 0.0 {
		t.Errorf("destination after delete = %v, want 0.0", got)
	}
}
