package group

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/trait"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

var (
	keyOn    = trait.NewPropertyKey(trait.SectionState, "onoff", "v", trait.TypeBool)
	keyLevel = trait.NewPropertyKey(trait.SectionState, "level", "v", trait.TypeFloat)
	keyName  = trait.NewPropertyKey(trait.SectionConfig, "base", "name", trait.TypeString)
)

type fakeRegistry struct {
	hosted map[string]endpoint.FunctionalEndpoint
}

func (r *fakeRegistry) Resolve(id string) (endpoint.FunctionalEndpoint, bool) {
	fe, ok := r.hosted[id]
	return fe, ok
}

func (r *fakeRegistry) add(fe endpoint.FunctionalEndpoint) {
	if r.hosted == nil {
		r.hosted = make(map[string]endpoint.FunctionalEndpoint)
	}
	r.hosted[fe.ID()] = fe
}

func newLamp(id string, readOnly bool) *endpoint.Local {
	onoff := endpoint.NewSimpleTrait("onoff", keyOn).Init(keyOn, false)
	level := endpoint.NewSimpleTrait("level", keyLevel).Init(keyLevel, 0.5)
	if readOnly {
		level.MarkReadOnly(keyLevel)
	}
	base := endpoint.NewSimpleTrait("base", keyName).Init(keyName, id)
	return endpoint.NewLocal(id, onoff, level, base)
}

// threeLamps builds a group of three members. When oneBroken is true the
// third member rejects level writes.
func threeLamps(t *testing.T, oneBroken bool) (*Group, []*endpoint.Local) {
	t.Helper()
	reg := &fakeRegistry{}
	lamps := []*endpoint.Local{
		newLamp("lamp-1", false),
		newLamp("lamp-2", false),
		newLamp("lamp-3", oneBroken),
	}
	g := New("living-room", reg)
	for _, lamp := range lamps {
		reg.add(lamp)
		if err := g.AddMember(lamp); err != nil {
			t.Fatalf("AddMember(%s): %v", lamp.ID(), err)
		}
	}
	return g, lamps
}

// ─── Membership ─────────────────────────────────────────────────────────────

func TestAddMemberRejectsGroups(t *testing.T) {
	reg := &fakeRegistry{}
	g := New("parent", reg)
	inner := New("child", reg)

	if err := g.AddMember(inner); !errors.Is(err, ErrUnacceptableMember) {
		t.Errorf("AddMember(group) error = %v, want ErrUnacceptableMember", err)
	}
}

func TestAddMemberRejectsForeignEndpoint(t *testing.T) {
	g := New("living-room", &fakeRegistry{})
	stranger := newLamp("lamp-9", false)

	if err := g.AddMember(stranger); !errors.Is(err, ErrUnacceptableMember) {
		t.Errorf("AddMember(unhosted) error = %v, want ErrUnacceptableMember", err)
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	g, lamps := threeLamps(t, false)

	if err := g.AddMember(lamps[0]); err != nil {
		t.Fatalf("re-adding member: %v", err)
	}
	if got := len(g.Members()); got != 3 {
		t.Errorf("len(Members()) = %d, want 3", got)
	}
}

func TestRemoveMember(t *testing.T) {
	g, _ := threeLamps(t, false)

	if !g.RemoveMember("lamp-2") {
		t.Fatal("RemoveMember(lamp-2) = false")
	}
	if g.RemoveMember("lamp-2") {
		t.Error("second RemoveMember(lamp-2) = true")
	}
	if got := len(g.Members()); got != 2 {
		t.Errorf("len(Members()) = %d, want 2", got)
	}
}

// ─── Fan-out ────────────────────────────────────────────────────────────────

func TestSetFansOutToAllMembers(t *testing.T) {
	g, lamps := threeLamps(t, false)
	ctx := context.Background()

	if err := g.Set(ctx, keyLevel, 0.8); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	for _, lamp := range lamps {
		got, err := lamp.Fetch(ctx, keyLevel)
		if err != nil || got != 0.8 {
			t.Errorf("%s level = %v, %v; want 0.8", lamp.ID(), got, err)
		}
	}
}

func TestSetBestEffortWithFailingMember(t *testing.T) {
	g, lamps := threeLamps(t, true)
	ctx := context.Background()

	err := g.Set(ctx, keyLevel, 0.8)
	var merr *MemberError
	if !errors.As(err, &merr) {
		t.Fatalf("Set() error = %v, want *MemberError", err)
	}
	if len(merr.Failures) != 1 || merr.Failures[0].ID != "lamp-3" {
		t.Fatalf("Failures = %+v, want exactly lamp-3", merr.Failures)
	}
	if !errors.Is(merr.Failures[0].Err, endpoint.ErrPropertyReadOnly) {
		t.Errorf("failure cause = %v, want ErrPropertyReadOnly", merr.Failures[0].Err)
	}

	// Healthy members keep their new state, the failed one its old.
	for _, lamp := range lamps[:2] {
		got, _ := lamp.Fetch(ctx, keyLevel)
		if got != 0.8 {
			t.Errorf("%s level = %v, want 0.8", lamp.ID(), got)
		}
	}
	got, _ := lamps[2].Fetch(ctx, keyLevel)
	if got != 0.5 {
		t.Errorf("lamp-3 level = %v, want untouched 0.5", got)
	}
}

func TestToggleInvertsEachMember(t *testing.T) {
	g, lamps := threeLamps(t, false)
	ctx := context.Background()

	// Members start out disagreeing.
	if err := lamps[1].Set(ctx, keyOn, true); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := g.Toggle(ctx, keyOn); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}

	want := []any{true, false, true}
	for i, lamp := range lamps {
		got, _ := lamp.Fetch(ctx, keyOn)
		if got != want[i] {
			t.Errorf("%s onoff = %v, want %v", lamp.ID(), got, want[i])
		}
	}
}

func TestConfigNeverFansOut(t *testing.T) {
	g, lamps := threeLamps(t, false)

	err := g.Set(context.Background(), keyName, "renamed")
	if !errors.Is(err, endpoint.ErrInvalidOperation) {
		t.Fatalf("config Set() error = %v, want ErrInvalidOperation", err)
	}
	got, _ := lamps[0].Fetch(context.Background(), keyName)
	if got != "lamp-1" {
		t.Errorf("member config changed to %v", got)
	}
}

func TestApplyProperties(t *testing.T) {
	g, lamps := threeLamps(t, false)
	ctx := context.Background()

	err := g.ApplyProperties(ctx, map[trait.PropertyKey]any{
		keyOn:    true,
		keyLevel: 0.3,
	})
	if err != nil {
		t.Fatalf("ApplyProperties() error = %v", err)
	}
	for _, lamp := range lamps {
		on, _ := lamp.Fetch(ctx, keyOn)
		level, _ := lamp.Fetch(ctx, keyLevel)
		if on != true || level != 0.3 {
			t.Errorf("%s state = %v/%v, want true/0.3", lamp.ID(), on, level)
		}
	}
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func TestReadsAnswerFromFirstMember(t *testing.T) {
	g, lamps := threeLamps(t, false)
	ctx := context.Background()

	if err := lamps[0].Set(ctx, keyLevel, 0.1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := lamps[1].Set(ctx, keyLevel, 0.9); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := g.Fetch(ctx, keyLevel)
	if err != nil || got != 0.1 {
		t.Errorf("Fetch() = %v, %v; want first member's 0.1", got, err)
	}

	contents, err := g.FetchSection(ctx, trait.SectionState)
	if err != nil {
		t.Fatalf("FetchSection() error = %v", err)
	}
	if contents["s/level/v"] != 0.1 {
		t.Errorf("section level = %v, want 0.1", contents["s/level/v"])
	}
}

func TestReadsOnEmptyGroup(t *testing.T) {
	g := New("empty", &fakeRegistry{})

	if _, err := g.Fetch(context.Background(), keyLevel); !errors.Is(err, endpoint.ErrPropertyNotFound) {
		t.Errorf("Fetch() error = %v, want ErrPropertyNotFound", err)
	}
	if err := g.Set(context.Background(), keyLevel, 0.5); err != nil {
		t.Errorf("Set() on empty group = %v, want nil no-op", err)
	}
}

// ─── Listener relays ────────────────────────────────────────────────────────

func TestMemberChangeReachesGroupListeners(t *testing.T) {
	g, lamps := threeLamps(t, false)

	var mu sync.Mutex
	var got []any
	l := g.AddPropertyListener(keyLevel, func(fe endpoint.FunctionalEndpoint, _ trait.PropertyKey, v any) {
		mu.Lock()
		defer mu.Unlock()
		if fe.ID() != g.ID() {
			t.Errorf("notifying endpoint = %s, want %s", fe.ID(), g.ID())
		}
		got = append(got, v)
	})

	if err := lamps[1].Set(context.Background(), keyLevel, 0.6); err != nil {
		t.Fatalf("Set: %v", err)
	}
	lamps[1].Executor().Sync()
	g.exec.Sync()

	mu.Lock()
	if len(got) != 1 || got[0] != 0.6 {
		mu.Unlock()
		t.Fatalf("relayed values = %v, want [0.6]", got)
	}
	mu.Unlock()

	// After removal the relay is gone.
	g.RemoveListener(l)
	if err := lamps[1].Set(context.Background(), keyLevel, 0.2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	lamps[1].Executor().Sync()
	g.exec.Sync()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Errorf("relayed values after removal = %v", got)
	}
}

func TestLateMemberJoinsActiveRelay(t *testing.T) {
	reg := &fakeRegistry{}
	g := New("living-room", reg)
	first := newLamp("lamp-1", false)
	reg.add(first)
	if err := g.AddMember(first); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	var mu sync.Mutex
	var got []any
	g.AddPropertyListener(keyLevel, func(_ endpoint.FunctionalEndpoint, _ trait.PropertyKey, v any) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	late := newLamp("lamp-2", false)
	reg.add(late)
	if err := g.AddMember(late); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	if err := late.Set(context.Background(), keyLevel, 0.7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	late.Executor().Sync()
	g.exec.Sync()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 0.7 {
		t.Errorf("relayed values = %v, want [0.7]", got)
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

func TestCopyRestoreState(t *testing.T) {
	g, lamps := threeLamps(t, false)
	state := g.CopyState()

	reg := &fakeRegistry{}
	for _, lamp := range lamps[:2] {
		reg.add(lamp)
	}
	restored := New("living-room", reg)

	// lamp-3 is gone after the restart; restore reports it and keeps the
	// survivors.
	err := restored.RestoreState(state)
	if err == nil {
		t.Fatal("RestoreState() expected an error for the missing member")
	}
	members := restored.Members()
	if len(members) != 2 {
		t.Fatalf("restored members = %d, want 2", len(members))
	}
	if members[0].ID() != "lamp-1" || members[1].ID() != "lamp-2" {
		t.Errorf("restored order = %s, %s", members[0].ID(), members[1].ID())
	}
}

func TestDeleteDisbandsGroup(t *testing.T) {
	g, lamps := threeLamps(t, false)

	existed, err := g.Delete(context.Background())
	if err != nil || !existed {
		t.Fatalf("Delete() = %v, %v", existed, err)
	}
	existed, err = g.Delete(context.Background())
	if err != nil || existed {
		t.Errorf("second Delete() = %v, %v", existed, err)
	}

	// Members survive the group.
	got, err := lamps[0].Fetch(context.Background(), keyLevel)
	if err != nil || got != 0.5 {
		t.Errorf("member after group delete = %v, %v", got, err)
	}
}
