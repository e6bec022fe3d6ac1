package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/trait"
)

// ─── Fixtures ───────────────────────────────────────────────────────────────

var (
	keyLevel = trait.NewPropertyKey(trait.SectionState, "level", "v", trait.TypeFloat)
	keyOn    = trait.NewPropertyKey(trait.SectionState, "onoff", "v", trait.TypeBool)
	keyName  = trait.NewPropertyKey(trait.SectionConfig, "name", "v", trait.TypeString)
)

type record struct {
	endpoint string
	key      trait.PropertyKey
	value    any
}

type memorySink struct {
	mu      sync.Mutex
	records []record
}

func (s *memorySink) WritePropertyChange(endpointID string, key trait.PropertyKey, value any, _ time.Time) {
	s.mu.Lock()
	s.records = append(s.records, record{endpoint: endpointID, key: key, value: value})
	s.mu.Unlock()
}

func (s *memorySink) all() []record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record(nil), s.records...)
}

func newLamp(id string) *endpoint.Local {
	level := endpoint.NewSimpleTrait("level", keyLevel).Init(keyLevel, 0.25)
	onoff := endpoint.NewSimpleTrait("onoff", keyOn).Init(keyOn, false)
	name := endpoint.NewSimpleTrait("name", keyName).Init(keyName, id)
	return endpoint.NewLocal(id, level, onoff, name)
}

// ─── Recorder ───────────────────────────────────────────────────────────────

func TestRecordsChangedPropertiesOnly(t *testing.T) {
	lamp := newLamp("lamp-1")
	sink := &memorySink{}
	r := NewRecorder(sink)
	defer r.Close()

	r.Watch(lamp)

	if err := lamp.Set(context.Background(), keyLevel, 0.8); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	lamp.Executor().Sync()

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("recorded %d changes, want 1: %v", len(records), records)
	}
	got := records[0]
	if got.endpoint != "lamp-1" || !got.key.Equal(keyLevel) || got.value != 0.8 {
		t.Errorf("record = %+v", got)
	}
}

func TestWatchDoesNotRecordCurrentValues(t *testing.T) {
	lamp := newLamp("lamp-1")
	sink := &memorySink{}
	r := NewRecorder(sink)
	defer r.Close()

	r.Watch(lamp)
	lamp.Executor().Sync()

	if records := sink.all(); len(records) != 0 {
		t.Errorf("watching recorded %d changes, want 0: %v", len(records), records)
	}
}

func TestUnchangedValueNotRecorded(t *testing.T) {
	lamp := newLamp("lamp-1")
	sink := &memorySink{}
	r := NewRecorder(sink)
	defer r.Close()

	r.Watch(lamp)

	// Same value as the seed baseline.
	if err := lamp.Set(context.Background(), keyLevel, 0.25); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	lamp.Executor().Sync()

	if records := sink.all(); len(records) != 0 {
		t.Errorf("recorded %d changes for an unchanged value: %v", len(records), records)
	}
}

func TestConfigChangesRecorded(t *testing.T) {
	lamp := newLamp("lamp-1")
	sink := &memorySink{}
	r := NewRecorder(sink)
	defer r.Close()

	r.Watch(lamp)

	if err := lamp.Set(context.Background(), keyName, "hallway"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	lamp.Executor().Sync()

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("recorded %d changes, want 1: %v", len(records), records)
	}
	if !records[0].key.Equal(keyName) || records[0].value != "hallway" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestUnwatchStopsRecording(t *testing.T) {
	lamp := newLamp("lamp-1")
	sink := &memorySink{}
	r := NewRecorder(sink)
	defer r.Close()

	r.Watch(lamp)
	if !r.Unwatch("lamp-1") {
		t.Fatal("Unwatch() = false, want true")
	}
	if r.Unwatch("lamp-1") {
		t.Error("Unwatch() twice = true, want false")
	}

	if err := lamp.Set(context.Background(), keyLevel, 0.9); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	lamp.Executor().Sync()

	if records := sink.all(); len(records) != 0 {
		t.Errorf("unwatched endpoint recorded %d changes: %v", len(records), records)
	}
}

func TestWatchIsIdempotent(t *testing.T) {
	lamp := newLamp("lamp-1")
	sink := &memorySink{}
	r := NewRecorder(sink)
	defer r.Close()

	r.Watch(lamp)
	r.Watch(lamp)

	if err := lamp.Set(context.Background(), keyLevel, 0.5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	lamp.Executor().Sync()

	if records := sink.all(); len(records) != 1 {
		t.Errorf("double watch recorded %d changes, want 1: %v", len(records), records)
	}
}
