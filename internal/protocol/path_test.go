package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/weft-home/weft/internal/trait"
)

func TestParseAddress_Property(t *testing.T) {
	addr, err := ParseAddress("/lamp-kitchen/s/onoff/v")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addr.Endpoint != "lamp-kitchen" || addr.Group {
		t.Errorf("Endpoint = %q, Group = %v", addr.Endpoint, addr.Group)
	}
	if addr.Kind != KindProperty {
		t.Errorf("Kind = %v, want KindProperty", addr.Kind)
	}
	if addr.Section != trait.SectionState || addr.Trait != "onoff" || addr.Name != "v" {
		t.Errorf("parsed %+v", addr)
	}
}

func TestParseAddress_Section(t *testing.T) {
	addr, err := ParseAddress("/lamp-kitchen/c")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addr.Kind != KindSection || addr.Section != trait.SectionConfig {
		t.Errorf("parsed %+v", addr)
	}
}

func TestParseAddress_Endpoint(t *testing.T) {
	addr, err := ParseAddress("/lamp-kitchen")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addr.Kind != KindEndpoint {
		t.Errorf("Kind = %v, want KindEndpoint", addr.Kind)
	}
}

func TestParseAddress_Method(t *testing.T) {
	addr, err := ParseAddress("/thermostat/f/schedule?replace")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addr.Kind != KindMethod || addr.Trait != "schedule" || addr.Name != "replace" {
		t.Errorf("parsed %+v", addr)
	}
	if got := addr.MethodKey().String(); got != "schedule?replace" {
		t.Errorf("MethodKey().String() = %q", got)
	}
}

func TestParseAddress_Group(t *testing.T) {
	addr, err := ParseAddress("/g/downstairs/s/onoff/v")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if !addr.Group || addr.Endpoint != "g/downstairs" {
		t.Errorf("parsed %+v", addr)
	}
	if addr.Kind != KindProperty {
		t.Errorf("Kind = %v, want KindProperty", addr.Kind)
	}
}

func TestParseAddress_LongSectionNames(t *testing.T) {
	addr, err := ParseAddress("/lamp-1/state/onoff/v")
	if err != nil {
		t.Fatalf("ParseAddress() error = %v", err)
	}
	if addr.Section != trait.SectionState {
		t.Errorf("Section = %v", addr.Section)
	}
}

func TestParseAddress_Malformed(t *testing.T) {
	paths := []string{
		"",
		"/",
		"/lamp-1/x/onoff/v",
		"/lamp-1/s/onoff",
		"/lamp-1/s/onoff/v/extra",
		"/lamp-1/f/schedule",
		"/lamp-1/f/schedule?",
		"/g",
	}
	for _, p := range paths {
		if _, err := ParseAddress(p); !errors.Is(err, ErrBadPath) && err == nil {
			t.Errorf("ParseAddress(%q) expected error, got nil", p)
		}
	}
}

func TestAddressPathRoundTrip(t *testing.T) {
	paths := []string{
		"/lamp-kitchen",
		"/lamp-kitchen/s",
		"/lamp-kitchen/s/onoff/v",
		"/lamp-kitchen/f/schedule?replace",
		"/g/downstairs/s/level/v",
		"/g/downstairs",
	}
	for _, p := range paths {
		addr, err := ParseAddress(p)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error = %v", p, err)
		}
		if got := addr.Path(); got != p {
			t.Errorf("round trip %q -> %q", p, got)
		}
	}
}

func TestPathBuilders(t *testing.T) {
	key := trait.PropertyKey{Section: trait.SectionState, Trait: "level", Name: "v", Type: trait.TypeFloat}
	if got := PropertyPath("lamp-1", key); got != "/lamp-1/s/level/v" {
		t.Errorf("PropertyPath() = %q", got)
	}
	if got := SectionPath("lamp-1", trait.SectionMetadata); got != "/lamp-1/m" {
		t.Errorf("SectionPath() = %q", got)
	}
	mk := trait.MethodKey{Trait: "schedule", Name: "replace"}
	if got := MethodPath("thermo-1", mk); got != "/thermo-1/f/schedule?replace" {
		t.Errorf("MethodPath() = %q", got)
	}
}

func TestParseModifiers(t *testing.T) {
	m, err := ParseModifiers(map[string]string{"inc": "1", "d": "2.5", "origin": "pairing:p1"})
	if err != nil {
		t.Fatalf("ParseModifiers() error = %v", err)
	}
	if m.Op != OpIncrement {
		t.Errorf("Op = %v, want OpIncrement", m.Op)
	}
	if m.Duration != 2500*time.Millisecond {
		t.Errorf("Duration = %v", m.Duration)
	}
	if m.Origin != "pairing:p1" {
		t.Errorf("Origin = %q", m.Origin)
	}
}

func TestParseModifiers_Conflicting(t *testing.T) {
	_, err := ParseModifiers(map[string]string{"inc": "1", "tog": "1"})
	if !errors.Is(err, ErrBadModifier) {
		t.Errorf("error = %v, want ErrBadModifier", err)
	}
}

func TestParseModifiers_BadDuration(t *testing.T) {
	_, err := ParseModifiers(map[string]string{"d": "soon"})
	if !errors.Is(err, ErrBadModifier) {
		t.Errorf("error = %v, want ErrBadModifier", err)
	}
}

func TestParseModifiers_Unknown(t *testing.T) {
	_, err := ParseModifiers(map[string]string{"frobnicate": "1"})
	if !errors.Is(err, ErrBadModifier) {
		t.Errorf("error = %v, want ErrBadModifier", err)
	}
}

func TestModifiersQueryRoundTrip(t *testing.T) {
	in := Modifiers{Op: OpToggle, Origin: "rule:r1"}
	out, err := ParseModifiers(in.Query())
	if err != nil {
		t.Fatalf("ParseModifiers() error = %v", err)
	}
	if out.Op != OpToggle || out.Origin != "rule:r1" {
		t.Errorf("round trip = %+v", out)
	}

	if q := (Modifiers{}).Query(); q != nil {
		t.Errorf("zero modifiers Query() = %v, want nil", q)
	}
}
