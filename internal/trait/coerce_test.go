package trait

import (
	"errors"
	"reflect"
	"testing"
)

func TestCoerceFloat(t *testing.T) {
	key := NewPropertyKey(SectionState, "level", "v", TypeFloat)

	tests := []struct {
		name    string
		input   any
		want    any
		wantErr bool
	}{
		{name: "float64 passthrough", input: 0.75, want: 0.75},
		{name: "int widens", input: 42, want: 42.0},
		{name: "int64 widens", input: int64(7), want: 7.0},
		{name: "bool true", input: true, want: 1.0},
		{name: "bool false", input: false, want: 0.0},
		{name: "string rejected", input: "0.75", wantErr: true},
		{name: "nil rejected", input: nil, wantErr: true},
		{name: "array rejected", input: []any{1.0}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := key.Coerce(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("Coerce(%v) err = %v, want ErrInvalidValue", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCoerceInt(t *testing.T) {
	key := NewPropertyKey(SectionConfig, "scene", "slot", TypeInt)

	tests := []struct {
		name    string
		input   any
		want    any
		wantErr bool
	}{
		{name: "int64 passthrough", input: int64(9), want: int64(9)},
		{name: "integral float accepted", input: 3.0, want: int64(3)},
		{name: "fractional float rejected not truncated", input: 3.7, wantErr: true},
		{name: "bool accepted", input: true, want: int64(1)},
		{name: "string rejected", input: "3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := key.Coerce(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("Coerce(%v) err = %v, want ErrInvalidValue", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%v) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Coerce(%v) = %v (%T), want %v (%T)", tt.input, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCoerceBool(t *testing.T) {
	key := NewPropertyKey(SectionState, "onoff", "v", TypeBool)

	if got, err := key.Coerce(1.0); err != nil || got != true {
		t.Errorf("Coerce(1.0) = %v, %v; want true, nil", got, err)
	}
	if got, err := key.Coerce(0); err != nil || got != false {
		t.Errorf("Coerce(0) = %v, %v; want false, nil", got, err)
	}
	if _, err := key.Coerce(0.5); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Coerce(0.5) err = %v, want ErrInvalidValue", err)
	}
}

func TestCoerceInverseRoundTrip(t *testing.T) {
	// coerce(inverse(x)) == x for every valid typed value.
	tests := []struct {
		name  string
		key   PropertyKey
		value any
	}{
		{name: "float", key: NewPropertyKey(SectionState, "level", "v", TypeFloat), value: 0.33},
		{name: "int", key: NewPropertyKey(SectionConfig, "scene", "slot", TypeInt), value: int64(4)},
		{name: "int from native int", key: NewPropertyKey(SectionConfig, "scene", "slot", TypeInt), value: 4},
		{name: "bool", key: NewPropertyKey(SectionState, "onoff", "v", TypeBool), value: true},
		{name: "string", key: NewPropertyKey(SectionMetadata, "base", "name", TypeString), value: "Hall Lamp"},
		{name: "array", key: NewPropertyKey(SectionState, "colour", "xy", TypeArray), value: []any{0.3, 0.4}},
		{name: "map", key: NewPropertyKey(SectionState, "colour", "hsv", TypeMap), value: map[string]any{"h": 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := tt.key.Inverse(tt.value)
			got, err := tt.key.Coerce(wire)
			if err != nil {
				t.Fatalf("Coerce(Inverse(%v)) error: %v", tt.value, err)
			}
			want, err := tt.key.Coerce(tt.value)
			if err != nil {
				t.Fatalf("Coerce(%v) error: %v", tt.value, err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip = %v, want %v", got, want)
			}
		})
	}
}

func TestInverseIntRejectsFractionalFloat(t *testing.T) {
	key := NewPropertyKey(SectionConfig, "scene", "slot", TypeInt)

	// An integral float converts to the wire int64.
	if got := key.Inverse(4.0); got != int64(4) {
		t.Errorf("Inverse(4.0) = %v (%T), want int64(4)", got, got)
	}

	// A fractional float must not be truncated. Inverse leaves it alone
	// and the following Coerce rejects it.
	wire := key.Inverse(4.7)
	if wire != 4.7 {
		t.Fatalf("Inverse(4.7) = %v (%T), want the value untouched", wire, wire)
	}
	if _, err := key.Coerce(wire); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Coerce(Inverse(4.7)) err = %v, want ErrInvalidValue", err)
	}
}

func TestPropertyKeyIdentity(t *testing.T) {
	a := NewPropertyKey(SectionState, "onoff", "v", TypeBool)
	b := NewPropertyKey(SectionState, "onoff", "v", TypeBool)
	c := NewPropertyKey(SectionConfig, "onoff", "v", TypeBool)

	if !a.Equal(b) {
		t.Error("keys with identical triple should be equal")
	}
	if a.Equal(c) {
		t.Error("keys in different sections should not be equal")
	}
	if got := a.String(); got != "s/onoff/v" {
		t.Errorf("String() = %q, want %q", got, "s/onoff/v")
	}
}

func TestParseSection(t *testing.T) {
	for _, form := range []string{"s", "state"} {
		got, err := ParseSection(form)
		if err != nil || got != SectionState {
			t.Errorf("ParseSection(%q) = %v, %v; want state", form, got, err)
		}
	}
	if _, err := ParseSection("settings"); !errors.Is(err, ErrInvalidSection) {
		t.Errorf("ParseSection(settings) err = %v, want ErrInvalidSection", err)
	}
}

func TestMethodKeyWireForm(t *testing.T) {
	k := NewMethodKey("scene", "save", TypeChild)
	if got := k.String(); got != "scene?save" {
		t.Errorf("String() = %q, want %q", got, "scene?save")
	}
	if !k.ReturnsChild() {
		t.Error("ReturnsChild() = false, want true")
	}
	if _, err := k.Coerce(map[string]any{}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("coercing a child-returning method should fail, got %v", err)
	}
}
