package trait

import "fmt"

// ValueType is the declared type of a property value or method return.
type ValueType string

const (
	TypeFloat  ValueType = "float"
	TypeInt    ValueType = "int"
	TypeBool   ValueType = "bool"
	TypeString ValueType = "string"
	TypeArray  ValueType = "array"
	TypeMap    ValueType = "map"

	// TypeChild marks a method return that is a created or updated child
	// endpoint rather than a plain value. Only valid on MethodKey.
	TypeChild ValueType = "child"
)

// ParseValueType converts a type name into a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch ValueType(s) {
	case TypeFloat, TypeInt, TypeBool, TypeString, TypeArray, TypeMap, TypeChild:
		return ValueType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// PropertyKey identifies a single typed property on a functional endpoint.
//
// Uniqueness is the (Section, Trait, Name) triple: two keys with the same
// triple are equal regardless of where they were declared. Keys are constant
// values defined at trait-definition time.
type PropertyKey struct {
	Section Section
	Trait   string
	Name    string
	Type    ValueType
}

// NewPropertyKey constructs a PropertyKey. Intended for trait definitions:
//
//	var KeyOnOffValue = trait.NewPropertyKey(trait.SectionState, "onoff", "v", trait.TypeBool)
func NewPropertyKey(section Section, traitID, name string, typ ValueType) PropertyKey {
	return PropertyKey{Section: section, Trait: traitID, Name: name, Type: typ}
}

// String returns the flattened wire form "section/trait/name", used as the
// cache key and the tail of a property resource path.
func (k PropertyKey) String() string {
	return string(k.Section) + "/" + k.Trait + "/" + k.Name
}

// Equal reports whether two keys identify the same property.
// The declared type does not participate in identity.
func (k PropertyKey) Equal(other PropertyKey) bool {
	return k.Section == other.Section && k.Trait == other.Trait && k.Name == other.Name
}

// IsInSection reports whether the key belongs to the given section.
func (k PropertyKey) IsInSection(s Section) bool {
	return k.Section == s
}

// Zero reports whether the key is the zero value.
func (k PropertyKey) Zero() bool {
	return k.Trait == "" && k.Name == ""
}

// MethodKey identifies an invokable method on a functional endpoint.
//
// Methods live outside the section model; on the wire they are addressed
// with a "?" separator ("f/{trait}?{method}") instead of a property path
// component, which is what distinguishes invocation from property access.
type MethodKey struct {
	Trait string
	Name  string
	Type  ValueType
}

// NewMethodKey constructs a MethodKey.
func NewMethodKey(traitID, name string, typ ValueType) MethodKey {
	return MethodKey{Trait: traitID, Name: name, Type: typ}
}

// String returns the wire form "trait?method".
func (k MethodKey) String() string {
	return k.Trait + "?" + k.Name
}

// ReturnsChild reports whether the method's return is a child endpoint
// reference rather than a plain value.
func (k MethodKey) ReturnsChild() bool {
	return k.Type == TypeChild
}
