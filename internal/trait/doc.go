// Package trait defines the typed property and method key model shared by
// every functional endpoint in Weft.
//
// A trait is a named bundle of related properties, methods, and children
// (for example "onoff", "level", "scene"). Properties are identified by a
// PropertyKey scoping them to a section (state, config, or metadata) and a
// trait; methods are identified by a MethodKey. Keys are constant values
// defined at trait-definition time and never mutated.
//
// # Key Types
//
//   - Section: closed enumeration of property sections (state/config/metadata)
//   - ValueType: the declared wire type of a property or method return
//   - PropertyKey: (section, trait, property, type) identity for a property
//   - MethodKey: (trait, method, type) identity for an invokable method
//
// # Coercion
//
// Values crossing the wire arrive as loosely typed decoded values (float64,
// int64, bool, string, []any, map[string]any). Coerce converts a wire value
// to a key's declared type. Coercion is total for well-formed values and
// fails explicitly otherwise: a float is never silently truncated to an
// integer and incompatible types are rejected with ErrInvalidValue.
//
// # Thread Safety
//
// Keys are immutable values; all functions in this package are pure and safe
// for concurrent use.
package trait
