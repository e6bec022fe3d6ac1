package trait

import "errors"

// Domain errors for the trait package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, trait.ErrInvalidValue) {
//	    // handle coercion failure
//	}
var (
	// ErrInvalidValue is returned when a wire value cannot be coerced to a
	// key's declared type without loss.
	ErrInvalidValue = errors.New("trait: invalid value")

	// ErrInvalidSection is returned when a section name is not recognised.
	ErrInvalidSection = errors.New("trait: invalid section")

	// ErrInvalidType is returned when a value type name is not recognised.
	ErrInvalidType = errors.New("trait: invalid value type")
)
