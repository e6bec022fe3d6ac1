package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrPrimitiveExists) {
//	    // handle duplicate ID
//	}
var (
	// ErrPrimitiveNotFound is returned when a primitive ID does not exist.
	ErrPrimitiveNotFound = errors.New("automation: primitive not found")

	// ErrPrimitiveExists is returned when creating a primitive with an ID
	// that is already taken.
	ErrPrimitiveExists = errors.New("automation: primitive already exists")

	// ErrUnresolvableURI is returned when a property or method URI does
	// not resolve to a hosted endpoint.
	ErrUnresolvableURI = errors.New("automation: unresolvable uri")

	// ErrBadURI is returned when a URI does not address a property or
	// method.
	ErrBadURI = errors.New("automation: bad uri")
)
