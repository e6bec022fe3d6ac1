package endpoint

import "errors"

// Domain errors for the endpoint package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, endpoint.ErrPropertyNotFound) {
//	    // handle unsupported property
//	}
var (
	// ErrPropertyNotFound is returned when an endpoint does not support the
	// requested property key.
	ErrPropertyNotFound = errors.New("endpoint: property not found")

	// ErrPropertyReadOnly is returned when writing a property that cannot
	// be set.
	ErrPropertyReadOnly = errors.New("endpoint: property read-only")

	// ErrInvalidOperation is returned when a modifier operation does not
	// apply to the property's type (toggling a string, inserting into a
	// scalar).
	ErrInvalidOperation = errors.New("endpoint: operation not valid for property")

	// ErrMethodNotFound is returned when an endpoint does not support the
	// requested method key.
	ErrMethodNotFound = errors.New("endpoint: method not found")

	// ErrInvalidMethodArguments is returned when method arguments fail
	// validation.
	ErrInvalidMethodArguments = errors.New("endpoint: invalid method arguments")

	// ErrChildNotFound is returned when a child endpoint lookup fails.
	ErrChildNotFound = errors.New("endpoint: child not found")

	// ErrDeleted is returned when operating on an endpoint that has been
	// deleted.
	ErrDeleted = errors.New("endpoint: deleted")
)
