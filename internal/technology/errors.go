package technology

import "errors"

var (
	// ErrUnknownResource indicates a lookup for an identifier nothing is
	// hosted under.
	ErrUnknownResource = errors.New("technology: unknown resource")

	// ErrEndpointExists indicates an attempt to host an endpoint under an
	// identifier that is already taken.
	ErrEndpointExists = errors.New("technology: endpoint already hosted")
)
