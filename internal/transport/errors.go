package transport

import "errors"

// Domain-specific errors for transport operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTimeout is returned when a request receives no response
	// within the deadline.
	ErrTimeout = errors.New("transport: request timed out")

	// ErrCancelled is returned when the caller's context is cancelled
	// before a response arrives.
	ErrCancelled = errors.New("transport: request cancelled")

	// ErrNotConnected is returned when the carrier has no usable
	// connection to the bus.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrObserveRejected is returned when the hosting node refuses an
	// observation request.
	ErrObserveRejected = errors.New("transport: observation rejected")

	// ErrBadEnvelope is returned when a received message cannot be
	// decoded as a transport envelope.
	ErrBadEnvelope = errors.New("transport: malformed envelope")
)
