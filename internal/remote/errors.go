package remote

import "errors"

// ErrRequestFailed is returned when the hosting node answers with an
// error code that maps to no more specific endpoint error.
var ErrRequestFailed = errors.New("remote: request failed")

// ErrBadResult is returned when a response payload cannot be decoded
// into the shape the operation requires.
var ErrBadResult = errors.New("remote: malformed result payload")
