package transport

import (
	"context"
	"strings"

	"github.com/weft-home/weft/internal/codec"
)

// Method identifies the operation a request performs on its path.
type Method string

// Request methods.
const (
	// MethodGet reads a property or section.
	MethodGet Method = "GET"

	// MethodPut writes a property, optionally with query modifiers
	// (increment, toggle, insert, remove, duration).
	MethodPut Method = "PUT"

	// MethodPost invokes a method on an endpoint.
	MethodPost Method = "POST"

	// MethodDelete deletes an endpoint.
	MethodDelete Method = "DELETE"
)

// Code classifies the outcome of a request.
type Code int

// Response codes. The numbering follows HTTP so API adapters can pass
// them through unchanged.
const (
	CodeOK               Code = 200
	CodeChanged          Code = 204
	CodeBadRequest       Code = 400
	CodeForbidden        Code = 403
	CodeNotFound         Code = 404
	CodeMethodNotAllowed Code = 405
	CodeGone             Code = 410
	CodeInternal         Code = 500
	CodeUnavailable      Code = 503
)

// IsSuccess reports whether the code indicates the request was served.
func (c Code) IsSuccess() bool {
	return c >= 200 && c < 300
}

// Request addresses a functional endpoint resource.
//
// Path follows the endpoint addressing scheme, for example
// "/lamp-kitchen/s/onoff/v". Query carries write modifiers such as
// "inc" or "d" (duration in seconds).
type Request struct {
	Method  Method
	Path    string
	Query   map[string]string
	Payload []byte
	Format  codec.Format
	Observe bool
}

// Target returns the endpoint identifier the request is addressed to,
// the first segment of the path. Empty if the path is malformed.
func (r *Request) Target() string {
	p := strings.TrimPrefix(r.Path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

// Response is the reply to a single request.
type Response struct {
	Code    Code
	Payload []byte
	Format  codec.Format
}

// Notification is one message on an observation stream.
//
// Sequence increases monotonically per observation so receivers can
// drop reordered stale notifications.
type Notification struct {
	Payload  []byte
	Format   codec.Format
	Sequence uint64
}

// NotifyFunc receives observation notifications. It is called from
// carrier goroutines and must not block.
type NotifyFunc func(n Notification)

// Observation is a live subscription to a resource. Cancel stops the
// stream and releases the hosting node's observer state. Cancel is
// idempotent.
type Observation struct {
	cancel func()
}

// Cancel terminates the observation.
func (o *Observation) Cancel() {
	if o != nil && o.cancel != nil {
		c := o.cancel
		o.cancel = nil
		c()
	}
}

// Filter narrows discovery to endpoints exposing a trait or belonging
// to a technology. Zero value matches everything.
type Filter struct {
	Trait      string
	Technology string
}

// EndpointRef describes a discovered endpoint.
type EndpointRef struct {
	ID         string   `json:"id"`
	Node       string   `json:"node"`
	Technology string   `json:"technology,omitempty"`
	Traits     []string `json:"traits,omitempty"`
}

// Conn is the requester side of the transport.
type Conn interface {
	// Send performs a single request and waits for its response.
	// The context deadline bounds the wait; without one the carrier's
	// default request timeout applies.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Observe establishes a notification stream for the requested
	// resource. The initial response semantics match Send; on success
	// notify receives subsequent changes until the observation is
	// cancelled.
	Observe(ctx context.Context, req *Request, notify NotifyFunc) (*Observation, error)

	// Discover broadcasts a lookup and collects endpoint descriptions
	// until the context deadline. Partial results are returned without
	// error when the deadline expires.
	Discover(ctx context.Context, filter Filter) ([]EndpointRef, error)

	// Close releases carrier resources.
	Close() error
}

// Handler is the hosting side of the transport. A carrier delivers
// decoded requests to it and ships its answers back.
type Handler interface {
	// Serve handles a single request.
	Serve(ctx context.Context, req *Request) *Response

	// StartObserve attaches a notification stream for the requested
	// resource. The returned cancel detaches it.
	StartObserve(req *Request, notify NotifyFunc) (cancel func(), err error)

	// Describe lists hosted endpoints matching the filter.
	Describe(filter Filter) []EndpointRef
}
