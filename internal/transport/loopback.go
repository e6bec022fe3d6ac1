package transport

import (
	"context"
	"sync"
)

// Loopback is an in-process Conn that delivers requests directly to a
// Handler. It is used for same-node endpoint access and for tests.
//
// Requests are served on the caller's goroutine. Observation
// notifications arrive on whatever goroutine the handler emits them
// from.
type Loopback struct {
	handler Handler

	mu     sync.Mutex
	closed bool
}

// NewLoopback returns a Loopback delivering to handler.
func NewLoopback(handler Handler) *Loopback {
	return &Loopback{handler: handler}
}

// Send implements Conn.
func (l *Loopback) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := l.check(ctx); err != nil {
		return nil, err
	}
	return l.handler.Serve(ctx, req), nil
}

// Observe implements Conn.
func (l *Loopback) Observe(ctx context.Context, req *Request, notify NotifyFunc) (*Observation, error) {
	if err := l.check(ctx); err != nil {
		return nil, err
	}
	cancel, err := l.handler.StartObserve(req, notify)
	if err != nil {
		return nil, err
	}
	return &Observation{cancel: cancel}, nil
}

// Discover implements Conn.
func (l *Loopback) Discover(ctx context.Context, filter Filter) ([]EndpointRef, error) {
	if err := l.check(ctx); err != nil {
		return nil, err
	}
	return l.handler.Describe(filter), nil
}

// Close implements Conn.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *Loopback) check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrNotConnected
	}
	return nil
}
