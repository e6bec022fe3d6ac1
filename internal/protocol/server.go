package protocol

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/weft-home/weft/internal/codec"
	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/trait"
	"github.com/weft-home/weft/internal/transport"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Host resolves endpoint identifiers to live endpoints. The technology
// registry implements it.
type Host interface {
	// Lookup returns the endpoint hosted under id.
	Lookup(id string) (endpoint.FunctionalEndpoint, bool)

	// Refs describes the hosted endpoints matching the filter.
	Refs(filter transport.Filter) []transport.EndpointRef
}

// Server serves the endpoint addressing scheme over a transport. It is
// the Handler a Responder or Loopback delivers requests to.
type Server struct {
	host   Host
	logger Logger
}

var _ transport.Handler = (*Server)(nil)

// NewServer creates a Server resolving endpoints through host.
func NewServer(host Host) *Server {
	return &Server{host: host, logger: noopLogger{}}
}

// SetLogger sets the logger for request diagnostics.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Serve implements transport.Handler.
func (s *Server) Serve(ctx context.Context, req *transport.Request) *transport.Response {
	addr, err := ParseAddress(req.Path)
	if err != nil {
		return &transport.Response{Code: transport.CodeBadRequest}
	}

	fe, ok := s.host.Lookup(addr.Endpoint)
	if !ok {
		return &transport.Response{Code: transport.CodeNotFound}
	}

	switch req.Method {
	case transport.MethodGet:
		return s.serveGet(ctx, fe, addr, req.Format)
	case transport.MethodPut:
		return s.servePut(ctx, fe, addr, req)
	case transport.MethodPost:
		return s.servePost(ctx, fe, addr, req)
	case transport.MethodDelete:
		return s.serveDelete(ctx, fe, addr)
	default:
		return &transport.Response{Code: transport.CodeMethodNotAllowed}
	}
}

func (s *Server) serveGet(ctx context.Context, fe endpoint.FunctionalEndpoint, addr Address, format codec.Format) *transport.Response {
	var value any
	var err error

	switch addr.Kind {
	case KindProperty:
		value, err = fe.Fetch(ctx, addr.PropertyKey())
	case KindSection:
		value, err = fe.FetchSection(ctx, addr.Section)
	case KindEndpoint:
		value, err = fetchAllSections(ctx, fe)
	default:
		return &transport.Response{Code: transport.CodeMethodNotAllowed}
	}
	if err != nil {
		return errorResponse(err)
	}
	return encodeResponse(value, format)
}

// fetchAllSections snapshots the whole endpoint, one flat map per
// section keyed by the short section name.
func fetchAllSections(ctx context.Context, fe endpoint.FunctionalEndpoint) (map[string]any, error) {
	out := make(map[string]any, 3)
	for _, section := range trait.AllSections() {
		contents, err := fe.FetchSection(ctx, section)
		if err != nil {
			return nil, err
		}
		out[string(section)] = contents
	}
	return out, nil
}

func (s *Server) servePut(ctx context.Context, fe endpoint.FunctionalEndpoint, addr Address, req *transport.Request) *transport.Response {
	if addr.Kind != KindProperty {
		return &transport.Response{Code: transport.CodeMethodNotAllowed}
	}
	mods, err := ParseModifiers(req.Query)
	if err != nil {
		return &transport.Response{Code: transport.CodeBadRequest}
	}

	var value any
	if mods.Op != OpToggle {
		value, err = codec.Decode(req.Payload, req.Format)
		if err != nil {
			return &transport.Response{Code: transport.CodeBadRequest}
		}
	}

	var opts []endpoint.Option
	if mods.Duration > 0 {
		opts = append(opts, endpoint.WithDuration(mods.Duration))
	}
	if mods.Origin != "" {
		opts = append(opts, endpoint.WithOrigin(mods.Origin))
	}

	key := addr.PropertyKey()
	switch mods.Op {
	case OpSet:
		err = fe.Set(ctx, key, value, opts...)
	case OpIncrement:
		err = fe.Increment(ctx, key, value, opts...)
	case OpToggle:
		err = fe.Toggle(ctx, key, opts...)
	case OpInsert:
		err = fe.Insert(ctx, key, value, opts...)
	case OpRemove:
		err = fe.Remove(ctx, key, value, opts...)
	}
	if err != nil {
		return errorResponse(err)
	}
	return &transport.Response{Code: transport.CodeChanged}
}

func (s *Server) servePost(ctx context.Context, fe endpoint.FunctionalEndpoint, addr Address, req *transport.Request) *transport.Response {
	if addr.Kind != KindMethod {
		return &transport.Response{Code: transport.CodeMethodNotAllowed}
	}

	var args map[string]any
	if len(req.Payload) > 0 {
		decoded, err := codec.Decode(req.Payload, req.Format)
		if err != nil {
			return &transport.Response{Code: transport.CodeBadRequest}
		}
		m, ok := decoded.(map[string]any)
		if !ok {
			return &transport.Response{Code: transport.CodeBadRequest}
		}
		args = m
	}

	result, err := fe.Invoke(ctx, addr.MethodKey(), args)
	if err != nil {
		return errorResponse(err)
	}

	// Child results travel as a reference the caller can address.
	if result.Child != nil {
		return encodeResponse(map[string]any{"child": result.Child.ID()}, req.Format)
	}
	return encodeResponse(result.Value, req.Format)
}

func (s *Server) serveDelete(ctx context.Context, fe endpoint.FunctionalEndpoint, addr Address) *transport.Response {
	if addr.Kind != KindEndpoint {
		return &transport.Response{Code: transport.CodeMethodNotAllowed}
	}
	existed, err := fe.Delete(ctx)
	if err != nil {
		return errorResponse(err)
	}
	if !existed {
		return &transport.Response{Code: transport.CodeGone}
	}
	return &transport.Response{Code: transport.CodeChanged}
}

// StartObserve implements transport.Handler. Property observations emit
// the current value first and one notification per change after;
// section observations emit the section snapshot on any change within
// it.
func (s *Server) StartObserve(req *transport.Request, notify transport.NotifyFunc) (func(), error) {
	addr, err := ParseAddress(req.Path)
	if err != nil {
		return nil, err
	}
	fe, ok := s.host.Lookup(addr.Endpoint)
	if !ok {
		return nil, endpoint.ErrPropertyNotFound
	}

	var seq atomic.Uint64
	emit := func(value any) {
		payload, err := codec.Encode(value, req.Format)
		if err != nil {
			s.logger.Warn("observation value not encodable", "path", req.Path, "error", err)
			return
		}
		notify(transport.Notification{
			Payload:  payload,
			Format:   req.Format,
			Sequence: seq.Add(1),
		})
	}

	switch addr.Kind {
	case KindProperty:
		key := addr.PropertyKey()
		current, err := fe.Fetch(context.Background(), key)
		if err != nil {
			return nil, err
		}
		lst := fe.AddPropertyListener(key, func(_ endpoint.FunctionalEndpoint, _ trait.PropertyKey, value any) {
			emit(value)
		})
		emit(current)
		return func() { fe.RemoveListener(lst) }, nil

	case KindSection:
		current, err := fe.FetchSection(context.Background(), addr.Section)
		if err != nil {
			return nil, err
		}
		lst := fe.AddSectionListener(addr.Section, func(_ endpoint.FunctionalEndpoint, _ trait.Section, contents map[string]any) {
			emit(contents)
		})
		emit(current)
		return func() { fe.RemoveListener(lst) }, nil

	default:
		return nil, endpoint.ErrInvalidOperation
	}
}

// Describe implements transport.Handler.
func (s *Server) Describe(filter transport.Filter) []transport.EndpointRef {
	return s.host.Refs(filter)
}

// errorResponse maps endpoint errors onto response codes.
func errorResponse(err error) *transport.Response {
	switch {
	case errors.Is(err, endpoint.ErrPropertyNotFound),
		errors.Is(err, endpoint.ErrMethodNotFound),
		errors.Is(err, endpoint.ErrChildNotFound):
		return &transport.Response{Code: transport.CodeNotFound}
	case errors.Is(err, endpoint.ErrPropertyReadOnly):
		return &transport.Response{Code: transport.CodeForbidden}
	case errors.Is(err, endpoint.ErrDeleted):
		return &transport.Response{Code: transport.CodeGone}
	case errors.Is(err, endpoint.ErrInvalidOperation),
		errors.Is(err, endpoint.ErrInvalidMethodArguments),
		errors.Is(err, trait.ErrInvalidValue):
		return &transport.Response{Code: transport.CodeBadRequest}
	default:
		return &transport.Response{Code: transport.CodeInternal}
	}
}

// encodeResponse serialises a successful read or invocation result.
func encodeResponse(value any, format codec.Format) *transport.Response {
	payload, err := codec.Encode(value, format)
	if err != nil {
		return &transport.Response{Code: transport.CodeInternal}
	}
	return &transport.Response{Code: transport.CodeOK, Payload: payload, Format: format}
}
