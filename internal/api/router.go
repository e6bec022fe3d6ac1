package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weft-home/weft/internal/codec"
	"github.com/weft-home/weft/internal/transport"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.withRequestID)
	r.Use(s.withLogging)
	r.Use(s.withRecovery)
	r.Use(s.withCORS)
	r.Use(s.withBodyLimit)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Discovery
		r.Get("/endpoints", s.handleListEndpoints)

		// Endpoint resources, addressed the same way as on the wire:
		// /resources/{endpoint}/{section}/{trait}/{property-or-method}
		r.Route("/resources", func(r chi.Router) {
			r.Get("/*", s.handleResource)
			r.Put("/*", s.handleResource)
			r.Post("/*", s.handleResource)
			r.Delete("/*", s.handleResource)
		})

		// WebSocket for live property changes
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleListEndpoints returns discovery references for hosted endpoints,
// optionally narrowed by trait or technology query parameters.
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	filter := transport.Filter{
		Trait:      r.URL.Query().Get("trait"),
		Technology: r.URL.Query().Get("technology"),
	}
	refs := s.handler.Describe(filter)
	if refs == nil {
		refs = []transport.EndpointRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoints": refs,
		"count":     len(refs),
	})
}

// handleResource translates an HTTP request into a transport request and
// serves it through the protocol handler. Transport response codes follow
// the HTTP numbering, so the status passes through unchanged.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	path := "/" + chi.URLParam(r, "*")
	if path == "/" {
		writeBadRequest(w, "resource path is required")
		return
	}

	var payload []byte
	if r.Method == http.MethodPut || r.Method == http.MethodPost {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeBadRequest(w, "failed to read request body")
			return
		}
		payload = body
	}

	query := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	req := &transport.Request{
		Method:  transport.Method(r.Method),
		Path:    path,
		Query:   query,
		Payload: payload,
		Format:  requestFormat(r),
	}

	resp := s.handler.Serve(r.Context(), req)
	if resp == nil {
		writeInternalError(w, "no response from protocol handler")
		return
	}

	if len(resp.Payload) == 0 {
		if resp.Code.IsSuccess() {
			w.WriteHeader(int(resp.Code))
		} else {
			writeStatusError(w, int(resp.Code))
		}
		return
	}

	w.Header().Set("Content-Type", resp.Format.String())
	w.WriteHeader(int(resp.Code))
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(resp.Payload)
}

// requestFormat selects the wire format from the Content-Type header,
// falling back to Accept. HTTP clients default to JSON.
func requestFormat(r *http.Request) codec.Format {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = r.Header.Get("Accept")
	}
	if ct == "" || ct == "*/*" {
		return codec.FormatJSON
	}
	return codec.ParseFormat(ct)
}
