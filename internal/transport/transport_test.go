package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/weft-home/weft/internal/codec"
)

// ─── Test Handler ────────────────────────────────────────────────────────────

// stubHandler records requests and serves canned responses.
type stubHandler struct {
	mu       sync.Mutex
	served   []*Request
	response *Response

	observers  []NotifyFunc
	observeErr error
	cancelled  int

	refs []EndpointRef
}

func (h *stubHandler) Serve(_ context.Context, req *Request) *Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.served = append(h.served, req)
	if h.response != nil {
		return h.response
	}
	return &Response{Code: CodeOK}
}

func (h *stubHandler) StartObserve(req *Request, notify NotifyFunc) (func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.observeErr != nil {
		return nil, h.observeErr
	}
	h.observers = append(h.observers, notify)
	return func() {
		h.mu.Lock()
		h.cancelled++
		h.mu.Unlock()
	}, nil
}

func (h *stubHandler) Describe(_ Filter) []EndpointRef {
	return h.refs
}

func (h *stubHandler) emit(n Notification) {
	h.mu.Lock()
	observers := append([]NotifyFunc(nil), h.observers...)
	h.mu.Unlock()
	for _, notify := range observers {
		notify(n)
	}
}

// ─── Request ─────────────────────────────────────────────────────────────────

func TestRequestTarget(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/lamp-kitchen/s/onoff/v", "lamp-kitchen"},
		{"/lamp-kitchen", "lamp-kitchen"},
		{"lamp-kitchen/s/onoff/v", "lamp-kitchen"},
		{"", ""},
	}

	for _, tt := range tests {
		req := &Request{Path: tt.path}
		if got := req.Target(); got != tt.want {
			t.Errorf("Target(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCodeIsSuccess(t *testing.T) {
	if !CodeOK.IsSuccess() || !CodeChanged.IsSuccess() {
		t.Error("2xx codes should be success")
	}
	if CodeNotFound.IsSuccess() || CodeInternal.IsSuccess() {
		t.Error("4xx/5xx codes should not be success")
	}
}

// ─── Loopback ────────────────────────────────────────────────────────────────

func TestLoopback_Send(t *testing.T) {
	h := &stubHandler{response: &Response{Code: CodeOK, Payload: []byte("x")}}
	conn := NewLoopback(h)
	defer conn.Close()

	rsp, err := conn.Send(context.Background(), &Request{
		Method: MethodGet,
		Path:   "/lamp-1/s/onoff/v",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if rsp.Code != CodeOK {
		t.Errorf("Code = %d, want %d", rsp.Code, CodeOK)
	}

	if len(h.served) != 1 {
		t.Fatalf("handler served %d requests, want 1", len(h.served))
	}
	if h.served[0].Target() != "lamp-1" {
		t.Errorf("served target = %q", h.served[0].Target())
	}
}

func TestLoopback_SendCancelledContext(t *testing.T) {
	conn := NewLoopback(&stubHandler{})
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.Send(ctx, &Request{Method: MethodGet, Path: "/lamp-1/s/onoff/v"})
	if !errors.Is(err, ErrCancelled) {
		t.Errorf("Send() error = %v, want ErrCancelled", err)
	}
}

func TestLoopback_SendAfterClose(t *testing.T) {
	conn := NewLoopback(&stubHandler{})
	conn.Close()

	_, err := conn.Send(context.Background(), &Request{Method: MethodGet, Path: "/x"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestLoopback_Observe(t *testing.T) {
	h := &stubHandler{}
	conn := NewLoopback(h)
	defer conn.Close()

	var mu sync.Mutex
	var got []Notification

	obs, err := conn.Observe(context.Background(), &Request{
		Method: MethodGet,
		Path:   "/lamp-1/s/onoff/v",
	}, func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	h.emit(Notification{Payload: []byte("a"), Sequence: 1})
	h.emit(Notification{Payload: []byte("b"), Sequence: 2})

	mu.Lock()
	if len(got) != 2 {
		t.Fatalf("received %d notifications, want 2", len(got))
	}
	if got[1].Sequence != 2 {
		t.Errorf("Sequence = %d, want 2", got[1].Sequence)
	}
	mu.Unlock()

	obs.Cancel()
	if h.cancelled != 1 {
		t.Errorf("cancelled = %d, want 1", h.cancelled)
	}

	// Cancel is idempotent.
	obs.Cancel()
	if h.cancelled != 1 {
		t.Errorf("cancelled after second Cancel = %d, want 1", h.cancelled)
	}
}

func TestLoopback_ObserveRejected(t *testing.T) {
	h := &stubHandler{observeErr: errors.New("no such property")}
	conn := NewLoopback(h)
	defer conn.Close()

	_, err := conn.Observe(context.Background(), &Request{Path: "/x/s/y/v"}, func(Notification) {})
	if err == nil {
		t.Fatal("Observe() expected error, got nil")
	}
}

func TestLoopback_Discover(t *testing.T) {
	h := &stubHandler{refs: []EndpointRef{
		{ID: "lamp-1", Node: "node-a", Traits: []string{"onoff"}},
		{ID: "lamp-2", Node: "node-a", Traits: []string{"onoff", "level"}},
	}}
	conn := NewLoopback(h)
	defer conn.Close()

	refs, err := conn.Discover(context.Background(), Filter{Trait: "onoff"})
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(refs) != 2 {
		t.Errorf("Discover() returned %d refs, want 2", len(refs))
	}
}

// ─── Envelopes ───────────────────────────────────────────────────────────────

func TestRequestEnvelopeRoundTrip(t *testing.T) {
	req := &Request{
		Method:  MethodPut,
		Path:    "/lamp-1/s/level/v",
		Query:   map[string]string{"d": "2"},
		Payload: []byte{0x01, 0x02},
		Format:  codec.FormatCBOR,
	}

	data, err := encodeRequestEnvelope("corr-1", req)
	if err != nil {
		t.Fatalf("encodeRequestEnvelope() error = %v", err)
	}

	env, err := decodeRequestEnvelope(data)
	if err != nil {
		t.Fatalf("decodeRequestEnvelope() error = %v", err)
	}
	if env.Corr != "corr-1" {
		t.Errorf("Corr = %q", env.Corr)
	}

	got := env.request()
	if got.Method != MethodPut || got.Path != req.Path {
		t.Errorf("request() = %+v", got)
	}
	if got.Query["d"] != "2" {
		t.Errorf("Query = %v", got.Query)
	}
	if got.Format != codec.FormatCBOR {
		t.Errorf("Format = %v, want CBOR", got.Format)
	}
}

func TestResponseEnvelopeRoundTrip(t *testing.T) {
	rsp := &Response{Code: CodeOK, Payload: []byte("v"), Format: codec.FormatJSON}

	data, err := encodeResponseEnvelope("corr-2", rsp, 7)
	if err != nil {
		t.Fatalf("encodeResponseEnvelope() error = %v", err)
	}

	env, err := decodeResponseEnvelope(data)
	if err != nil {
		t.Fatalf("decodeResponseEnvelope() error = %v", err)
	}
	if env.Seq != 7 {
		t.Errorf("Seq = %d, want 7", env.Seq)
	}

	got := env.response()
	if got.Code != CodeOK {
		t.Errorf("Code = %d", got.Code)
	}
	if got.Format != codec.FormatJSON {
		t.Errorf("Format = %v, want JSON", got.Format)
	}
}

func TestDecodeRequestEnvelope_Malformed(t *testing.T) {
	if _, err := decodeRequestEnvelope([]byte("not json")); !errors.Is(err, ErrBadEnvelope) {
		t.Errorf("error = %v, want ErrBadEnvelope", err)
	}
	if _, err := decodeRequestEnvelope([]byte(`{"path":"/x"}`)); !errors.Is(err, ErrBadEnvelope) {
		t.Errorf("missing corr: error = %v, want ErrBadEnvelope", err)
	}
}
