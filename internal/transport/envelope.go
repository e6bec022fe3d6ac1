package transport

import (
	"encoding/json"
	"fmt"

	"github.com/weft-home/weft/internal/codec"
)

// Wire envelopes for the MQTT carrier. The envelope itself is JSON so
// the bus stays inspectable with standard tooling; the resource payload
// inside it is opaque bytes in whatever Format the request negotiated.

// requestEnvelope carries a request or an observation cancel to the
// hosting node's request topic.
type requestEnvelope struct {
	Corr    string            `json:"corr"`
	Method  string            `json:"method,omitempty"`
	Path    string            `json:"path,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Format  string            `json:"format,omitempty"`
	Payload []byte            `json:"payload,omitempty"`
	Observe bool              `json:"observe,omitempty"`
	Cancel  bool              `json:"cancel,omitempty"`
}

// responseEnvelope carries a response or an observation notification
// back on a correlation-scoped topic.
type responseEnvelope struct {
	Corr    string `json:"corr"`
	Code    int    `json:"code"`
	Format  string `json:"format,omitempty"`
	Payload []byte `json:"payload,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
}

// discoverEnvelope is broadcast to every hosting node.
type discoverEnvelope struct {
	Corr       string `json:"corr"`
	Trait      string `json:"trait,omitempty"`
	Technology string `json:"technology,omitempty"`
}

// discoverReplyEnvelope is one node's answer to a discovery broadcast.
type discoverReplyEnvelope struct {
	Corr      string        `json:"corr"`
	Node      string        `json:"node"`
	Endpoints []EndpointRef `json:"endpoints"`
}

func encodeRequestEnvelope(corr string, req *Request) ([]byte, error) {
	env := requestEnvelope{
		Corr:    corr,
		Method:  string(req.Method),
		Path:    req.Path,
		Query:   req.Query,
		Format:  req.Format.String(),
		Payload: req.Payload,
		Observe: req.Observe,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding request envelope: %w", err)
	}
	return data, nil
}

func decodeRequestEnvelope(data []byte) (*requestEnvelope, error) {
	var env requestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	if env.Corr == "" {
		return nil, fmt.Errorf("%w: missing correlation id", ErrBadEnvelope)
	}
	return &env, nil
}

// request reconstructs the transport Request the envelope carries.
func (e *requestEnvelope) request() *Request {
	return &Request{
		Method:  Method(e.Method),
		Path:    e.Path,
		Query:   e.Query,
		Payload: e.Payload,
		Format:  codec.ParseFormat(e.Format),
		Observe: e.Observe,
	}
}

func encodeResponseEnvelope(corr string, rsp *Response, seq uint64) ([]byte, error) {
	env := responseEnvelope{
		Corr:    corr,
		Code:    int(rsp.Code),
		Format:  rsp.Format.String(),
		Payload: rsp.Payload,
		Seq:     seq,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding response envelope: %w", err)
	}
	return data, nil
}

func decodeResponseEnvelope(data []byte) (*responseEnvelope, error) {
	var env responseEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	return &env, nil
}

// response reconstructs the transport Response the envelope carries.
func (e *responseEnvelope) response() *Response {
	return &Response{
		Code:    Code(e.Code),
		Payload: e.Payload,
		Format:  codec.ParseFormat(e.Format),
	}
}

func encodeCancelEnvelope(env requestEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding cancel envelope: %w", err)
	}
	return data, nil
}

func encodeDiscoverEnvelope(env discoverEnvelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("transport: encoding discovery envelope: %w", err)
	}
	return data, nil
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadEnvelope, err)
	}
	return nil
}
