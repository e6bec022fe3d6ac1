package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/weft-home/weft/internal/infrastructure/mqtt"
)

// Responder is the hosting side of the MQTT carrier. It subscribes the
// request topics of the endpoints a Handler hosts, dispatches incoming
// requests to it, and ships responses and observation notifications
// back on correlation-scoped topics.
type Responder struct {
	client  *mqtt.Client
	topics  mqtt.Topics
	qos     byte
	node    string
	handler Handler
	logger  Logger

	mu           sync.Mutex
	observations map[string]func() // correlation id -> cancel
	closed       bool
}

// NewResponder binds handler to the bus for the named node.
func NewResponder(client *mqtt.Client, node string, qos byte, handler Handler) *Responder {
	return &Responder{
		client:       client,
		qos:          qos,
		node:         node,
		handler:      handler,
		observations: make(map[string]func()),
	}
}

// SetLogger sets a logger for dispatch diagnostics.
func (r *Responder) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

func (r *Responder) getLogger() Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logger
}

// ServeEndpoint starts answering requests addressed to the endpoint.
func (r *Responder) ServeEndpoint(endpointID string) error {
	return r.client.Subscribe(r.topics.Request(endpointID), r.qos, r.handleRequest)
}

// ReleaseEndpoint stops answering requests addressed to the endpoint.
// Live observations on it keep running until cancelled or Close.
func (r *Responder) ReleaseEndpoint(endpointID string) error {
	return r.client.Unsubscribe(r.topics.Request(endpointID))
}

// ServeDiscovery starts answering discovery broadcasts with the
// handler's endpoint descriptions.
func (r *Responder) ServeDiscovery() error {
	return r.client.Subscribe(r.topics.Discover(), r.qos, r.handleDiscover)
}

// Close cancels all live observations.
func (r *Responder) Close() {
	r.mu.Lock()
	cancels := make([]func(), 0, len(r.observations))
	for _, cancel := range r.observations {
		cancels = append(cancels, cancel)
	}
	r.observations = make(map[string]func())
	r.closed = true
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// handleRequest dispatches one message from an endpoint request topic.
func (r *Responder) handleRequest(_ string, payload []byte) error {
	env, err := decodeRequestEnvelope(payload)
	if err != nil {
		return err
	}

	switch {
	case env.Cancel:
		r.cancelObservation(env.Corr)
		return nil
	case env.Observe:
		return r.startObservation(env)
	default:
		rsp := r.handler.Serve(context.Background(), env.request())
		return r.publishResponse(env.Corr, rsp, 0)
	}
}

// startObservation attaches a notification stream and acknowledges it.
func (r *Responder) startObservation(env *requestEnvelope) error {
	corr := env.Corr
	notifyTopic := r.topics.Notify(corr)

	notify := func(n Notification) {
		rsp := &Response{Code: CodeOK, Payload: n.Payload, Format: n.Format}
		data, err := encodeResponseEnvelope(corr, rsp, n.Sequence)
		if err != nil {
			return
		}
		if perr := r.client.Publish(notifyTopic, data, r.qos, false); perr != nil {
			if logger := r.getLogger(); logger != nil {
				logger.Warn("notification not delivered", "topic", notifyTopic, "error", perr)
			}
		}
	}

	cancel, err := r.handler.StartObserve(env.request(), notify)
	if err != nil {
		return r.publishResponse(corr, &Response{Code: CodeNotFound}, 0)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return r.publishResponse(corr, &Response{Code: CodeUnavailable}, 0)
	}
	r.observations[corr] = cancel
	r.mu.Unlock()

	return r.publishResponse(corr, &Response{Code: CodeOK}, 0)
}

// cancelObservation tears down the stream registered under corr.
// Unknown correlation ids are ignored: the cancel may race a Close.
func (r *Responder) cancelObservation(corr string) {
	r.mu.Lock()
	cancel, ok := r.observations[corr]
	delete(r.observations, corr)
	r.mu.Unlock()

	if ok {
		cancel()
	}
}

// handleDiscover answers a discovery broadcast.
func (r *Responder) handleDiscover(_ string, payload []byte) error {
	var env discoverEnvelope
	if err := decodeJSON(payload, &env); err != nil {
		return err
	}
	if env.Corr == "" {
		return fmt.Errorf("%w: missing correlation id", ErrBadEnvelope)
	}

	refs := r.handler.Describe(Filter{Trait: env.Trait, Technology: env.Technology})
	if len(refs) == 0 {
		// Nothing hosted here matches; stay silent rather than adding
		// empty replies to the collection window.
		return nil
	}

	reply := discoverReplyEnvelope{
		Corr:      env.Corr,
		Node:      r.node,
		Endpoints: refs,
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("transport: encoding discovery reply: %w", err)
	}
	return r.client.Publish(r.topics.DiscoverReply(env.Corr), data, r.qos, false)
}

func (r *Responder) publishResponse(corr string, rsp *Response, seq uint64) error {
	data, err := encodeResponseEnvelope(corr, rsp, seq)
	if err != nil {
		return err
	}
	return r.client.Publish(r.topics.Response(corr), data, r.qos, false)
}
