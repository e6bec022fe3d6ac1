package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weft-home/weft/internal/infrastructure/mqtt"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Defaults applied when the config leaves a value zero.
const (
	defaultRequestTimeout = 10 * time.Second
	defaultDiscoverWindow = 3 * time.Second
)

// MQTTConnConfig tunes the MQTT carrier.
type MQTTConnConfig struct {
	// QoS for all carrier traffic (0, 1, or 2).
	QoS byte

	// RequestTimeout bounds Send and the Observe handshake when the
	// caller's context has no deadline.
	RequestTimeout time.Duration

	// DiscoverWindow is how long Discover collects replies when the
	// caller's context has no deadline.
	DiscoverWindow time.Duration
}

// MQTTConn is the requester side of the MQTT carrier.
//
// Each request subscribes a correlation-scoped reply topic before
// publishing, so responses cannot race the subscription. Observations
// additionally hold a notification topic open until cancelled.
type MQTTConn struct {
	client *mqtt.Client
	topics mqtt.Topics
	cfg    MQTTConnConfig
	logger Logger

	mu     sync.Mutex
	closed bool
}

// NewMQTTConn wraps an established MQTT client as a Conn.
func NewMQTTConn(client *mqtt.Client, cfg MQTTConnConfig) *MQTTConn {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.DiscoverWindow <= 0 {
		cfg.DiscoverWindow = defaultDiscoverWindow
	}
	return &MQTTConn{
		client: client,
		cfg:    cfg,
	}
}

// SetLogger sets a logger for carrier diagnostics.
func (c *MQTTConn) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *MQTTConn) getLogger() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Send implements Conn.
func (c *MQTTConn) Send(ctx context.Context, req *Request) (*Response, error) {
	if !c.client.IsConnected() {
		return nil, ErrNotConnected
	}

	corr := uuid.NewString()
	replyTopic := c.topics.Response(corr)
	replies := make(chan *responseEnvelope, 1)

	err := c.client.Subscribe(replyTopic, c.cfg.QoS, func(_ string, payload []byte) error {
		env, err := decodeResponseEnvelope(payload)
		if err != nil {
			return err
		}
		select {
		case replies <- env:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transport: subscribing reply topic: %w", err)
	}
	defer c.client.Unsubscribe(replyTopic)

	data, err := encodeRequestEnvelope(corr, req)
	if err != nil {
		return nil, err
	}
	if err := c.client.Publish(c.topics.Request(req.Target()), data, c.cfg.QoS, false); err != nil {
		return nil, fmt.Errorf("transport: publishing request: %w", err)
	}

	return c.awaitReply(ctx, replies)
}

// awaitReply waits for a response envelope, honouring the context
// deadline or the default request timeout, whichever is tighter.
func (c *MQTTConn) awaitReply(ctx context.Context, replies <-chan *responseEnvelope) (*Response, error) {
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case env := <-replies:
		return env.response(), nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ErrCancelled
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Observe implements Conn.
//
// The hosting node acknowledges the observation on the reply topic,
// then streams notifications on the notification topic until
// cancelled. The current value arrives as the first notification.
func (c *MQTTConn) Observe(ctx context.Context, req *Request, notify NotifyFunc) (*Observation, error) {
	if !c.client.IsConnected() {
		return nil, ErrNotConnected
	}

	corr := uuid.NewString()
	replyTopic := c.topics.Response(corr)
	notifyTopic := c.topics.Notify(corr)
	replies := make(chan *responseEnvelope, 1)

	err := c.client.Subscribe(replyTopic, c.cfg.QoS, func(_ string, payload []byte) error {
		env, err := decodeResponseEnvelope(payload)
		if err != nil {
			return err
		}
		select {
		case replies <- env:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transport: subscribing reply topic: %w", err)
	}

	err = c.client.Subscribe(notifyTopic, c.cfg.QoS, func(_ string, payload []byte) error {
		env, err := decodeResponseEnvelope(payload)
		if err != nil {
			return err
		}
		notify(Notification{
			Payload:  env.Payload,
			Format:   env.response().Format,
			Sequence: env.Seq,
		})
		return nil
	})
	if err != nil {
		c.client.Unsubscribe(replyTopic)
		return nil, fmt.Errorf("transport: subscribing notify topic: %w", err)
	}

	teardown := func() {
		c.client.Unsubscribe(replyTopic)
		c.client.Unsubscribe(notifyTopic)
	}

	obsReq := *req
	obsReq.Observe = true
	data, err := encodeRequestEnvelope(corr, &obsReq)
	if err != nil {
		teardown()
		return nil, err
	}
	target := c.topics.Request(req.Target())
	if err := c.client.Publish(target, data, c.cfg.QoS, false); err != nil {
		teardown()
		return nil, fmt.Errorf("transport: publishing observe request: %w", err)
	}

	rsp, err := c.awaitReply(ctx, replies)
	if err != nil {
		teardown()
		return nil, err
	}
	if !rsp.Code.IsSuccess() {
		teardown()
		return nil, fmt.Errorf("%w: code %d", ErrObserveRejected, rsp.Code)
	}

	cancel := func() {
		env := requestEnvelope{Corr: corr, Cancel: true}
		if data, err := encodeCancelEnvelope(env); err == nil {
			if perr := c.client.Publish(target, data, c.cfg.QoS, false); perr != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Warn("observation cancel not delivered", "error", perr)
				}
			}
		}
		teardown()
	}

	return &Observation{cancel: cancel}, nil
}

// Discover implements Conn.
func (c *MQTTConn) Discover(ctx context.Context, filter Filter) ([]EndpointRef, error) {
	if !c.client.IsConnected() {
		return nil, ErrNotConnected
	}

	corr := uuid.NewString()
	replyTopic := c.topics.DiscoverReply(corr)

	var mu sync.Mutex
	var refs []EndpointRef

	err := c.client.Subscribe(replyTopic, c.cfg.QoS, func(_ string, payload []byte) error {
		var env discoverReplyEnvelope
		if err := decodeJSON(payload, &env); err != nil {
			return err
		}
		mu.Lock()
		refs = append(refs, env.Endpoints...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transport: subscribing discovery reply topic: %w", err)
	}
	defer c.client.Unsubscribe(replyTopic)

	env := discoverEnvelope{
		Corr:       corr,
		Trait:      filter.Trait,
		Technology: filter.Technology,
	}
	data, err := encodeDiscoverEnvelope(env)
	if err != nil {
		return nil, err
	}
	if err := c.client.Publish(c.topics.Discover(), data, c.cfg.QoS, false); err != nil {
		return nil, fmt.Errorf("transport: publishing discovery request: %w", err)
	}

	// Collect until the window closes. A deadline expiry is not an
	// error: whatever arrived is the answer.
	timer := time.NewTimer(c.cfg.DiscoverWindow)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrCancelled
		}
	case <-timer.C:
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]EndpointRef, len(refs))
	copy(out, refs)
	return out, nil
}

// Close implements Conn. The underlying MQTT client is shared and is
// not closed here.
func (c *MQTTConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
