//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/weft-home/weft/internal/infrastructure/config"
)

// These tests need a broker listening on 127.0.0.1:1883:
//
//   go test -tags=integration -count=1 ./internal/infrastructure/mqtt/...

func brokerConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func connectBroker(t *testing.T, clientID string) *Client {
	t.Helper()
	c, err := Connect(brokerConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIntegrationRequestRoundtrip(t *testing.T) {
	host := connectBroker(t, "weft-int-host")
	peer := connectBroker(t, "weft-int-peer")

	topic := Topics{}.Request("lamp-int")
	got := make(chan []byte, 1)
	if err := host.Subscribe(topic, 1, func(_ string, payload []byte) error {
		select {
		case got <- payload:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	want := []byte(`{"m":"get","p":"/lamp-int"}`)
	if err := peer.Publish(topic, want, 1, false); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case payload := <-got:
		if string(payload) != string(want) {
			t.Errorf("payload = %s, want %s", payload, want)
		}
	case <-time.After(5 * time.Second):
		t.Error("request never arrived")
	}
}

func TestIntegrationSubscriptionTracking(t *testing.T) {
	c := connectBroker(t, "weft-int-track")

	topics := []string{
		Topics{}.Request("lamp-a"),
		Topics{}.Request("lamp-b"),
		Topics{}.Discover(),
	}
	for _, topic := range topics {
		if err := c.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error: %v", topic, err)
		}
	}
	if n := c.SubscriptionCount(); n != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", n, len(topics))
	}

	if err := c.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if n := c.SubscriptionCount(); n != len(topics)-1 {
		t.Errorf("SubscriptionCount() after unsubscribe = %d, want %d", n, len(topics)-1)
	}
}

func TestIntegrationPresenceRetained(t *testing.T) {
	// The host announces itself with a retained message, so a watcher
	// connecting afterwards still sees it.
	connectBroker(t, "weft-int-presence")
	time.Sleep(200 * time.Millisecond)

	watcher := connectBroker(t, "weft-int-watcher")
	got := make(chan []byte, 1)
	if err := watcher.Subscribe(Topics{}.SystemStatus(), 1, func(_ string, payload []byte) error {
		select {
		case got <- payload:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	select {
	case payload := <-got:
		var p presence
		if err := json.Unmarshal(payload, &p); err != nil {
			t.Fatalf("presence is not JSON: %v", err)
		}
		if p.Status != "online" {
			t.Errorf("status = %q, want online", p.Status)
		}
	case <-time.After(5 * time.Second):
		t.Error("no retained presence message")
	}
}
