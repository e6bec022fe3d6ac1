package mqtt

import "fmt"

// Topic prefixes for the Weft message bus.
//
// Endpoint traffic uses a flat scheme rooted at the hosting endpoint:
// requests are routed by endpoint identifier, while responses and
// observation notifications are routed by correlation identifier so a
// requester only ever subscribes to its own reply streams.
const (
	// TopicPrefix is the base for all Weft topics.
	TopicPrefix = "weft"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "weft/system"
)

// Topics provides builders for Weft MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	reqTopic := topics.Request("lamp-kitchen")
//	// Returns: "weft/rq/lamp-kitchen"
type Topics struct{}

// Request returns the topic a hosting node listens on for requests
// addressed to one of its functional endpoints.
//
// Example: weft/rq/lamp-kitchen
func (Topics) Request(endpointID string) string {
	return fmt.Sprintf("%s/rq/%s", TopicPrefix, endpointID)
}

// Response returns the reply topic for a single request.
// The requester subscribes before publishing and unsubscribes after
// the response arrives.
//
// Example: weft/rs/9f41b2c0
func (Topics) Response(correlationID string) string {
	return fmt.Sprintf("%s/rs/%s", TopicPrefix, correlationID)
}

// Notify returns the notification stream topic for an observation.
// The hosting node publishes one message per property change until the
// observation is cancelled.
//
// Example: weft/nt/9f41b2c0
func (Topics) Notify(correlationID string) string {
	return fmt.Sprintf("%s/nt/%s", TopicPrefix, correlationID)
}

// Discover returns the broadcast topic for discovery requests.
// Every hosting node subscribes to it.
//
// Example: weft/dc
func (Topics) Discover() string {
	return fmt.Sprintf("%s/dc", TopicPrefix)
}

// DiscoverReply returns the topic a node answers a discovery request on.
//
// Example: weft/dr/9f41b2c0
func (Topics) DiscoverReply(correlationID string) string {
	return fmt.Sprintf("%s/dr/%s", TopicPrefix, correlationID)
}

// SystemStatus returns the node status topic used for LWT and
// online/offline announcements.
//
// Example: weft/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllRequests returns a pattern matching requests for any endpoint.
// Useful for bus-level diagnostics only.
//
// Pattern: weft/rq/+
func (Topics) AllRequests() string {
	return fmt.Sprintf("%s/rq/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Weft topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: weft/#
func (Topics) AllTopics() string {
	return "weft/#"
}
