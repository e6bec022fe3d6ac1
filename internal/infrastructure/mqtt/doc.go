// Package mqtt is the node's link to the broker that carries all
// inter-node traffic. A request for an endpoint is published to that
// endpoint's request topic and the hosting node replies on a
// correlation-scoped response topic, so requesters never need to know
// which node hosts what.
//
// The Client wraps paho with the pieces a long-running node needs:
// subscriptions survive reconnects, presence is announced as a
// retained message on weft/system/status with a matching LWT for
// crashes, and message handlers are shielded by panic recovery.
//
// Topic layout lives in topics.go; weft/rq/{endpoint} for requests,
// weft/rs/{corr} for responses, weft/nt/{corr} for observe
// notifications, weft/dc and weft/dr/{corr} for discovery.
package mqtt
