// Package transport defines how functional endpoint requests travel
// between nodes.
//
// The package separates WHAT is asked (a Request addressing a property,
// method or section by path) from HOW it moves. Two carriers are
// provided:
//
//   - Loopback: an in-process carrier connecting a requester directly
//     to a Handler. Used by tests and by same-node access.
//   - MQTTConn / Responder: the production carrier over the MQTT bus,
//     with correlation-scoped replies, observation streams and
//     broadcast discovery.
//
// # Request Flow
//
//	Requester                       Hosting node
//	    │  Request {path, method}        │
//	    ├───────────── bus ─────────────►│
//	    │                                │ Handler.Serve
//	    │◄──────────── bus ──────────────┤
//	    │  Response {code, payload}      │
//
// Observations follow the same handshake and then deliver a stream of
// sequence-numbered notifications until cancelled. Discovery is a
// broadcast: every hosting node answers with the endpoints it hosts,
// and the collector returns whatever arrived by the deadline.
//
// # Concurrency
//
// Conn implementations are safe for concurrent use. Notification
// callbacks are invoked from carrier goroutines and must not block.
package transport
