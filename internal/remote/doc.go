// Package remote provides the proxy side of a functional endpoint: the
// same capability surface as a local endpoint, backed by a transport
// connection to the node that actually hosts it.
//
// # Caching
//
// The proxy keeps a per-section cache of last-known values.
// CachedProperty answers from it without touching the network; Fetch
// always performs a real request and refreshes the cache on the way
// through. Successful writes echo the written value into the cache so
// an immediate cached read observes the write.
//
// # Observations
//
// Listener registrations are reference-counted per property key and per
// section: the first listener establishes one transport observation,
// further listeners share it, and removing the last one cancels it.
// Notification sequence numbers are checked monotonically and stale
// reordered notifications are dropped before they reach the cache or
// any listener.
//
//	AddPropertyListener ──┐
//	AddPropertyListener ──┼── one Observe() on the wire
//	AddPropertyListener ──┘
//
// Notifications are dispatched on the proxy's serial executor, the same
// ordering discipline a local endpoint gives its listeners.
package remote
