// Package endpoint defines the functional-endpoint capability model and the
// local (in-process) endpoint runtime.
//
// A functional endpoint (FE) is an addressable control and monitoring
// surface exposing typed properties grouped into sections, invokable
// methods, and child endpoints. The FunctionalEndpoint interface is
// implemented identically by the local runtime in this package and by the
// remote proxy in internal/remote: callers cannot distinguish a local
// endpoint from a remote one except by latency and failure modes.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                          Local                                │
//	│                                                               │
//	│  ┌───────────────┐   ┌───────────────┐   ┌────────────────┐  │
//	│  │  trait table  │   │   Listeners   │   │  transitions   │  │
//	│  │  (local.go)   │──▶│ (listeners.go)│   │ (transition.go)│  │
//	│  │               │   │               │   │                │  │
//	│  │ • dispatch by │   │ • prop/sect/  │   │ • timed value  │  │
//	│  │   trait ID    │   │   child fans  │   │   interpolation│  │
//	│  │ • coercion    │   │ • origin skip │   │ • cancel/jump  │  │
//	│  └───────────────┘   └───────┬───────┘   └────────────────┘  │
//	│                              │                                │
//	│                      ┌───────▼───────┐                        │
//	│                      │   Executor    │                        │
//	│                      │ (executor.go) │                        │
//	│                      └───────────────┘                        │
//	└──────────────────────────────────────────────────────────────┘
//
// # Listener Dispatch
//
// All listener callbacks run on the endpoint's Executor, a serial task
// queue, never on the mutating caller's goroutine. This serializes every
// observable effect of one endpoint through a single logical execution
// context, so listeners see changes in a consistent order without
// fine-grained locking.
//
// Writes carry an optional origin tag (WithOrigin). Listeners registered
// with a matching origin (ListenOrigin) are skipped when the change they
// would be told about was caused by their own write. The automation layer
// relies on this to keep pairings from re-triggering themselves.
//
// # Thread Safety
//
// All exported methods on Local, Listeners, and Executor are safe for
// concurrent use.
package endpoint
