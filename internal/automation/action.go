package automation

import (
	"context"
	"fmt"

	"github.com/weft-home/weft/internal/protocol"
)

// SyncMode decides how an action list waits on one of its actions.
type SyncMode string

const (
	// SyncAsync fires the action and moves to the next one immediately.
	SyncAsync SyncMode = "async"

	// SyncWait waits for the action to settle, success or failure, before
	// the next one runs.
	SyncWait SyncMode = "wait"

	// SyncStopOnError waits for the action and abandons the rest of the
	// list when it fails.
	SyncStopOnError SyncMode = "stop-on-error"
)

// Action is one step of a rule's or timer's action list. The URI
// addresses a property (written with Body as the value), a method
// (invoked with Body as the argument map), or an endpoint (deleted when
// Method is DELETE).
type Action struct {
	URI    string   `json:"uri"`
	Method string   `json:"method,omitempty"` // default POST
	Body   any      `json:"body,omitempty"`
	Sync   SyncMode `json:"sync,omitempty"` // default async
}

// run executes one action against the resolver's address space.
func (a Action) run(ctx context.Context, r Resolver) error {
	addr, err := protocol.ParseAddress(a.URI)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadURI, a.URI, err)
	}
	fe, ok := r.Resolve(addr.Endpoint)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvableURI, addr.Endpoint)
	}

	if a.Method == "DELETE" {
		_, err := fe.Delete(ctx)
		return err
	}

	switch addr.Kind {
	case protocol.KindMethod:
		args, _ := a.Body.(map[string]any)
		_, err := fe.Invoke(ctx, addr.MethodKey(), args)
		return err
	case protocol.KindProperty:
		return fe.Set(ctx, addr.PropertyKey(), a.Body)
	default:
		return fmt.Errorf("%w: %s is not actionable", ErrBadURI, a.URI)
	}
}

// actionsToState serializes an action list for persistence.
func actionsToState(actions []Action) []any {
	out := make([]any, len(actions))
	for i, a := range actions {
		out[i] = map[string]any{"uri": a.URI, "method": a.Method, "body": a.Body, "sync": string(a.Sync)}
	}
	return out
}

// runActions executes an action list in declared order, honoring each
// action's sync mode. Failures of async and wait actions are logged and
// skipped; a stop-on-error failure abandons the remaining actions.
func runActions(ctx context.Context, r Resolver, logger Logger, owner string, actions []Action) {
	for i, a := range actions {
		switch a.Sync {
		case SyncWait:
			if err := a.run(ctx, r); err != nil {
				logger.Warn("action failed", "owner", owner, "index", i, "uri", a.URI, "error", err)
			}
		case SyncStopOnError:
			if err := a.run(ctx, r); err != nil {
				logger.Warn("action failed, stopping list", "owner", owner, "index", i, "uri", a.URI, "error", err)
				return
			}
		default:
			go func(i int, a Action) {
				if err := a.run(ctx, r); err != nil {
					logger.Warn("action failed", "owner", owner, "index", i, "uri", a.URI, "error", err)
				}
			}(i, a)
		}
	}
}
