package automation

import (
	"fmt"
	"reflect"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/protocol"
	"github.com/weft-home/weft/internal/trait"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Resolver is the slice of the owning technology the automation layer
// needs: resolving an endpoint ID to a hosted endpoint, local or remote.
type Resolver interface {
	Resolve(id string) (endpoint.FunctionalEndpoint, bool)
}

// propRef is a resolved property URI, cached by its owner after the first
// successful resolution.
type propRef struct {
	fe  endpoint.FunctionalEndpoint
	key trait.PropertyKey
}

// resolveProperty resolves a property URI such as /lamp-1/s/level/v to an
// endpoint and key.
func resolveProperty(r Resolver, uri string) (propRef, error) {
	addr, err := protocol.ParseAddress(uri)
	if err != nil {
		return propRef{}, fmt.Errorf("%w: %s: %v", ErrBadURI, uri, err)
	}
	if addr.Kind != protocol.KindProperty {
		return propRef{}, fmt.Errorf("%w: %s does not address a property", ErrBadURI, uri)
	}
	fe, ok := r.Resolve(addr.Endpoint)
	if !ok {
		return propRef{}, fmt.Errorf("%w: %s", ErrUnresolvableURI, addr.Endpoint)
	}
	return propRef{fe: fe, key: addr.PropertyKey()}, nil
}

// valuesEqual compares two property values for the anti-feedback
// short-circuit. Numeric values compare by magnitude so an int echo of a
// float write still matches.
func valuesEqual(a, b any) bool {
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
