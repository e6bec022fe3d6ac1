package history

import (
	"time"

	"github.com/weft-home/weft/internal/trait"
)

// MultiSink fans each property change out to every sink in order.
type MultiSink []Sink

var _ Sink = MultiSink{}

// WritePropertyChange implements Sink.
func (m MultiSink) WritePropertyChange(endpointID string, key trait.PropertyKey, value any, at time.Time) {
	for _, s := range m {
		s.WritePropertyChange(endpointID, key, value, at)
	}
}
