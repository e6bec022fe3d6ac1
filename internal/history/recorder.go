package history

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/trait"
)

// Sink receives recorded property changes. The InfluxDB client
// implements it; writes must be non-blocking.
type Sink interface {
	WritePropertyChange(endpointID string, key trait.PropertyKey, value any, at time.Time)
}

// recordedSections are the sections a Recorder watches. Metadata is
// deliberately absent.
var recordedSections = []trait.Section{trait.SectionState, trait.SectionConfig}

// watch holds one endpoint's listeners and last seen section contents.
type watch struct {
	fe        endpoint.FunctionalEndpoint
	listeners []*endpoint.Listener
	last      map[string]any
}

// Recorder forwards property changes of watched endpoints to a sink.
//
// Section notifications carry the whole section, so the recorder diffs
// against the last seen contents and writes only the properties that
// actually changed.
//
// All public methods are thread-safe.
type Recorder struct {
	sink Sink
	now  func() time.Time

	mu      sync.Mutex
	watches map[string]*watch
}

// NewRecorder creates a recorder writing to sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{
		sink:    sink,
		now:     time.Now,
		watches: make(map[string]*watch),
	}
}

// Watch starts recording an endpoint's state and config changes.
// Watching an already watched endpoint is a no-op.
func (r *Recorder) Watch(fe endpoint.FunctionalEndpoint) {
	id := fe.ID()

	r.mu.Lock()
	if _, ok := r.watches[id]; ok {
		r.mu.Unlock()
		return
	}
	w := &watch{fe: fe, last: make(map[string]any)}
	r.watches[id] = w
	r.mu.Unlock()

	// Seed the diff baseline so watching does not record the current
	// values as changes.
	for _, section := range recordedSections {
		if contents, err := fe.FetchSection(context.Background(), section); err == nil {
			r.mu.Lock()
			for flat, value := range contents {
				w.last[flat] = value
			}
			r.mu.Unlock()
		}
	}

	for _, section := range recordedSections {
		l := fe.AddSectionListener(section, r.onSectionChanged)
		r.mu.Lock()
		w.listeners = append(w.listeners, l)
		r.mu.Unlock()
	}
}

// Unwatch stops recording an endpoint and reports whether it was
// watched.
func (r *Recorder) Unwatch(id string) bool {
	r.mu.Lock()
	w, ok := r.watches[id]
	if ok {
		delete(r.watches, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	for _, l := range w.listeners {
		w.fe.RemoveListener(l)
	}
	return true
}

// Close stops recording every watched endpoint.
func (r *Recorder) Close() {
	r.mu.Lock()
	watches := r.watches
	r.watches = make(map[string]*watch)
	r.mu.Unlock()
	for _, w := range watches {
		for _, l := range w.listeners {
			w.fe.RemoveListener(l)
		}
	}
}

// onSectionChanged diffs the section contents and records each change.
func (r *Recorder) onSectionChanged(fe endpoint.FunctionalEndpoint, _ trait.Section, contents map[string]any) {
	id := fe.ID()
	at := r.now()

	r.mu.Lock()
	w, ok := r.watches[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	var changed []struct {
		key   trait.PropertyKey
		value any
	}
	for flat, value := range contents {
		prev, seen := w.last[flat]
		if seen && reflect.DeepEqual(prev, value) {
			continue
		}
		w.last[flat] = value
		key, ok := parseFlatKey(flat)
		if !ok {
			continue
		}
		changed = append(changed, struct {
			key   trait.PropertyKey
			value any
		}{key, value})
	}
	r.mu.Unlock()

	for _, c := range changed {
		r.sink.WritePropertyChange(id, c.key, c.value, at)
	}
}

// parseFlatKey rebuilds a PropertyKey from its flat "section/trait/name"
// form.
func parseFlatKey(flat string) (trait.PropertyKey, bool) {
	parts := strings.Split(flat, "/")
	if len(parts) != 3 {
		return trait.PropertyKey{}, false
	}
	section, err := trait.ParseSection(parts[0])
	if err != nil {
		return trait.PropertyKey{}, false
	}
	return trait.PropertyKey{Section: section, Trait: parts[1], Name: parts[2]}, true
}
