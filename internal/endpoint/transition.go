package endpoint

import (
	"time"

	"github.com/weft-home/weft/internal/trait"
)

// transitionTick is the interpolation interval for smooth transitions.
// 25ms keeps dimming visually continuous without flooding listeners.
const transitionTick = 25 * time.Millisecond

// transition is a running timed interpolation of one float property:
// Idle -> Transitioning(start, end, start_time, duration) -> Idle.
type transition struct {
	cancel chan struct{}
	done   chan struct{}
}

func (t *transition) stop() {
	select {
	case <-t.cancel:
	default:
		close(t.cancel)
	}
	<-t.done
}

// startTransition begins interpolating key from from to to over d,
// replacing any transition already running for the key. Intermediate
// values are written through the trait implementation and fanned out like
// ordinary changes.
func (l *Local) startTransition(impl TraitImpl, key trait.PropertyKey, from, to float64, d time.Duration, origin string) {
	tr := &transition{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}

	flat := key.String()
	l.mu.Lock()
	prev := l.transitions[flat]
	l.transitions[flat] = tr
	l.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	go l.runTransition(tr, impl, key, from, to, d, origin)
}

// cancelTransition stops a running transition for the key, if any. The
// caller then applies its own target value, which is what gives
// "duration=0 cancels and jumps" its semantics.
func (l *Local) cancelTransition(key trait.PropertyKey) {
	flat := key.String()
	l.mu.Lock()
	tr := l.transitions[flat]
	delete(l.transitions, flat)
	l.mu.Unlock()
	if tr != nil {
		tr.stop()
	}
}

func (l *Local) runTransition(tr *transition, impl TraitImpl, key trait.PropertyKey, from, to float64, d time.Duration, origin string) {
	defer close(tr.done)

	start := time.Now()
	ticker := time.NewTicker(transitionTick)
	defer ticker.Stop()

	for {
		select {
		case <-tr.cancel:
			return
		case now := <-ticker.C:
			progress := float64(now.Sub(start)) / float64(d)
			if progress >= 1 {
				l.finishTransition(tr, key, impl, to, origin)
				return
			}
			v := from + (to-from)*progress
			if err := impl.Set(key, v); err != nil {
				l.logger.Warn("transition write failed", "key", key.String(), "error", err)
				l.finishTransition(tr, key, impl, to, origin)
				return
			}
			l.notify(key, v, origin)
		}
	}
}

func (l *Local) finishTransition(tr *transition, key trait.PropertyKey, impl TraitImpl, to float64, origin string) {
	flat := key.String()
	l.mu.Lock()
	if l.transitions[flat] == tr {
		delete(l.transitions, flat)
	}
	l.mu.Unlock()

	if err := impl.Set(key, to); err != nil {
		l.logger.Warn("transition final write failed", "key", flat, "error", err)
		return
	}
	l.notify(key, to, origin)
}
