package automation

import (
	"context"
	"sync"
	"time"

	"github.com/weft-home/weft/internal/endpoint"
	"github.com/weft-home/weft/internal/expr"
	"github.com/weft-home/weft/internal/trait"
)

// TimerConfig describes a timer. The schedule expression yields the delay
// until the next wake-up in seconds; its environment carries the fire
// count and the real-time clock, so schedules can branch on both. The
// predicate gates firing at wake-up; an empty predicate always fires.
type TimerConfig struct {
	Schedule   string   `json:"sched"`
	Predicate  string   `json:"pred,omitempty"`
	AutoReset  bool     `json:"reset,omitempty"`
	AutoDelete bool     `json:"delete,omitempty"`
	Enabled    bool     `json:"enabled"`
	Actions    []Action `json:"actions,omitempty"`
}

// Timer runs an action list on a schedule computed by an expression.
//
// State machine: idle while disabled; enabling evaluates the schedule and
// arms a wake-up; at wake-up the predicate decides whether the actions
// run; auto-reset re-arms, otherwise the timer returns to idle; a fired
// auto-delete timer without auto-reset removes itself from its manager.
// Disabling at any point cancels the pending wake-up without side
// effects.
type Timer struct {
	*endpoint.Local

	resolver Resolver
	logger   Logger
	tr       *endpoint.SimpleTrait
	actions  []Action

	// now is the clock used for expression environments. Tests inject a
	// fixed instant.
	now func() time.Time

	// onAutoDelete is installed by the manager so a fired auto-delete
	// timer can remove itself.
	onAutoDelete func(id string)

	mu         sync.Mutex
	sched      expr.Program
	pred       expr.Program
	autoReset  bool
	autoDelete bool
	enabled    bool
	fires      float64
	lastFire   time.Time
	pending    *time.Timer
	generation uint64
	closed     bool
}

// NewTimer creates a timer. An enabled configuration arms it immediately.
func NewTimer(id string, resolver Resolver, cfg TimerConfig) (*Timer, error) {
	t := &Timer{
		resolver: resolver,
		logger:   noopLogger{},
		actions:  cfg.Actions,
		now:      time.Now,
	}

	t.tr = endpoint.NewSimpleTrait("timer",
		KeyTimerSchedule, KeyTimerPredicate, KeyTimerAutoReset, KeyTimerAutoDelete,
		KeyTimerEnabled, KeyTimerFires, KeyTimerLastFire).
		Init(KeyTimerFires, int64(0)).
		Init(KeyTimerLastFire, "").
		MarkReadOnly(KeyTimerFires, KeyTimerLastFire).
		OnSet(t.onConfigSet)
	t.Local = endpoint.NewLocal(id, t.tr)
	t.Local.SetOnDelete(t.teardown)

	if err := t.applyConfig(cfg); err != nil {
		t.Local.Delete(context.Background())
		return nil, err
	}
	return t, nil
}

// SetLogger sets the logger for the timer.
func (t *Timer) SetLogger(logger Logger) {
	t.mu.Lock()
	t.logger = logger
	t.mu.Unlock()
}

// FireCount returns how many times the timer has fired.
func (t *Timer) FireCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.fires)
}

// Enabled reports whether the timer is armed.
func (t *Timer) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Config returns the current configuration.
func (t *Timer) Config() TimerConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TimerConfig{
		Schedule:   t.sched.String(),
		Predicate:  t.pred.String(),
		AutoReset:  t.autoReset,
		AutoDelete: t.autoDelete,
		Enabled:    t.enabled,
		Actions:    t.actions,
	}
}

// applyConfig compiles the expressions and arms or disarms the timer.
func (t *Timer) applyConfig(cfg TimerConfig) error {
	sched, err := expr.Compile(cfg.Schedule)
	if err != nil {
		return err
	}
	pred, err := expr.Compile(cfg.Predicate)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.sched, t.pred = sched, pred
	t.autoReset, t.autoDelete = cfg.AutoReset, cfg.AutoDelete
	t.cancelPendingLocked()
	t.enabled = cfg.Enabled
	var armErr error
	if t.enabled && !t.closed {
		armErr = t.armLocked()
	}
	t.mu.Unlock()

	t.tr.SilentSet(KeyTimerSchedule, cfg.Schedule)
	t.tr.SilentSet(KeyTimerPredicate, cfg.Predicate)
	t.tr.SilentSet(KeyTimerAutoReset, cfg.AutoReset)
	t.tr.SilentSet(KeyTimerAutoDelete, cfg.AutoDelete)
	t.tr.SilentSet(KeyTimerEnabled, cfg.Enabled)
	return armErr
}

func (t *Timer) onConfigSet(key trait.PropertyKey, value any) error {
	cfg := t.Config()
	switch key.String() {
	case KeyTimerSchedule.String():
		cfg.Schedule = value.(string)
	case KeyTimerPredicate.String():
		cfg.Predicate = value.(string)
	case KeyTimerAutoReset.String():
		cfg.AutoReset = value.(bool)
	case KeyTimerAutoDelete.String():
		cfg.AutoDelete = value.(bool)
	case KeyTimerEnabled.String():
		cfg.Enabled = value.(bool)
	default:
		return nil
	}
	return t.applyConfig(cfg)
}

// armLocked evaluates the schedule and starts the wake-up timer. Held
// under t.mu.
func (t *Timer) armLocked() error {
	delay, ok, err := t.sched.EvaluateFloat(expr.Env{Count: t.fires, Now: t.now()})
	if err != nil {
		t.enabled = false
		return err
	}
	if !ok || delay < 0 {
		t.enabled = false
		return nil
	}

	t.generation++
	gen := t.generation
	t.pending = time.AfterFunc(time.Duration(delay*float64(time.Second)), func() {
		t.wake(gen)
	})
	return nil
}

// cancelPendingLocked stops a pending wake-up and invalidates it. Held
// under t.mu.
func (t *Timer) cancelPendingLocked() {
	t.generation++
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
}

// wake is the expiry path. A stale generation means the timer was
// disabled or reconfigured after this wake-up was armed.
func (t *Timer) wake(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || !t.enabled || t.closed {
		t.mu.Unlock()
		return
	}
	pred := t.pred
	count := t.fires
	t.mu.Unlock()

	fire := true
	if !pred.Empty() {
		f, ok, err := pred.EvaluateFloat(expr.Env{Count: count, Now: t.now()})
		if err != nil {
			t.logger.Warn("predicate failed, skipping fire", "timer", t.ID(), "error", err)
			fire = false
		} else {
			fire = ok && f >= 0.5
		}
	}

	if fire {
		t.mu.Lock()
		t.fires++
		t.lastFire = t.now()
		fires, last := int64(t.fires), t.lastFire
		actions := t.actions
		t.mu.Unlock()

		t.tr.SilentSet(KeyTimerFires, fires)
		t.tr.SilentSet(KeyTimerLastFire, lastFireStamp(last))
		t.Local.NotifyChanged(KeyTimerFires, fires, "")
		runActions(context.Background(), t.resolver, t.logger, t.ID(), actions)
	}

	t.mu.Lock()
	if gen != t.generation || t.closed {
		t.mu.Unlock()
		return
	}
	autoDelete := fire && t.autoDelete && !t.autoReset
	if t.autoReset {
		if err := t.armLocked(); err != nil {
			t.logger.Warn("reschedule failed, timer disabled", "timer", t.ID(), "error", err)
		}
	} else {
		t.enabled = false
	}
	enabled := t.enabled
	onDelete := t.onAutoDelete
	t.mu.Unlock()

	t.tr.SilentSet(KeyTimerEnabled, enabled)
	if autoDelete && onDelete != nil {
		onDelete(t.ID())
	}
}

// teardown cancels any pending wake-up. Runs on delete.
func (t *Timer) teardown() {
	t.mu.Lock()
	t.cancelPendingLocked()
	t.enabled = false
	t.closed = true
	t.mu.Unlock()
}

// CopyState snapshots the timer for persistence.
func (t *Timer) CopyState() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := map[string]any{
		"sched":   t.sched.String(),
		"pred":    t.pred.String(),
		"reset":   t.autoReset,
		"delete":  t.autoDelete,
		"enabled": t.enabled,
		"fires":   t.fires,
		"actions": actionsToState(t.actions),
	}
	if !t.lastFire.IsZero() {
		state["last"] = t.lastFire.Format(time.RFC3339)
	}
	return state
}

// restoreCounters reinstates the persistent counters after a restart.
func (t *Timer) restoreCounters(state map[string]any) {
	t.mu.Lock()
	if f, ok := numeric(state["fires"]); ok {
		t.fires = f
	}
	if s, ok := state["last"].(string); ok && s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			t.lastFire = ts
		}
	}
	fires, last := int64(t.fires), t.lastFire
	t.mu.Unlock()

	t.tr.SilentSet(KeyTimerFires, fires)
	t.tr.SilentSet(KeyTimerLastFire, lastFireStamp(last))
}
