package runtime

import (
	"log/slog"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

// Timeouts bounds each capability invocation class. A zero field takes the
// default; a timed-out capability fails exactly like one that returned an
// error.
type Timeouts struct {
	Provider     time.Duration
	Action       time.Duration
	Evaluator    time.Duration
	Model        time.Duration
	ServiceStart time.Duration
	ServiceStop  time.Duration
}

// DefaultTimeouts returns the stock bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Provider:     10 * time.Second,
		Action:       30 * time.Second,
		Evaluator:    30 * time.Second,
		Model:        120 * time.Second,
		ServiceStart: 30 * time.Second,
		ServiceStop:  10 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Provider > 0 {
		d.Provider = t.Provider
	}
	if t.Action > 0 {
		d.Action = t.Action
	}
	if t.Evaluator > 0 {
		d.Evaluator = t.Evaluator
	}
	if t.Model > 0 {
		d.Model = t.Model
	}
	if t.ServiceStart > 0 {
		d.ServiceStart = t.ServiceStart
	}
	if t.ServiceStop > 0 {
		d.ServiceStop = t.ServiceStop
	}
	return d
}

// Option configures a Runtime instance.
type Option func(*Runtime) error

// WithPlugins queues plugins for registration during Initialize, in order.
func WithPlugins(plugins ...core.Plugin) Option {
	return func(r *Runtime) error {
		r.pending = append(r.pending, plugins...)
		return nil
	}
}

// WithStore sets the persistence collaborator.
func WithStore(store core.Store) Option {
	return func(r *Runtime) error {
		if store == nil {
			return errors.New(errors.CodeInvalidInput, "store must not be nil", nil)
		}
		r.store = store
		return nil
	}
}

// WithLogger sets the runtime logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) error {
		if logger == nil {
			return errors.New(errors.CodeInvalidInput, "logger must not be nil", nil)
		}
		r.logger = logger
		return nil
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(emitter core.EventEmitter) Option {
	return func(r *Runtime) error {
		if emitter == nil {
			return errors.New(errors.CodeInvalidInput, "emitter must not be nil", nil)
		}
		r.emitter = emitter
		return nil
	}
}

// WithSettings sets runtime-level setting overrides. They take precedence
// over character settings and plugin config defaults.
func WithSettings(settings map[string]string) Option {
	return func(r *Runtime) error {
		for k, v := range settings {
			r.settings[k] = v
		}
		return nil
	}
}

// WithTimeouts overrides capability timeouts. Zero fields keep defaults.
func WithTimeouts(t Timeouts) Option {
	return func(r *Runtime) error {
		r.timeouts = t.withDefaults()
		return nil
	}
}

// WithRequiredServices names services that must start for Initialize to
// succeed. Unnamed services degrade on failure instead.
func WithRequiredServices(names ...string) Option {
	return func(r *Runtime) error {
		r.required = append(r.required, names...)
		return nil
	}
}

// WithMetrics attaches the telemetry instrument bundle. Without it the
// runtime runs unmetered.
func WithMetrics(metrics *telemetry.CycleMetrics) Option {
	return func(r *Runtime) error {
		r.metrics = metrics
		return nil
	}
}

// WithClock replaces the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) error {
		if now == nil {
			return errors.New(errors.CodeInvalidInput, "clock must not be nil", nil)
		}
		r.now = now
		return nil
	}
}
