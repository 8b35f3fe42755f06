package runtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

// HandleOption customizes a single HandleMessage cycle.
type HandleOption func(*handleConfig)

type handleConfig struct {
	callback     core.ResponseFunc
	providers    []string
	providersSet bool
}

// WithCallback sets the response callback for the cycle. The dispatcher
// invokes it exactly once, with the aggregated response or the no-response
// signal.
func WithCallback(fn core.ResponseFunc) HandleOption {
	return func(c *handleConfig) { c.callback = fn }
}

// WithProviders restricts state composition to the named providers. Passing
// no names composes an empty state.
func WithProviders(names ...string) HandleOption {
	return func(c *handleConfig) {
		c.providers = names
		c.providersSet = true
	}
}

// HandleMessage runs one full processing cycle: compose state, dispatch
// actions, deliver the response, run evaluators. It is safe to call
// concurrently; each call is an isolated cycle.
func (r *Runtime) HandleMessage(ctx context.Context, msg core.Memory, opts ...HandleOption) (*core.ActionOutcome, error) {
	var cfg handleConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Admission and drain accounting share one critical section so Stop
	// cannot observe an empty group while a cycle is being admitted.
	r.mu.RLock()
	if r.status != StatusRunning {
		st := r.status
		r.mu.RUnlock()
		return nil, errors.Newf(errors.CodeNotRunning, "runtime is %s", st)
	}
	r.cycles.Add(1)
	r.mu.RUnlock()
	defer r.cycles.Done()

	ctx, cycleID := core.EnsureCycleID(ctx)
	start := r.now()

	logger := telemetry.CycleLogger(r.logger, r.agentID.String(), cycleID.String()).
		With(slog.String("room_id", msg.RoomID.String()))

	ctx, span := r.tracer.Start(ctx, "Runtime.HandleMessage", trace.WithAttributes(
		telemetry.CycleAttributes(r.agentID.String(), cycleID.String(), msg.RoomID.String())...))
	defer span.End()

	r.emit(ctx, core.EventCycleStarted, map[string]any{
		"entity_id": msg.EntityID.String(),
		"room_id":   msg.RoomID.String(),
	})

	if msg.ID == core.ZeroID {
		msg.ID = core.NewID()
	}
	if msg.AgentID == core.ZeroID {
		msg.AgentID = r.agentID
	}
	// Inbound persistence is best effort: a missing store or a replayed id
	// never blocks the cycle.
	if _, err := r.Store().SaveMemory(ctx, msg); err != nil {
		if !errors.IsCode(err, errors.CodeUnavailable) && !errors.IsCode(err, errors.CodeConflict) {
			logger.Warn("inbound message not persisted", slog.Any("error", err))
		}
	}

	state, err := r.composeState(ctx, msg, cfg.providers, cfg.providersSet)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	r.emit(ctx, core.EventStateComposed, map[string]any{
		"text_len": len(state.Text),
		"values":   len(state.Values),
	})

	outcome := r.dispatch(ctx, logger, msg, state, cfg.callback)
	r.evaluate(ctx, logger, msg, state, outcome)

	elapsed := r.now().Sub(start)
	label := "silent"
	switch {
	case outcome.Responded:
		label = "responded"
	case outcome.NoAction:
		label = "no_action"
	}
	r.metrics.RecordCycle(ctx, label, float64(elapsed)/float64(time.Millisecond))
	r.emit(ctx, core.EventCycleCompleted, map[string]any{
		"outcome":     label,
		"actions_run": len(outcome.Results),
		"duration_ms": elapsed.Milliseconds(),
	})
	logger.Info("cycle completed",
		slog.String("outcome", label),
		slog.Int("actions_run", len(outcome.Results)),
		slog.Duration("duration", elapsed))
	return outcome, nil
}

// dispatch runs every candidate action in registration order, persists
// their responses, and delivers the aggregate to the callback exactly once.
// Action failures are isolated: a failed action contributes nothing and the
// rest still run.
func (r *Runtime) dispatch(ctx context.Context, logger *slog.Logger, msg core.Memory, state *core.State, callback core.ResponseFunc) *core.ActionOutcome {
	outcome := &core.ActionOutcome{StateText: state.Text}

	candidates := r.candidateActions(ctx, logger, msg, state)
	if len(candidates) == 0 {
		logger.Info("no action validated for message")
		outcome.NoAction = true
		outcome.Response = core.Content{Actions: []string{core.ActionNone}}
		r.deliver(ctx, logger, callback, outcome.Response)
		return outcome
	}

	var texts []string
	var acted []string
	for _, action := range candidates {
		res := r.runAction(ctx, logger, action, msg, state, outcome.Results)
		outcome.Results = append(outcome.Results, res)
		if !res.Success {
			continue
		}
		contributed := false
		for i := range res.Responses {
			r.persistResponse(ctx, logger, &res.Responses[i], msg, action.Name)
			if text := strings.TrimSpace(res.Responses[i].Content.Text); text != "" {
				texts = append(texts, text)
				contributed = true
			}
		}
		if contributed {
			acted = append(acted, action.Name)
		}
	}

	if len(texts) > 0 {
		outcome.Responded = true
		outcome.Response = core.Content{
			Text:      strings.Join(texts, "\n\n"),
			Actions:   acted,
			InReplyTo: &msg.ID,
		}
	} else {
		outcome.Response = core.Content{Actions: []string{core.ActionNone}}
	}
	r.deliver(ctx, logger, callback, outcome.Response)
	return outcome
}

// candidateActions validates every registered action against the message
// and state. A nil Validate means always a candidate; a validation error
// counts as not a candidate.
func (r *Runtime) candidateActions(ctx context.Context, logger *slog.Logger, msg core.Memory, state *core.State) []core.Action {
	var out []core.Action
	for _, action := range r.catalog.Actions() {
		if action.Validate == nil {
			out = append(out, action)
			continue
		}
		ok, err := action.Validate(ctx, r, msg, state.Clone())
		if err != nil {
			logger.Warn("action validate failed",
				slog.String("action", action.Name),
				slog.Any("error", err))
			continue
		}
		if ok {
			out = append(out, action)
		}
	}
	return out
}

// runAction executes one handler under the action timeout with panic
// isolation. Errors come back as a failed result, never as a cycle abort.
func (r *Runtime) runAction(ctx context.Context, logger *slog.Logger, action core.Action, msg core.Memory, state *core.State, prior []core.ActionResult) core.ActionResult {
	ctx, span := r.tracer.Start(ctx, "Action.Execute")
	defer span.End()

	r.emit(ctx, core.EventActionStarted, map[string]any{"action": action.Name})

	priorCopy := make([]core.ActionResult, len(prior))
	copy(priorCopy, prior)

	res, err := resilience.Call(ctx, r.timeouts.Action, func(ctx context.Context) (out core.ActionResult, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = errors.Newf(errors.CodeDispatch, "action panic: %v", rec).
					WithContext("action", action.Name)
			}
		}()
		return action.Handler(ctx, r, msg, state.Clone(), priorCopy)
	})
	if err != nil {
		res = core.ActionResult{Action: action.Name, Error: err.Error()}
		span.SetAttributes(telemetry.ErrorAttributes(err)...)
		span.RecordError(err)
		r.metrics.RecordAction(ctx, action.Name, false)
		r.emit(ctx, core.EventActionFailed, map[string]any{
			"action": action.Name,
			"error":  err.Error(),
		})
		logger.Error("action failed",
			slog.String("action", action.Name),
			slog.Any("error", err))
		return res
	}

	if res.Action == "" {
		res.Action = action.Name
	}
	span.SetAttributes(telemetry.ActionAttributes(action.Name, res.Success)...)
	r.metrics.RecordAction(ctx, action.Name, res.Success)
	if res.Success {
		r.emit(ctx, core.EventActionCompleted, map[string]any{
			"action":    action.Name,
			"responses": len(res.Responses),
		})
		logger.Info("action completed", slog.String("action", action.Name))
	} else {
		r.emit(ctx, core.EventActionFailed, map[string]any{
			"action": action.Name,
			"error":  res.Error,
		})
		logger.Warn("action reported failure",
			slog.String("action", action.Name),
			slog.String("error", res.Error))
	}
	return res
}

// persistResponse fills conversational defaults on a response record and
// saves it best effort.
func (r *Runtime) persistResponse(ctx context.Context, logger *slog.Logger, response *core.Memory, msg core.Memory, actionName string) {
	if response.ID == core.ZeroID {
		response.ID = core.NewID()
	}
	if response.EntityID == core.ZeroID {
		response.EntityID = r.agentID
	}
	if response.AgentID == core.ZeroID {
		response.AgentID = r.agentID
	}
	if response.RoomID == core.ZeroID {
		response.RoomID = msg.RoomID
	}
	if response.Content.InReplyTo == nil {
		response.Content.InReplyTo = &msg.ID
	}
	if len(response.Content.Actions) == 0 {
		response.Content.Actions = []string{actionName}
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = r.now().UTC()
	}
	if _, err := r.Store().SaveMemory(ctx, *response); err != nil {
		if !errors.IsCode(err, errors.CodeUnavailable) && !errors.IsCode(err, errors.CodeConflict) {
			logger.Warn("response not persisted",
				slog.String("action", actionName),
				slog.Any("error", err))
		}
	}
}

// deliver invokes the cycle callback once. Callback errors are logged, not
// propagated; the cycle already ran.
func (r *Runtime) deliver(ctx context.Context, logger *slog.Logger, callback core.ResponseFunc, content core.Content) {
	if callback == nil {
		return
	}
	if err := callback(ctx, content); err != nil {
		logger.Warn("response callback failed", slog.Any("error", err))
	}
}
