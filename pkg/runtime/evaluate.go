package runtime

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

// evaluate runs every registered evaluator against the finished cycle, in
// registration order. Evaluator failures are recorded on the outcome but
// never fail the cycle; the response was already delivered.
func (r *Runtime) evaluate(ctx context.Context, logger *slog.Logger, msg core.Memory, state *core.State, outcome *core.ActionOutcome) {
	for _, ev := range r.catalog.Evaluators() {
		result, ran := r.runEvaluator(ctx, logger, ev, msg, state, outcome)
		if !ran {
			continue
		}
		outcome.Evaluations = append(outcome.Evaluations, result)
	}
}

// runEvaluator gates one evaluator through validation and runs it under the
// evaluator timeout. The second return is false when the evaluator did not
// run at all.
func (r *Runtime) runEvaluator(ctx context.Context, logger *slog.Logger, ev core.Evaluator, msg core.Memory, state *core.State, outcome *core.ActionOutcome) (core.EvaluatorResult, bool) {
	ctx, span := r.tracer.Start(ctx, "Evaluator.Run", trace.WithAttributes(
		attribute.String(telemetry.AttrEvaluatorName, ev.Name)))
	defer span.End()

	if ev.Validate != nil {
		ok, err := ev.Validate(ctx, r, msg, state.Clone())
		if err != nil {
			logger.Warn("evaluator validate failed",
				slog.String("evaluator", ev.Name),
				slog.Any("error", err))
			return core.EvaluatorResult{}, false
		}
		if !ok {
			return core.EvaluatorResult{}, false
		}
	}

	res, err := resilience.Call(ctx, r.timeouts.Evaluator, func(ctx context.Context) (out core.EvaluatorResult, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = errors.Newf(errors.CodeInternal, "evaluator panic: %v", rec).
					WithContext("evaluator", ev.Name)
			}
		}()
		return ev.Evaluate(ctx, r, msg, state.Clone(), outcome)
	})
	if err != nil {
		res = core.EvaluatorResult{Evaluator: ev.Name, Error: err.Error()}
		span.SetAttributes(telemetry.ErrorAttributes(err)...)
		span.RecordError(err)
		r.metrics.RecordEvaluator(ctx, ev.Name, false)
		r.emit(ctx, core.EventEvaluatorCompleted, map[string]any{
			"evaluator": ev.Name,
			"success":   false,
		})
		logger.Warn("evaluator failed",
			slog.String("evaluator", ev.Name),
			slog.Any("error", err))
		return res, true
	}

	if res.Evaluator == "" {
		res.Evaluator = ev.Name
	}
	r.metrics.RecordEvaluator(ctx, ev.Name, res.Success)
	r.emit(ctx, core.EventEvaluatorCompleted, map[string]any{
		"evaluator": ev.Name,
		"success":   res.Success,
	})
	return res, true
}
