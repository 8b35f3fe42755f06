// Package model routes capability-keyed inference requests to whichever
// backend registered a handler for the class. Callers name a capability
// ("text-large", "text-embedding"), never a vendor.
package model

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/registry"
	"github.com/daimon-agents/daimon/pkg/resilience"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

// Gateway maps model classes to handlers. Registration is last-wins so a
// later plugin can override a default backend; lookups take a snapshot, so
// an in-flight invocation keeps the handler it resolved.
type Gateway struct {
	handlers *registry.Registry[core.ModelHandler]
	logger   *slog.Logger
	timeout  time.Duration
	tracer   trace.Tracer
	metrics  *telemetry.CycleMetrics
}

// NewGateway returns a gateway with no handlers. A zero timeout leaves
// handler calls unbounded; metrics may be nil.
func NewGateway(logger *slog.Logger, timeout time.Duration, metrics *telemetry.CycleMetrics) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		handlers: registry.New[core.ModelHandler](),
		logger:   logger,
		timeout:  timeout,
		tracer:   otel.Tracer("daimon/model"),
		metrics:  metrics,
	}
}

// RegisterHandler binds a handler to a model class. Registering a class
// again replaces the previous handler; the override is logged, not
// rejected.
func (g *Gateway) RegisterHandler(class core.ModelClass, handler core.ModelHandler) error {
	if class == "" {
		return errors.New(errors.CodeInvalidInput, "model class must not be empty", nil)
	}
	if handler == nil {
		return errors.Newf(errors.CodeInvalidInput, "nil handler for model class %q", class)
	}
	if overwrote := g.handlers.Set(string(class), handler); overwrote {
		g.logger.Info("model handler overridden", slog.String("class", string(class)))
	}
	return nil
}

// Handler returns the handler currently bound to class.
func (g *Gateway) Handler(class core.ModelClass) (core.ModelHandler, bool) {
	return g.handlers.Get(string(class))
}

// Classes returns the registered model classes, sorted.
func (g *Gateway) Classes() []core.ModelClass {
	names := g.handlers.Names()
	sort.Strings(names)
	out := make([]core.ModelClass, len(names))
	for i, n := range names {
		out[i] = core.ModelClass(n)
	}
	return out
}

// Invoke resolves the handler for class and runs it under the model
// timeout. A missing handler is a recoverable condition: the caller decides
// whether to fall back or surface it.
func (g *Gateway) Invoke(ctx context.Context, class core.ModelClass, req core.ModelRequest) (core.ModelResponse, error) {
	handler, ok := g.Handler(class)
	if !ok {
		err := errors.Newf(errors.CodeNoModelHandler, "no handler registered for model class %q", class).
			WithContext("class", string(class)).
			WithRecoverable(true)
		g.metrics.RecordModel(ctx, string(class), err, 0)
		return core.ModelResponse{}, err
	}

	ctx, span := g.tracer.Start(ctx, "Model.Invoke", trace.WithAttributes(
		telemetry.ModelAttributes(string(class), 0, 0, 0)...))
	defer span.End()

	start := time.Now()
	resp, err := resilience.Call(ctx, g.timeout, func(ctx context.Context) (core.ModelResponse, error) {
		return handler(ctx, req)
	})
	durationMs := time.Since(start).Seconds() * 1000

	g.metrics.RecordModel(ctx, string(class), err, durationMs)
	if err != nil {
		span.SetAttributes(telemetry.ErrorAttributes(err)...)
		span.RecordError(err)
		var de *errors.DaimonError
		if !stderrors.As(err, &de) {
			err = errors.New(errors.CodeModelBackend, "model handler failed", err).
				WithContext("class", string(class)).
				WithRecoverable(true)
		}
		return core.ModelResponse{}, err
	}

	span.SetAttributes(telemetry.ModelAttributes(string(class), resp.TokensIn, resp.TokensOut, durationMs)...)
	return resp, nil
}
