// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CycleMetrics tracks the runtime's processing cycles for production
// monitoring. All methods are nil-safe so the runtime can run unmetered.
type CycleMetrics struct {
	// cycleCounter tracks handled messages by outcome
	cycleCounter metric.Int64Counter

	// actionCounter tracks action executions by name and outcome
	actionCounter metric.Int64Counter

	// providerSkipCounter tracks provider contributions excluded from state
	providerSkipCounter metric.Int64Counter

	// evaluatorCounter tracks evaluator runs by name and outcome
	evaluatorCounter metric.Int64Counter

	// modelCounter tracks model gateway invocations by class and outcome
	modelCounter metric.Int64Counter

	// pluginCounter tracks plugin registrations by outcome
	pluginCounter metric.Int64Counter

	// composeDuration measures state composition time
	composeDuration metric.Float64Histogram

	// dispatchDuration measures full cycle dispatch time
	dispatchDuration metric.Float64Histogram

	// modelDuration measures model invocation time
	modelDuration metric.Float64Histogram

	// servicesRunning tracks the number of running services
	servicesRunning metric.Int64Gauge
}

// NewCycleMetrics creates a cycle metrics tracker with OTEL meters.
func NewCycleMetrics() (*CycleMetrics, error) {
	meter := otel.Meter("daimon/runtime")

	cycleCounter, err := meter.Int64Counter(
		"daimon.cycles.total",
		metric.WithDescription("Handled messages by outcome"),
	)
	if err != nil {
		return nil, err
	}

	actionCounter, err := meter.Int64Counter(
		"daimon.actions.total",
		metric.WithDescription("Action executions by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	providerSkipCounter, err := meter.Int64Counter(
		"daimon.providers.skipped",
		metric.WithDescription("Provider contributions excluded from composed state"),
	)
	if err != nil {
		return nil, err
	}

	evaluatorCounter, err := meter.Int64Counter(
		"daimon.evaluators.total",
		metric.WithDescription("Evaluator runs by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	modelCounter, err := meter.Int64Counter(
		"daimon.model.invocations",
		metric.WithDescription("Model gateway invocations by class and outcome"),
	)
	if err != nil {
		return nil, err
	}

	pluginCounter, err := meter.Int64Counter(
		"daimon.plugins.registered",
		metric.WithDescription("Plugin registrations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	composeDuration, err := meter.Float64Histogram(
		"daimon.compose.duration_ms",
		metric.WithDescription("State composition duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"daimon.dispatch.duration_ms",
		metric.WithDescription("Cycle dispatch duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	modelDuration, err := meter.Float64Histogram(
		"daimon.model.duration_ms",
		metric.WithDescription("Model invocation duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	servicesRunning, err := meter.Int64Gauge(
		"daimon.services.running",
		metric.WithDescription("Number of running services"),
	)
	if err != nil {
		return nil, err
	}

	return &CycleMetrics{
		cycleCounter:        cycleCounter,
		actionCounter:       actionCounter,
		providerSkipCounter: providerSkipCounter,
		evaluatorCounter:    evaluatorCounter,
		modelCounter:        modelCounter,
		pluginCounter:       pluginCounter,
		composeDuration:     composeDuration,
		dispatchDuration:    dispatchDuration,
		modelDuration:       modelDuration,
		servicesRunning:     servicesRunning,
	}, nil
}

// RecordCycle records a completed cycle and its dispatch duration.
func (cm *CycleMetrics) RecordCycle(ctx context.Context, outcome string, durationMs float64) {
	if cm == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	cm.cycleCounter.Add(ctx, 1, attrs)
	cm.dispatchDuration.Record(ctx, durationMs, attrs)
}

// RecordCompose records a state composition.
func (cm *CycleMetrics) RecordCompose(ctx context.Context, durationMs float64, providers int) {
	if cm == nil {
		return
	}
	cm.composeDuration.Record(ctx, durationMs,
		metric.WithAttributes(attribute.Int("providers", providers)))
}

// RecordAction records one action execution.
func (cm *CycleMetrics) RecordAction(ctx context.Context, name string, success bool) {
	if cm == nil {
		return
	}
	cm.actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", name),
		attribute.Bool("success", success),
	))
}

// RecordProviderSkip records a provider excluded from composition.
func (cm *CycleMetrics) RecordProviderSkip(ctx context.Context, name, reason string) {
	if cm == nil {
		return
	}
	cm.providerSkipCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", name),
		attribute.String("reason", reason),
	))
}

// RecordEvaluator records one evaluator run.
func (cm *CycleMetrics) RecordEvaluator(ctx context.Context, name string, success bool) {
	if cm == nil {
		return
	}
	cm.evaluatorCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("evaluator", name),
		attribute.Bool("success", success),
	))
}

// RecordModel records a model gateway invocation.
func (cm *CycleMetrics) RecordModel(ctx context.Context, class string, err error, durationMs float64) {
	if cm == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("class", class),
		attribute.String("outcome", outcome),
	)
	cm.modelCounter.Add(ctx, 1, attrs)
	cm.modelDuration.Record(ctx, durationMs, attrs)
}

// RecordPluginRegistration records a plugin registration attempt.
func (cm *CycleMetrics) RecordPluginRegistration(ctx context.Context, name string, err error) {
	if cm == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cm.pluginCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plugin", name),
		attribute.String("outcome", outcome),
	))
}

// SetServicesRunning records the current number of running services.
func (cm *CycleMetrics) SetServicesRunning(ctx context.Context, n int) {
	if cm == nil {
		return
	}
	cm.servicesRunning.Record(ctx, int64(n))
}
