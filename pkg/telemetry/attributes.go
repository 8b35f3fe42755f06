// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides logging, tracing, and metrics wiring for the
// Daimon runtime.
package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"

	daimonerrors "github.com/daimon-agents/daimon/pkg/errors"
)

// Semantic conventions for Daimon runtime telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Agent and cycle attributes
	AttrAgentID   = "daimon.agent.id"
	AttrAgentName = "daimon.agent.name"
	AttrCycleID   = "daimon.cycle.id"
	AttrRoomID    = "daimon.room.id"

	// Capability attributes
	AttrProviderName    = "daimon.provider.name"
	AttrProviderDynamic = "daimon.provider.dynamic"
	AttrActionName      = "daimon.action.name"
	AttrActionSuccess   = "daimon.action.success"
	AttrEvaluatorName   = "daimon.evaluator.name"
	AttrPluginName      = "daimon.plugin.name"
	AttrServiceName     = "daimon.service.name"
	AttrServiceKind     = "daimon.service.kind"

	// Model attributes (extending standard gen_ai conventions)
	AttrModelClass      = "daimon.model.class"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"

	// Error attributes
	AttrErrorCode        = "daimon.error.code"
	AttrErrorRecoverable = "daimon.error.recoverable"
)

// CycleAttributes returns common attributes for cycle spans.
func CycleAttributes(agentID, cycleID, roomID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrCycleID, cycleID),
	}
	if roomID != "" {
		attrs = append(attrs, attribute.String(AttrRoomID, roomID))
	}
	return attrs
}

// ProviderAttributes returns attributes for a provider invocation span.
func ProviderAttributes(name string, dynamic bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProviderName, name),
		attribute.Bool(AttrProviderDynamic, dynamic),
	}
}

// ActionAttributes returns attributes for an action execution span.
func ActionAttributes(name string, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrActionName, name),
		attribute.Bool(AttrActionSuccess, success),
	}
}

// ModelAttributes returns attributes for a model invocation span.
func ModelAttributes(class string, tokensIn, tokensOut int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrModelClass, class),
	}
	if tokensIn > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, tokensIn))
	}
	if tokensOut > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, tokensOut))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}

// ErrorAttributes converts an error into span/metric attributes. Typed
// errors contribute their code, recoverable flag, and custom attributes.
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	var de *daimonerrors.DaimonError
	if !errors.As(err, &de) {
		return []attribute.KeyValue{
			attribute.String(AttrErrorCode, "UNKNOWN"),
		}
	}
	attrs := []attribute.KeyValue{
		attribute.String(AttrErrorCode, string(de.Code)),
		attribute.String(AttrErrorRecoverable, de.RecoverableString()),
	}
	for k, v := range de.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}
