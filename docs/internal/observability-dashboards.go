// SPDX-License-Identifier: Apache-2.0
// Daimon Runtime Observability Dashboards
// This file documents dashboard templates for OpenTelemetry OTEL UI or Grafana,
// built on the instruments registered in pkg/telemetry/metrics.go.
//
// DASHBOARD: Cycle Throughput & Outcomes
//   Shows how many messages the runtime handles and how each cycle ended.
//
//   Queries:
//   - daimon.cycles.total{outcome} (rate 5m)
//     Metric: Handled messages by outcome
//     Display: Line chart with legend (responded, no_action, silent)
//     Alert Threshold: silent share > 20% sustained means the agent stopped answering
//
//   - daimon.dispatch.duration_ms{outcome}
//     Metric: Full cycle latency (compose + dispatch + evaluate)
//     Display: Heatmap with p50/p95/p99 overlays
//     Goal: p95 < action timeout configured for the runtime
//
//   - daimon.actions.total{action, success}
//     Metric: Action executions by name and result
//     Display: Stacked bar per action
//     Insight: Which actions fail and still leave the cycle responsive?
//
// DASHBOARD: State Composition
//   Shows provider health during state composition. A skipped provider
//   never fails the cycle, so skips are the early warning signal.
//
//   Queries:
//   - daimon.compose.duration_ms{providers}
//     Metric: Composition time against the number of contributing providers
//     Display: Scatter or heatmap
//     Insight: Does one slow provider dominate the compose window?
//
//   - daimon.providers.skipped{provider, reason} (rate 5m)
//     Metric: Provider contributions excluded from composed state
//     Display: Stacked area by reason (timeout, error, validate_error, validate_false)
//     Alert Threshold: > 1 skip/min per provider with reason=timeout
//
// DASHBOARD: Model Gateway
//   Shows backend call volume and latency per model class.
//
//   Queries:
//   - daimon.model.invocations{class, outcome} (rate 5m)
//     Metric: Gateway invocations by class and outcome
//     Display: Line chart per class (text-large, text-small, text-embedding)
//     Alert Threshold: outcome=error share > 10% for any class
//
//   - daimon.model.duration_ms{class}
//     Metric: Backend latency per class
//     Display: Percentile lines, split embedding from text classes
//     Insight: Text classes tolerate seconds, embeddings should stay < 500ms
//
// DASHBOARD: Runtime Lifecycle
//   Shows registration and service health across the agent's life.
//
//   Queries:
//   - daimon.plugins.registered{plugin, outcome}
//     Metric: Plugin registration attempts by outcome
//     Display: Table, one row per plugin
//     Insight: outcome=error rows were rolled back and contribute nothing
//
//   - daimon.services.running
//     Metric: Number of started services
//     Display: Single stat
//     Meaning: Drops to 0 on Stop; a mid-run drop means a service crashed
//
//   - daimon.evaluators.total{evaluator, success} (rate 5m)
//     Metric: Evaluator runs by name and result
//     Display: Stacked bar per evaluator
//
// ALERT RULES (Prometheus/AlertManager format):
//
// Alert 1: Silent Agent
//   Name: DaimonSilentCycles
//   Condition: rate(daimon.cycles.total{outcome="silent"}[5m]) / rate(daimon.cycles.total[5m]) > 0.2
//   Duration: 5m
//   Severity: warning
//   Message: "{{ $value }} of cycles end without a response"
//   Action: Check model gateway errors and action validation logs
//
// Alert 2: Provider Timeouts
//   Name: DaimonProviderTimeouts
//   Condition: rate(daimon.providers.skipped{reason="timeout"}[5m]) > 1
//   Duration: 2m
//   Severity: warning
//   Message: "Provider {{ $labels.provider }} timing out, state is degraded"
//   Action: Raise the provider timeout or fix the slow dependency
//
// Alert 3: Model Backend Errors
//   Name: DaimonModelErrorRate
//   Condition: rate(daimon.model.invocations{outcome="error"}[5m]) > 0.5
//   Duration: 2m
//   Severity: critical
//   Message: "Model class {{ $labels.class }} failing {{ $value }} calls/sec"
//   Action: Check backend credentials, quotas, and NO_MODEL_HANDLER errors in logs
//
// Alert 4: Plugin Registration Failures
//   Name: DaimonPluginRegistrationFailed
//   Condition: increase(daimon.plugins.registered{outcome="error"}[10m]) > 0
//   Duration: 0m
//   Severity: critical
//   Message: "Plugin {{ $labels.plugin }} rejected at registration"
//   Action: Inspect DUPLICATE_CAPABILITY and INVALID_PLUGIN errors, fix the bundle
//
// Alert 5: Services Down
//   Name: DaimonServicesDown
//   Condition: daimon.services.running == 0
//   Duration: 1m
//   Severity: critical
//   Message: "Runtime reports no running services"
//   Action: Confirm whether Stop was intentional, otherwise restart the agent
//
// Alert 6: Slow Cycles
//   Name: DaimonSlowCycles
//   Condition: histogram_quantile(0.95, rate(daimon.dispatch.duration_ms[5m])) > 30000
//   Duration: 5m
//   Severity: warning
//   Message: "p95 cycle latency {{ $value }}ms"
//   Action: Break down by daimon.model.duration_ms and daimon.compose.duration_ms
//
// OTEL QUERY EXAMPLES for OTEL UI or Grafana:
//
// 1. Cycle Outcome Mix (5-minute)
//    PromQL: rate(daimon.cycles.total[5m]) group by (outcome)
//    Display: Stacked area, responded vs no_action vs silent
//
// 2. Action Success Percentage
//    PromQL: (rate(daimon.actions.total{success="true"}[5m]) / rate(daimon.actions.total[5m])) * 100
//    Display: Single stat per action, goal >= 95%
//
// 3. Top Providers by Skip Count
//    PromQL: topk(5, sum(rate(daimon.providers.skipped[5m])) by (provider))
//    Display: Bar chart
//
// 4. Model Latency by Class (24h)
//    PromQL: histogram_quantile(0.95, rate(daimon.model.duration_ms[5m])) by (class)
//    Range: 24h
//    Display: Line chart
//
// 5. Registration Outcomes Over a Deploy
//    PromQL: increase(daimon.plugins.registered[1h]) by (plugin, outcome)
//    Display: Table, verify every expected plugin shows outcome=ok exactly once
//
// TRACE CORRELATION:
//
//   Every cycle opens a Runtime.HandleMessage span (tracer daimon/runtime)
//   with child spans Provider.Get, Action.Execute and Evaluator.Run, and
//   Model.Invoke spans under the daimon/model tracer. Error codes from
//   pkg/errors are attached as span attributes, so a dashboard drill-down
//   from daimon.cycles.total{outcome="silent"} lands on the exact span
//   whose TIMEOUT or MODEL_BACKEND_ERROR caused the silence.
//
// INTEGRATION PATTERNS:
//
// 1. Skip Budget per Provider:
//    - Providers are optional by contract, so track skips, not failures
//    - Budget: daimon.providers.skipped{provider} < 1% of cycles
//    - A provider over budget degrades every prompt composed from state
//
// 2. Outcome-Based Paging:
//    - responded and no_action are both healthy terminal outcomes
//    - Page only on silent growth or dispatch error logs, never on no_action
//
// 3. SLO Tracking:
//    - Cycle latency SLO: p95 dispatch < 30s
//    - Response SLO: silent share < 5% of cycles
//    - Registration SLO: zero outcome=error registrations per deploy
//
// 4. Cost Optimization:
//    - daimon.model.invocations by class shows spend split across backends
//    - High text-large volume with low action success means wasted tokens;
//      tighten action Validate hooks before scaling the backend
//
package internal

// This file is documentation only and declares no code.
// See pkg/telemetry/metrics.go for the instrument definitions.
