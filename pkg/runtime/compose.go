package runtime

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

// ComposeState assembles the contextual state for a message outside a
// dispatch cycle, e.g. for inspection tooling. A nil filter composes the
// default provider set; a non-nil filter composes exactly the named
// providers, and naming an unregistered one fails the whole composition.
func (r *Runtime) ComposeState(ctx context.Context, msg core.Memory, providerNames []string) (*core.State, error) {
	if st := r.Status(); st != StatusRunning {
		return nil, errors.Newf(errors.CodeNotRunning, "runtime is %s", st)
	}
	return r.composeState(ctx, msg, providerNames, providerNames != nil)
}

// composeState runs the candidate providers in position order and merges
// their contributions. Provider failures, panics, and timeouts exclude only
// that provider; the state still composes from the rest.
func (r *Runtime) composeState(ctx context.Context, msg core.Memory, providerNames []string, explicit bool) (*core.State, error) {
	start := r.now()

	candidates, err := r.candidateProviders(providerNames, explicit)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Position < candidates[j].Position
	})

	state := core.NewState()
	var parts []string
	for _, p := range candidates {
		res, ok := r.runProvider(ctx, p, msg)
		if !ok {
			continue
		}
		if text := strings.TrimSpace(res.Text); text != "" {
			parts = append(parts, text)
		}
		for k, v := range res.Values {
			state.Values[k] = v
		}
		for k, v := range res.Data {
			state.Data[k] = v
		}
	}
	state.Text = strings.Join(parts, "\n\n")

	elapsed := r.now().Sub(start)
	r.metrics.RecordCompose(ctx, float64(elapsed)/float64(time.Millisecond), len(candidates))
	return state, nil
}

// candidateProviders picks which providers compose, in registration order.
// The default set is every non-dynamic provider plus the dynamic ones some
// registered action asks for; an explicit filter names the set verbatim.
func (r *Runtime) candidateProviders(names []string, explicit bool) ([]core.Provider, error) {
	all := r.catalog.Providers()

	if explicit {
		want := make(map[string]struct{}, len(names))
		for _, n := range names {
			if _, ok := r.catalog.Provider(n); !ok {
				return nil, errors.Newf(errors.CodeUnknownProvider, "provider %q is not registered", n)
			}
			want[n] = struct{}{}
		}
		out := make([]core.Provider, 0, len(want))
		for _, p := range all {
			if _, ok := want[p.Name]; ok {
				out = append(out, p)
			}
		}
		return out, nil
	}

	requested := make(map[string]struct{})
	for _, a := range r.catalog.Actions() {
		for _, n := range a.Providers {
			requested[n] = struct{}{}
		}
	}
	out := make([]core.Provider, 0, len(all))
	for _, p := range all {
		if !p.Dynamic {
			out = append(out, p)
			continue
		}
		if _, ok := requested[p.Name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// runProvider gates one provider through validation and fetches its
// contribution under the provider timeout. The second return is false when
// the contribution must be skipped.
func (r *Runtime) runProvider(ctx context.Context, p core.Provider, msg core.Memory) (core.ProviderResult, bool) {
	ctx, span := r.tracer.Start(ctx, "Provider.Get", trace.WithAttributes(
		telemetry.ProviderAttributes(p.Name, p.Dynamic)...))
	defer span.End()

	if p.Validate != nil {
		ok, err := p.Validate(ctx, r, msg)
		if err != nil {
			r.logger.Warn("provider validate failed",
				slog.String("provider", p.Name),
				slog.Any("error", err))
			r.metrics.RecordProviderSkip(ctx, p.Name, "validate_error")
			span.RecordError(err)
			return core.ProviderResult{}, false
		}
		if !ok {
			r.metrics.RecordProviderSkip(ctx, p.Name, "validate_false")
			return core.ProviderResult{}, false
		}
	}

	res, err := resilience.Call(ctx, r.timeouts.Provider, func(ctx context.Context) (out core.ProviderResult, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = errors.Newf(errors.CodeInternal, "provider panic: %v", rec).
					WithContext("provider", p.Name)
			}
		}()
		return p.Get(ctx, r, msg)
	})
	if err != nil {
		reason := "error"
		if errors.IsCode(err, errors.CodeTimeout) {
			reason = "timeout"
		}
		r.logger.Warn("provider skipped",
			slog.String("provider", p.Name),
			slog.String("reason", reason),
			slog.Any("error", err))
		r.metrics.RecordProviderSkip(ctx, p.Name, reason)
		span.SetAttributes(telemetry.ErrorAttributes(err)...)
		span.RecordError(err)
		return core.ProviderResult{}, false
	}
	return res, true
}
