package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/daimon-agents/daimon/pkg/core"
)

// Assertions provides assertion helpers for testing.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

// AssertEqual asserts that two values are equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.t.Errorf("%s: expected %v, got %v", msg, expected, actual)
		a.failed = true
	}
}

// AssertTrue asserts that the value is true.
func (a *Assertions) AssertTrue(value bool, msg string) {
	a.t.Helper()
	if !value {
		a.t.Errorf("%s: expected true", msg)
		a.failed = true
	}
}

// AssertFalse asserts that the value is false.
func (a *Assertions) AssertFalse(value bool, msg string) {
	a.t.Helper()
	if value {
		a.t.Errorf("%s: expected false", msg)
		a.failed = true
	}
}

// AssertContains asserts that the string contains the substring.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.t.Errorf("%s: %q does not contain %q", msg, s, substr)
		a.failed = true
	}
}

// AssertError asserts that the error is not nil.
func (a *Assertions) AssertError(err error, msg string) {
	a.t.Helper()
	if err == nil {
		a.t.Errorf("%s: expected error, got nil", msg)
		a.failed = true
	}
}

// AssertNoError asserts that the error is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.t.Errorf("%s: unexpected error: %v", msg, err)
		a.failed = true
	}
}

// AssertLen asserts the length of a slice, map or string.
func (a *Assertions) AssertLen(value any, expected int, msg string) {
	a.t.Helper()
	var length int
	switch v := value.(type) {
	case string:
		length = len(v)
	case []string:
		length = len(v)
	case []core.Memory:
		length = len(v)
	case []core.Content:
		length = len(v)
	case []core.ActionResult:
		length = len(v)
	case []core.EvaluatorResult:
		length = len(v)
	case []core.Event:
		length = len(v)
	case map[string]any:
		length = len(v)
	default:
		a.t.Errorf("%s: cannot get length of %T", msg, value)
		a.failed = true
		return
	}
	if length != expected {
		a.t.Errorf("%s: expected length %d, got %d", msg, expected, length)
		a.failed = true
	}
}

// ModelRequestAssertions provides assertion helpers for captured model
// requests.
type ModelRequestAssertions struct {
	*Assertions
	req *core.ModelRequest
}

// AssertModelRequest creates request assertions for the given request.
func (a *Assertions) AssertModelRequest(req *core.ModelRequest) *ModelRequestAssertions {
	a.t.Helper()
	if req == nil {
		a.t.Error("model request is nil")
		a.failed = true
		return &ModelRequestAssertions{Assertions: a, req: &core.ModelRequest{}}
	}
	return &ModelRequestAssertions{Assertions: a, req: req}
}

// HasMessageCount asserts the number of chat turns in the request.
func (r *ModelRequestAssertions) HasMessageCount(count int) *ModelRequestAssertions {
	r.t.Helper()
	if len(r.req.Messages) != count {
		r.t.Errorf("expected %d messages, got %d", count, len(r.req.Messages))
		r.failed = true
	}
	return r
}

// HasSystemTurn asserts a system turn exists containing the substring.
func (r *ModelRequestAssertions) HasSystemTurn(contains string) *ModelRequestAssertions {
	r.t.Helper()
	for _, msg := range r.req.Messages {
		if msg.Role == "system" && strings.Contains(msg.Content, contains) {
			return r
		}
	}
	r.t.Errorf("no system turn containing %q found", contains)
	r.failed = true
	return r
}

// HasUserTurn asserts a user turn exists containing the substring.
func (r *ModelRequestAssertions) HasUserTurn(contains string) *ModelRequestAssertions {
	r.t.Helper()
	for _, msg := range r.req.Messages {
		if msg.Role == "user" && strings.Contains(msg.Content, contains) {
			return r
		}
	}
	r.t.Errorf("no user turn containing %q found", contains)
	r.failed = true
	return r
}

// HasPrompt asserts the flat prompt contains the substring.
func (r *ModelRequestAssertions) HasPrompt(contains string) *ModelRequestAssertions {
	r.t.Helper()
	if !strings.Contains(r.req.Prompt, contains) {
		r.t.Errorf("prompt %q does not contain %q", r.req.Prompt, contains)
		r.failed = true
	}
	return r
}

// HasInput asserts the embedding input equals the expected text.
func (r *ModelRequestAssertions) HasInput(expected string) *ModelRequestAssertions {
	r.t.Helper()
	if r.req.Input != expected {
		r.t.Errorf("expected input %q, got %q", expected, r.req.Input)
		r.failed = true
	}
	return r
}

// OutcomeAssertions provides assertion helpers for cycle outcomes.
type OutcomeAssertions struct {
	*Assertions
	outcome *core.ActionOutcome
}

// AssertOutcome creates outcome assertions for the given outcome.
func (a *Assertions) AssertOutcome(outcome *core.ActionOutcome) *OutcomeAssertions {
	a.t.Helper()
	if outcome == nil {
		a.t.Error("outcome is nil")
		a.failed = true
		return &OutcomeAssertions{Assertions: a, outcome: &core.ActionOutcome{}}
	}
	return &OutcomeAssertions{Assertions: a, outcome: outcome}
}

// Responded asserts the cycle produced response content.
func (o *OutcomeAssertions) Responded() *OutcomeAssertions {
	o.t.Helper()
	if !o.outcome.Responded {
		o.t.Error("expected a response, cycle stayed silent")
		o.failed = true
	}
	return o
}

// Silent asserts the cycle produced no response content.
func (o *OutcomeAssertions) Silent() *OutcomeAssertions {
	o.t.Helper()
	if o.outcome.Responded {
		o.t.Errorf("expected silence, got response %q", o.outcome.Response.Text)
		o.failed = true
	}
	return o
}

// ResponseContains asserts the aggregated response contains the substring.
func (o *OutcomeAssertions) ResponseContains(substr string) *OutcomeAssertions {
	o.t.Helper()
	if !strings.Contains(o.outcome.Response.Text, substr) {
		o.t.Errorf("response %q does not contain %q", o.outcome.Response.Text, substr)
		o.failed = true
	}
	return o
}

// RanAction asserts the named action executed.
func (o *OutcomeAssertions) RanAction(name string) *OutcomeAssertions {
	o.t.Helper()
	for _, res := range o.outcome.Results {
		if res.Action == name {
			return o
		}
	}
	o.t.Errorf("action %q did not execute, ran %s", name, formatActions(o.outcome.Results))
	o.failed = true
	return o
}

// ActionSucceeded asserts the named action executed and reported success.
func (o *OutcomeAssertions) ActionSucceeded(name string) *OutcomeAssertions {
	o.t.Helper()
	for _, res := range o.outcome.Results {
		if res.Action != name {
			continue
		}
		if !res.Success {
			o.t.Errorf("action %q failed: %s", name, res.Error)
			o.failed = true
		}
		return o
	}
	o.t.Errorf("action %q did not execute, ran %s", name, formatActions(o.outcome.Results))
	o.failed = true
	return o
}

// Evaluated asserts the named evaluator ran.
func (o *OutcomeAssertions) Evaluated(name string) *OutcomeAssertions {
	o.t.Helper()
	for _, ev := range o.outcome.Evaluations {
		if ev.Evaluator == name {
			return o
		}
	}
	o.t.Errorf("evaluator %q did not run", name)
	o.failed = true
	return o
}

// StateContains asserts the composed state text contains the substring.
func (o *OutcomeAssertions) StateContains(substr string) *OutcomeAssertions {
	o.t.Helper()
	if !strings.Contains(o.outcome.StateText, substr) {
		o.t.Errorf("state %q does not contain %q", o.outcome.StateText, substr)
		o.failed = true
	}
	return o
}

// Quick assertion functions for common patterns

// RequireNoError fails the test immediately if err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// RequireEqual fails the test immediately if values are not equal.
func RequireEqual(t *testing.T, expected, actual any, msg string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// RequireNotNil fails the test immediately if value is nil.
func RequireNotNil(t *testing.T, value any, msg string) {
	t.Helper()
	if value == nil {
		t.Fatalf("%s: expected non-nil value", msg)
	}
}

func formatActions(results []core.ActionResult) string {
	if len(results) == 0 {
		return "(none)"
	}
	names := make([]string, len(results))
	for i, res := range results {
		names[i] = res.Action
	}
	return fmt.Sprintf("[%s]", strings.Join(names, ", "))
}
