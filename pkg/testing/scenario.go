// Package testing provides utilities for testing Daimon agents and plugins.
//
// This package includes:
//   - Scenario definitions for declarative message-cycle testing
//   - Scripted model handlers with request capture
//   - Assertion helpers for common validations
//   - Event collectors for verifying runtime behavior
//
// Example usage:
//
//	scenario := testing.NewScenario("greeting").
//	    WithInput("Hello").
//	    ExpectResponded().
//	    ExpectResponse(testing.Contains("Hello"))
//
//	result := scenario.Run(t, rt)
//	scenario.Assert(t, result)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/runtime"
)

// CycleRunner runs one message cycle. *runtime.Runtime satisfies it.
type CycleRunner interface {
	HandleMessage(ctx context.Context, msg core.Memory, opts ...runtime.HandleOption) (*core.ActionOutcome, error)
}

// Scenario describes one message cycle and the conditions to verify on its
// outcome.
type Scenario struct {
	name          string
	description   string
	input         string
	content       *core.Content
	entityID      core.ID
	roomID        core.ID
	providers     []string
	providersSet  bool
	context       context.Context
	timeout       time.Duration
	expectations  []Expectation
	setupFuncs    []func() error
	teardownFuncs []func() error
	events        *EventCollector
}

// Expectation is one condition to verify against a scenario result.
type Expectation interface {
	Check(result *ScenarioResult) error
	Description() string
}

// ScenarioResult is the outcome of running a scenario.
type ScenarioResult struct {
	Outcome   *core.ActionOutcome
	Delivered []core.Content
	Error     error
	Events    []core.Event
	Duration  time.Duration
}

// Response returns the aggregated response text, or "" when the cycle
// errored or stayed silent.
func (r *ScenarioResult) Response() string {
	if r.Outcome == nil {
		return ""
	}
	return r.Outcome.Response.Text
}

// NewScenario creates a scenario with a fresh sender and room.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:     name,
		entityID: core.NewID(),
		roomID:   core.NewID(),
		context:  context.Background(),
		timeout:  30 * time.Second,
	}
}

// WithDescription adds a description to the scenario.
func (s *Scenario) WithDescription(desc string) *Scenario {
	s.description = desc
	return s
}

// WithInput sets the inbound message text.
func (s *Scenario) WithInput(input string) *Scenario {
	s.input = input
	return s
}

// WithContent replaces the whole inbound content, for messages that carry
// action requests or payload data.
func (s *Scenario) WithContent(content core.Content) *Scenario {
	s.content = &content
	return s
}

// WithEntity sets the sending entity.
func (s *Scenario) WithEntity(id core.ID) *Scenario {
	s.entityID = id
	return s
}

// WithRoom sets the conversation room.
func (s *Scenario) WithRoom(id core.ID) *Scenario {
	s.roomID = id
	return s
}

// WithProviders restricts state composition to the named providers.
func (s *Scenario) WithProviders(names ...string) *Scenario {
	s.providers = names
	s.providersSet = true
	return s
}

// WithContext sets the base context for the cycle.
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.context = ctx
	return s
}

// WithTimeout bounds the cycle.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// WithEvents attaches a collector whose events are snapshotted into the
// result. Register the same collector on the runtime with WithEmitter.
func (s *Scenario) WithEvents(c *EventCollector) *Scenario {
	s.events = c
	return s
}

// WithSetup adds a function to run before the cycle.
func (s *Scenario) WithSetup(fn func() error) *Scenario {
	s.setupFuncs = append(s.setupFuncs, fn)
	return s
}

// WithTeardown adds a function to run after the cycle.
func (s *Scenario) WithTeardown(fn func() error) *Scenario {
	s.teardownFuncs = append(s.teardownFuncs, fn)
	return s
}

// Expect adds an expectation.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectResponse expects the aggregated response text to match.
func (s *Scenario) ExpectResponse(matcher StringMatcher) *Scenario {
	return s.Expect(&responseExpectation{matcher: matcher})
}

// ExpectResponded expects some action to have produced response content.
func (s *Scenario) ExpectResponded() *Scenario {
	return s.Expect(&respondedExpectation{want: true})
}

// ExpectSilent expects the cycle to produce no response content.
func (s *Scenario) ExpectSilent() *Scenario {
	return s.Expect(&respondedExpectation{want: false})
}

// ExpectAction expects the named action to have executed.
func (s *Scenario) ExpectAction(name string) *Scenario {
	return s.Expect(&actionExpectation{name: name})
}

// ExpectNoActions expects no action to have validated for the message.
func (s *Scenario) ExpectNoActions() *Scenario {
	return s.Expect(&noActionsExpectation{})
}

// ExpectEvaluation expects the named evaluator to have run.
func (s *Scenario) ExpectEvaluation(name string) *Scenario {
	return s.Expect(&evaluationExpectation{name: name})
}

// ExpectState expects the composed state text to match.
func (s *Scenario) ExpectState(matcher StringMatcher) *Scenario {
	return s.Expect(&stateExpectation{matcher: matcher})
}

// ExpectEvent expects an event of the given type. Requires WithEvents.
func (s *Scenario) ExpectEvent(eventType core.EventType) *Scenario {
	return s.Expect(&eventExpectation{eventType: eventType})
}

// ExpectNoError expects the cycle to complete without error.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects an error matching the given pattern.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.Expect(&errorExpectation{matcher: matcher})
}

// ExpectMaxDuration expects the cycle to complete within the duration.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Message builds the inbound memory the scenario will send.
func (s *Scenario) Message() core.Memory {
	content := core.Content{Text: s.input}
	if s.content != nil {
		content = *s.content
	}
	return core.NewMemory(s.entityID, s.roomID, content)
}

// Run executes the scenario against the runner and captures the outcome.
// Expectations are not checked here; pass the result to Assert.
func (s *Scenario) Run(t *testing.T, rt CycleRunner) *ScenarioResult {
	t.Helper()

	for _, setup := range s.setupFuncs {
		if err := setup(); err != nil {
			t.Fatalf("scenario %q setup failed: %v", s.name, err)
		}
	}
	defer func() {
		for _, teardown := range s.teardownFuncs {
			if err := teardown(); err != nil {
				t.Errorf("scenario %q teardown failed: %v", s.name, err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(s.context, s.timeout)
	defer cancel()

	result := &ScenarioResult{}
	opts := []runtime.HandleOption{
		runtime.WithCallback(func(ctx context.Context, content core.Content) error {
			result.Delivered = append(result.Delivered, content)
			return nil
		}),
	}
	if s.providersSet {
		opts = append(opts, runtime.WithProviders(s.providers...))
	}

	start := time.Now()
	result.Outcome, result.Error = rt.HandleMessage(ctx, s.Message(), opts...)
	result.Duration = time.Since(start)

	if s.events != nil {
		result.Events = s.events.Events()
	}
	return result
}

// Assert checks every expectation and reports failures to the test.
func (s *Scenario) Assert(t *testing.T, result *ScenarioResult) {
	t.Helper()

	for _, exp := range s.expectations {
		if err := exp.Check(result); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", s.name, exp.Description(), err)
		}
	}
}

// StringMatcher matches strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains matches strings containing the substring.
func Contains(substr string) StringMatcher {
	return &containsMatcher{substr: substr}
}

// Equals matches exact string equality.
func Equals(expected string) StringMatcher {
	return &equalsMatcher{expected: expected}
}

// HasPrefix matches strings starting with the prefix.
func HasPrefix(prefix string) StringMatcher {
	return &prefixMatcher{prefix: prefix}
}

// Regex matches against a regular expression. An invalid pattern never
// matches.
func Regex(pattern string) StringMatcher {
	re, err := regexp.Compile(pattern)
	return &regexMatcher{pattern: pattern, re: re, err: err}
}

type containsMatcher struct {
	substr string
}

func (m *containsMatcher) Match(s string) bool { return strings.Contains(s, m.substr) }
func (m *containsMatcher) Description() string { return fmt.Sprintf("contains %q", m.substr) }

type equalsMatcher struct {
	expected string
}

func (m *equalsMatcher) Match(s string) bool { return s == m.expected }
func (m *equalsMatcher) Description() string { return fmt.Sprintf("equals %q", m.expected) }

type prefixMatcher struct {
	prefix string
}

func (m *prefixMatcher) Match(s string) bool { return strings.HasPrefix(s, m.prefix) }
func (m *prefixMatcher) Description() string { return fmt.Sprintf("has prefix %q", m.prefix) }

type regexMatcher struct {
	pattern string
	re      *regexp.Regexp
	err     error
}

func (m *regexMatcher) Match(s string) bool {
	if m.err != nil {
		return false
	}
	return m.re.MatchString(s)
}

func (m *regexMatcher) Description() string {
	if m.err != nil {
		return fmt.Sprintf("matches invalid regex %q", m.pattern)
	}
	return fmt.Sprintf("matches regex %q", m.pattern)
}

// Expectation implementations

type responseExpectation struct {
	matcher StringMatcher
}

func (e *responseExpectation) Check(r *ScenarioResult) error {
	if !e.matcher.Match(r.Response()) {
		return fmt.Errorf("response %q does not match: %s", r.Response(), e.matcher.Description())
	}
	return nil
}

func (e *responseExpectation) Description() string {
	return fmt.Sprintf("response %s", e.matcher.Description())
}

type respondedExpectation struct {
	want bool
}

func (e *respondedExpectation) Check(r *ScenarioResult) error {
	if r.Outcome == nil {
		return fmt.Errorf("cycle produced no outcome (error: %v)", r.Error)
	}
	if r.Outcome.Responded != e.want {
		return fmt.Errorf("responded = %v, want %v", r.Outcome.Responded, e.want)
	}
	return nil
}

func (e *respondedExpectation) Description() string {
	if e.want {
		return "responded"
	}
	return "silent"
}

type actionExpectation struct {
	name string
}

func (e *actionExpectation) Check(r *ScenarioResult) error {
	if r.Outcome == nil {
		return fmt.Errorf("cycle produced no outcome (error: %v)", r.Error)
	}
	for _, res := range r.Outcome.Results {
		if res.Action == e.name {
			return nil
		}
	}
	return fmt.Errorf("action %q did not execute", e.name)
}

func (e *actionExpectation) Description() string {
	return fmt.Sprintf("action %q executed", e.name)
}

type noActionsExpectation struct{}

func (e *noActionsExpectation) Check(r *ScenarioResult) error {
	if r.Outcome == nil {
		return fmt.Errorf("cycle produced no outcome (error: %v)", r.Error)
	}
	if !r.Outcome.NoAction {
		names := make([]string, len(r.Outcome.Results))
		for i, res := range r.Outcome.Results {
			names[i] = res.Action
		}
		return fmt.Errorf("expected no actions, got: %v", names)
	}
	return nil
}

func (e *noActionsExpectation) Description() string {
	return "no actions"
}

type evaluationExpectation struct {
	name string
}

func (e *evaluationExpectation) Check(r *ScenarioResult) error {
	if r.Outcome == nil {
		return fmt.Errorf("cycle produced no outcome (error: %v)", r.Error)
	}
	for _, ev := range r.Outcome.Evaluations {
		if ev.Evaluator == e.name {
			return nil
		}
	}
	return fmt.Errorf("evaluator %q did not run", e.name)
}

func (e *evaluationExpectation) Description() string {
	return fmt.Sprintf("evaluator %q ran", e.name)
}

type stateExpectation struct {
	matcher StringMatcher
}

func (e *stateExpectation) Check(r *ScenarioResult) error {
	if r.Outcome == nil {
		return fmt.Errorf("cycle produced no outcome (error: %v)", r.Error)
	}
	if !e.matcher.Match(r.Outcome.StateText) {
		return fmt.Errorf("state %q does not match: %s", r.Outcome.StateText, e.matcher.Description())
	}
	return nil
}

func (e *stateExpectation) Description() string {
	return fmt.Sprintf("state %s", e.matcher.Description())
}

type eventExpectation struct {
	eventType core.EventType
}

func (e *eventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event type %q was not emitted", e.eventType)
}

func (e *eventExpectation) Description() string {
	return fmt.Sprintf("event %q emitted", e.eventType)
}

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("expected no error, got: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string {
	return "no error"
}

type errorExpectation struct {
	matcher StringMatcher
}

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected error matching %s, got nil", e.matcher.Description())
	}
	if !e.matcher.Match(r.Error.Error()) {
		return fmt.Errorf("error %q does not match: %s", r.Error.Error(), e.matcher.Description())
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return fmt.Sprintf("error %s", e.matcher.Description())
}

type maxDurationExpectation struct {
	max time.Duration
}

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}

// EventCollector records runtime events. It implements core.EventEmitter,
// so it can be handed to the runtime directly.
type EventCollector struct {
	mu     sync.RWMutex
	events []core.Event
}

// NewEventCollector creates an empty collector.
func NewEventCollector() *EventCollector {
	return &EventCollector{}
}

// Emit implements core.EventEmitter.
func (c *EventCollector) Emit(ctx context.Context, event core.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the collected events.
func (c *EventCollector) Events() []core.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]core.Event, len(c.events))
	copy(result, c.events)
	return result
}

// Types returns the types of all collected events in order.
func (c *EventCollector) Types() []core.EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]core.EventType, len(c.events))
	for i, ev := range c.events {
		types[i] = ev.Type
	}
	return types
}

// Has reports whether an event of the given type was collected.
func (c *EventCollector) Has(eventType core.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ev := range c.events {
		if ev.Type == eventType {
			return true
		}
	}
	return false
}

// Count returns the number of collected events.
func (c *EventCollector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Reset clears all collected events.
func (c *EventCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
