package testing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/memory"
	"github.com/daimon-agents/daimon/pkg/runtime"
)

// fixturePlugin contributes one action, one provider and one evaluator so
// scenarios have something real to exercise.
func fixturePlugin() core.Plugin {
	echo := core.Action{
		Name:        "ECHO",
		Description: "Replies using the scripted model.",
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State) (bool, error) {
			return strings.TrimSpace(msg.Content.Text) != "", nil
		},
		Handler: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, prior []core.ActionResult) (core.ActionResult, error) {
			resp, err := tk.UseModel(ctx, core.ModelTextLarge, core.ModelRequest{Prompt: msg.Content.Text})
			if err != nil {
				return core.ActionResult{}, err
			}
			out := core.NewMemory(tk.AgentID(), msg.RoomID, core.Content{Text: resp.Text, Source: "fixture"})
			out.AgentID = tk.AgentID()
			return core.ActionResult{Success: true, Text: resp.Text, Responses: []core.Memory{out}}, nil
		},
	}
	greeting := core.Provider{
		Name:        "GREETING",
		Description: "Static context line.",
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			return core.ProviderResult{Text: "The agent is under test."}, nil
		},
	}
	recap := core.Evaluator{
		Name:        "RECAP",
		Description: "Marks the cycle as seen.",
		Evaluate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, outcome *core.ActionOutcome) (core.EvaluatorResult, error) {
			return core.EvaluatorResult{Evaluator: "RECAP", Success: true}, nil
		},
	}
	return core.Plugin{
		Name:        "fixture",
		Description: "Capabilities for harness tests.",
		Actions:     []core.Action{echo},
		Providers:   []core.Provider{greeting},
		Evaluators:  []core.Evaluator{recap},
	}
}

func newFixtureRuntime(t *testing.T, model *ScriptedModel, events *EventCollector) *runtime.Runtime {
	t.Helper()
	opts := []runtime.Option{
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithStore(memory.NewInMemoryStore()),
		runtime.WithPlugins(fixturePlugin(), model.Plugin("scripted-model")),
	}
	if events != nil {
		opts = append(opts, runtime.WithEmitter(events))
	}
	rt, err := runtime.New(core.Character{Name: "scout"}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = rt.Stop(context.Background()) })
	return rt
}

func TestScenarioRunsCycle(t *testing.T) {
	model := NewScriptedModel().Reply("All systems go.")
	events := NewEventCollector()
	rt := newFixtureRuntime(t, model, events)

	scenario := NewScenario("echo cycle").
		WithDescription("one full message cycle through the fixture plugin").
		WithInput("status?").
		WithEvents(events).
		ExpectNoError().
		ExpectResponded().
		ExpectResponse(Contains("All systems go")).
		ExpectAction("ECHO").
		ExpectEvaluation("RECAP").
		ExpectState(Contains("The agent is under test")).
		ExpectEvent(core.EventCycleCompleted).
		ExpectMaxDuration(5 * time.Second)

	result := scenario.Run(t, rt)
	scenario.Assert(t, result)

	if len(result.Delivered) != 1 {
		t.Fatalf("delivered %d contents, want 1", len(result.Delivered))
	}
	if model.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", model.Calls())
	}
}

func TestScenarioSilentCycle(t *testing.T) {
	model := NewScriptedModel()
	rt := newFixtureRuntime(t, model, nil)

	scenario := NewScenario("blank input").
		WithInput("   ").
		ExpectNoError().
		ExpectSilent().
		ExpectNoActions()

	result := scenario.Run(t, rt)
	scenario.Assert(t, result)

	if len(result.Delivered) != 1 {
		t.Fatalf("delivered %d contents, want the no-response signal", len(result.Delivered))
	}
	if got := result.Delivered[0].Actions; len(got) != 1 || got[0] != core.ActionNone {
		t.Errorf("delivered actions = %v", got)
	}
}

func TestScenarioErrorExpectation(t *testing.T) {
	model := NewScriptedModel()
	rt, err := runtime.New(core.Character{Name: "scout"},
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithPlugins(fixturePlugin(), model.Plugin("scripted-model")),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Never initialized, so the cycle must be refused.
	scenario := NewScenario("not running").
		WithInput("hi").
		ExpectError(Contains("runtime is"))

	result := scenario.Run(t, rt)
	scenario.Assert(t, result)
}

func TestScenarioProviderRestriction(t *testing.T) {
	model := NewScriptedModel().Reply("ok")
	rt := newFixtureRuntime(t, model, nil)

	scenario := NewScenario("empty state").
		WithInput("hi").
		WithProviders().
		ExpectNoError().
		ExpectState(Equals(""))

	result := scenario.Run(t, rt)
	scenario.Assert(t, result)
}

func TestScriptedModelQueue(t *testing.T) {
	model := NewScriptedModel().Reply("first", "second")
	handler := model.Handler()

	resp, err := handler(context.Background(), core.ModelRequest{Prompt: "a"})
	RequireNoError(t, err, "first call")
	RequireEqual(t, "first", resp.Text, "first response")

	resp, err = handler(context.Background(), core.ModelRequest{Prompt: "b"})
	RequireNoError(t, err, "second call")
	RequireEqual(t, "second", resp.Text, "second response")

	if _, err := handler(context.Background(), core.ModelRequest{Prompt: "c"}); err == nil {
		t.Fatal("expected exhaustion error")
	} else if !strings.Contains(err.Error(), "no more scripted responses") {
		t.Errorf("err = %v", err)
	}

	if model.Calls() != 3 {
		t.Errorf("calls = %d, want 3", model.Calls())
	}
	if last := model.LastRequest(); last == nil || last.Prompt != "c" {
		t.Errorf("last request = %+v", last)
	}

	model.Reset()
	if model.Calls() != 0 {
		t.Errorf("calls after reset = %d", model.Calls())
	}
	resp, err = handler(context.Background(), core.ModelRequest{Prompt: "a"})
	RequireNoError(t, err, "call after reset")
	RequireEqual(t, "first", resp.Text, "queue rewound")
}

func TestScriptedModelErrors(t *testing.T) {
	model := NewScriptedModel().
		Fail(errors.New("backend down")).
		WithDefaultError(errors.New("script exhausted"))
	handler := model.Handler()

	if _, err := handler(context.Background(), core.ModelRequest{}); err == nil || err.Error() != "backend down" {
		t.Fatalf("err = %v", err)
	}
	if _, err := handler(context.Background(), core.ModelRequest{}); err == nil || err.Error() != "script exhausted" {
		t.Fatalf("err = %v", err)
	}
}

func TestScriptedModelEmbedding(t *testing.T) {
	model := NewScriptedModel().Embed([]float32{0.1, 0.2, 0.3})
	resp, err := model.Handler()(context.Background(), core.ModelRequest{Input: "text"})
	RequireNoError(t, err, "embed call")
	if len(resp.Embedding) != 3 {
		t.Errorf("embedding = %v", resp.Embedding)
	}

	plugin := model.Plugin("embedder", core.ModelEmbedding)
	if len(plugin.Models) != 1 {
		t.Errorf("models = %d, want 1", len(plugin.Models))
	}
	if _, ok := plugin.Models[core.ModelEmbedding]; !ok {
		t.Error("embedding class not registered")
	}

	text := NewScriptedModel().Plugin("chat")
	if len(text.Models) != 2 {
		t.Errorf("default classes = %d, want both text classes", len(text.Models))
	}
}

func TestStringMatchers(t *testing.T) {
	tests := []struct {
		name    string
		matcher StringMatcher
		input   string
		match   bool
	}{
		{"contains match", Contains("world"), "hello world", true},
		{"contains no match", Contains("foo"), "hello world", false},
		{"equals match", Equals("hello"), "hello", true},
		{"equals no match", Equals("hello"), "Hello", false},
		{"prefix match", HasPrefix("hello"), "hello world", true},
		{"prefix no match", HasPrefix("world"), "hello world", false},
		{"regex match", Regex(`^h.*d$`), "hello world", true},
		{"regex no match", Regex(`^x`), "hello world", false},
		{"invalid regex", Regex(`[`), "anything", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.matcher.Match(tc.input); got != tc.match {
				t.Errorf("expected match=%v, got %v", tc.match, got)
			}
		})
	}
}

func TestMessageBuilder(t *testing.T) {
	entity := core.NewID()
	room := core.NewID()

	msg := NewMessage("run it").
		From(entity).
		In(room).
		WithSource("test").
		WithActions("CALL_MCP_TOOL").
		WithData("tool", "ping").
		Build()

	if msg.EntityID != entity || msg.RoomID != room {
		t.Errorf("identities = %v / %v", msg.EntityID, msg.RoomID)
	}
	if msg.Content.Text != "run it" || msg.Content.Source != "test" {
		t.Errorf("content = %+v", msg.Content)
	}
	if len(msg.Content.Actions) != 1 || msg.Content.Actions[0] != "CALL_MCP_TOOL" {
		t.Errorf("actions = %v", msg.Content.Actions)
	}
	if msg.Content.Data["tool"] != "ping" {
		t.Errorf("data = %v", msg.Content.Data)
	}
}

func TestEventCollector(t *testing.T) {
	c := NewEventCollector()
	c.Emit(context.Background(), core.Event{Type: core.EventCycleStarted})
	c.Emit(context.Background(), core.Event{Type: core.EventCycleCompleted})

	if c.Count() != 2 {
		t.Errorf("count = %d", c.Count())
	}
	if !c.Has(core.EventCycleStarted) || c.Has(core.EventActionFailed) {
		t.Error("Has reported wrong membership")
	}
	types := c.Types()
	if len(types) != 2 || types[0] != core.EventCycleStarted || types[1] != core.EventCycleCompleted {
		t.Errorf("types = %v", types)
	}

	c.Reset()
	if c.Count() != 0 {
		t.Errorf("count after reset = %d", c.Count())
	}
}

func TestOutcomeAssertions(t *testing.T) {
	outcome := &core.ActionOutcome{
		Results:     []core.ActionResult{{Action: "ECHO", Success: true}},
		Evaluations: []core.EvaluatorResult{{Evaluator: "RECAP", Success: true}},
		Response:    core.Content{Text: "done"},
		Responded:   true,
		StateText:   "context line",
	}

	a := NewAssertions(t)
	a.AssertOutcome(outcome).
		Responded().
		ResponseContains("done").
		RanAction("ECHO").
		ActionSucceeded("ECHO").
		Evaluated("RECAP").
		StateContains("context")
	if a.Failed() {
		t.Error("assertions should have passed")
	}
}

func TestModelRequestAssertions(t *testing.T) {
	req := &core.ModelRequest{
		Messages: []core.ModelMessage{
			{Role: "system", Content: "persona text"},
			{Role: "user", Content: "hi there"},
		},
	}

	a := NewAssertions(t)
	a.AssertModelRequest(req).
		HasMessageCount(2).
		HasSystemTurn("persona").
		HasUserTurn("hi")
	if a.Failed() {
		t.Error("assertions should have passed")
	}
}
