package runtime

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/memory"
)

// echoAction validates on non-empty text and replies with an echo,
// prefixing the composed state so tests can assert providers fed in.
func echoAction() core.Action {
	return core.Action{
		Name:        "ECHO",
		Description: "repeats the message back",
		Validate: func(_ context.Context, _ core.Toolkit, msg core.Memory, _ *core.State) (bool, error) {
			return strings.TrimSpace(msg.Content.Text) != "", nil
		},
		Handler: func(_ context.Context, tk core.Toolkit, msg core.Memory, st *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			reply := "echo: " + msg.Content.Text
			return core.ActionResult{
				Action:  "ECHO",
				Success: true,
				Text:    st.Text,
				Responses: []core.Memory{
					core.NewMemory(tk.AgentID(), msg.RoomID, core.Content{Text: reply}),
				},
			}, nil
		},
	}
}

func TestHandleMessageEchoCycle(t *testing.T) {
	store := memory.NewInMemoryStore()
	r := newRunning(t,
		WithStore(store),
		WithPlugins(core.Plugin{
			Name:      "echo",
			Actions:   []core.Action{echoAction()},
			Providers: []core.Provider{textProvider("CTX", 0, "ctx:A")},
		}),
	)

	rec := &callbackRecorder{}
	msg := inboundMessage("hello")
	outcome, err := r.HandleMessage(context.Background(), msg, WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !outcome.Responded {
		t.Fatal("outcome not marked responded")
	}
	if outcome.StateText != "ctx:A" {
		t.Fatalf("state text = %q, want %q", outcome.StateText, "ctx:A")
	}
	if len(outcome.Results) != 1 || !outcome.Results[0].Success {
		t.Fatalf("unexpected results: %+v", outcome.Results)
	}

	if got := rec.count(); got != 1 {
		t.Fatalf("callback invoked %d times, want 1", got)
	}
	reply := rec.last()
	if reply.Text != "echo: hello" {
		t.Fatalf("reply text = %q, want %q", reply.Text, "echo: hello")
	}
	if len(reply.Actions) != 1 || reply.Actions[0] != "ECHO" {
		t.Fatalf("reply actions = %v, want [ECHO]", reply.Actions)
	}
	if reply.InReplyTo == nil {
		t.Fatal("reply does not reference the inbound message")
	}

	// Inbound message and response both persisted to the same room.
	count, err := store.CountMemories(context.Background(), msg.RoomID)
	if err != nil {
		t.Fatalf("CountMemories: %v", err)
	}
	if count != 2 {
		t.Fatalf("persisted %d memories, want 2", count)
	}
}

func TestHandleMessageNoCandidates(t *testing.T) {
	never := core.Action{
		Name: "NEVER",
		Validate: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State) (bool, error) {
			return false, nil
		},
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			t.Error("handler ran for an action that failed validation")
			return core.ActionResult{}, nil
		},
	}
	r := newRunning(t, WithPlugins(core.Plugin{Name: "picky", Actions: []core.Action{never}}))

	rec := &callbackRecorder{}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("hi"), WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !outcome.NoAction {
		t.Fatal("outcome not marked no-action")
	}
	if outcome.Responded {
		t.Fatal("no-action outcome marked responded")
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("callback invoked %d times, want exactly 1", got)
	}
	content := rec.last()
	if len(content.Actions) != 1 || content.Actions[0] != core.ActionNone {
		t.Fatalf("no-response signal actions = %v, want [%s]", content.Actions, core.ActionNone)
	}
	if content.Text != "" {
		t.Fatalf("no-response signal carries text: %q", content.Text)
	}
}

func TestHandleMessageAggregatesResponses(t *testing.T) {
	r := newRunning(t, WithPlugins(core.Plugin{
		Name: "duo",
		Actions: []core.Action{
			respondAction("FIRST", "part one"),
			respondAction("SECOND", "part two"),
		},
	}))

	rec := &callbackRecorder{}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("go"), WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("callback invoked %d times, want 1", got)
	}
	reply := rec.last()
	if want := "part one\n\npart two"; reply.Text != want {
		t.Fatalf("aggregated text = %q, want %q", reply.Text, want)
	}
	if len(reply.Actions) != 2 || reply.Actions[0] != "FIRST" || reply.Actions[1] != "SECOND" {
		t.Fatalf("contributing actions = %v, want [FIRST SECOND]", reply.Actions)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("ran %d actions, want 2", len(outcome.Results))
	}
}

func TestActionFailureIsolated(t *testing.T) {
	failing := core.Action{
		Name: "FAILS",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			return core.ActionResult{}, errors.New(errors.CodeInternal, "handler broke", nil)
		},
	}
	r := newRunning(t, WithPlugins(core.Plugin{
		Name:    "mixed",
		Actions: []core.Action{failing, respondAction("WORKS", "still here")},
	}))

	rec := &callbackRecorder{}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("go"), WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("ran %d actions, want 2", len(outcome.Results))
	}
	if outcome.Results[0].Success {
		t.Fatal("failing action reported success")
	}
	if outcome.Results[0].Error == "" {
		t.Fatal("failed result lost its error")
	}
	if !outcome.Results[1].Success {
		t.Fatal("second action did not run after the first failed")
	}
	if got := rec.last().Text; got != "still here" {
		t.Fatalf("reply = %q, want the surviving action's text", got)
	}
}

func TestActionPanicIsolated(t *testing.T) {
	panicky := core.Action{
		Name: "PANICS",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			panic("handler exploded")
		},
	}
	r := newRunning(t, WithPlugins(core.Plugin{Name: "volatile", Actions: []core.Action{panicky}}))

	rec := &callbackRecorder{}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("go"), WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(outcome.Results) != 1 || outcome.Results[0].Success {
		t.Fatalf("unexpected results: %+v", outcome.Results)
	}
	if !strings.Contains(outcome.Results[0].Error, "panic") {
		t.Fatalf("result error = %q, want panic mention", outcome.Results[0].Error)
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("callback invoked %d times, want 1", got)
	}
	if actions := rec.last().Actions; len(actions) != 1 || actions[0] != core.ActionNone {
		t.Fatalf("expected the no-response signal, got %v", actions)
	}
}

func TestActionTimeoutFailsLikeError(t *testing.T) {
	slow := core.Action{
		Name: "SLOW",
		Handler: func(ctx context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
			}
			return core.ActionResult{Action: "SLOW", Success: true}, nil
		},
	}
	r := newRunning(t,
		WithPlugins(core.Plugin{Name: "timing", Actions: []core.Action{slow}}),
		WithTimeouts(Timeouts{Action: 20 * time.Millisecond}),
	)

	start := time.Now()
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("go"))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Fatalf("cycle waited out the slow handler: %v", elapsed)
	}
	if len(outcome.Results) != 1 || outcome.Results[0].Success {
		t.Fatalf("timed-out action should fail: %+v", outcome.Results)
	}
	if !strings.Contains(outcome.Results[0].Error, "timeout") {
		t.Fatalf("result error = %q, want timeout mention", outcome.Results[0].Error)
	}
}

func TestActionsSeePriorResults(t *testing.T) {
	second := core.Action{
		Name: "SECOND",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, prior []core.ActionResult) (core.ActionResult, error) {
			if len(prior) != 1 || prior[0].Action != "FIRST" {
				t.Errorf("prior results = %+v, want the first action's result", prior)
			}
			return core.ActionResult{Action: "SECOND", Success: true}, nil
		},
	}
	r := newRunning(t, WithPlugins(core.Plugin{
		Name:    "chain",
		Actions: []core.Action{respondAction("FIRST", "one"), second},
	}))

	if _, err := r.HandleMessage(context.Background(), inboundMessage("go")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
}

func TestStateImmutableAcrossActions(t *testing.T) {
	mutator := core.Action{
		Name: "MUTATOR",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, st *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			st.Values["hijacked"] = true
			st.Text = "rewritten"
			return core.ActionResult{Action: "MUTATOR", Success: true}, nil
		},
	}
	checker := core.Action{
		Name: "CHECKER",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, st *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			if _, ok := st.Value("hijacked"); ok {
				t.Error("state mutation leaked between actions")
			}
			if st.Text != "base" {
				t.Errorf("state text = %q, want %q", st.Text, "base")
			}
			return core.ActionResult{Action: "CHECKER", Success: true}, nil
		},
	}
	r := newRunning(t, WithPlugins(core.Plugin{
		Name:      "immutability",
		Actions:   []core.Action{mutator, checker},
		Providers: []core.Provider{textProvider("BASE", 0, "base")},
	}))

	if _, err := r.HandleMessage(context.Background(), inboundMessage("go")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
}

func TestResponseDefaultsFilled(t *testing.T) {
	bare := core.Action{
		Name: "BARE",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			// Deliberately sparse: no ids, no room, no action names.
			return core.ActionResult{
				Action:    "BARE",
				Success:   true,
				Responses: []core.Memory{{Content: core.Content{Text: "minimal"}}},
			}, nil
		},
	}
	store := memory.NewInMemoryStore()
	r := newRunning(t, WithStore(store), WithPlugins(core.Plugin{Name: "bare", Actions: []core.Action{bare}}))

	msg := inboundMessage("go")
	if _, err := r.HandleMessage(context.Background(), msg, WithCallback((&callbackRecorder{}).fn)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	saved, err := store.GetMemories(context.Background(), core.MemoryQuery{RoomID: msg.RoomID, Limit: 10})
	if err != nil {
		t.Fatalf("GetMemories: %v", err)
	}
	var response *core.Memory
	for i := range saved {
		if saved[i].Content.Text == "minimal" {
			response = &saved[i]
		}
	}
	if response == nil {
		t.Fatal("response not persisted")
	}
	if response.RoomID != msg.RoomID {
		t.Fatal("response room not defaulted to the inbound room")
	}
	if response.EntityID != r.AgentID() || response.AgentID != r.AgentID() {
		t.Fatal("response identity not defaulted to the agent")
	}
	if response.Content.InReplyTo == nil {
		t.Fatal("response in_reply_to not defaulted")
	}
	if len(response.Content.Actions) != 1 || response.Content.Actions[0] != "BARE" {
		t.Fatalf("response actions = %v, want [BARE]", response.Content.Actions)
	}
}

func TestCallbackErrorLoggedNotFatal(t *testing.T) {
	r := newRunning(t, WithPlugins(core.Plugin{Name: "echo", Actions: []core.Action{respondAction("OK", "fine")}}))

	failing := func(_ context.Context, _ core.Content) error {
		return errors.New(errors.CodeInternal, "transport gone", nil)
	}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("go"), WithCallback(failing))
	if err != nil {
		t.Fatalf("HandleMessage failed on callback error: %v", err)
	}
	if !outcome.Responded {
		t.Fatal("outcome lost its response on callback error")
	}
}

func TestSilentCycle(t *testing.T) {
	quiet := core.Action{
		Name: "QUIET",
		Handler: func(_ context.Context, _ core.Toolkit, _ core.Memory, _ *core.State, _ []core.ActionResult) (core.ActionResult, error) {
			return core.ActionResult{Action: "QUIET", Success: true}, nil
		},
	}
	r := newRunning(t, WithPlugins(core.Plugin{Name: "quiet", Actions: []core.Action{quiet}}))

	rec := &callbackRecorder{}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("go"), WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if outcome.Responded || outcome.NoAction {
		t.Fatalf("silent cycle flags wrong: responded=%v noAction=%v", outcome.Responded, outcome.NoAction)
	}
	if got := rec.count(); got != 1 {
		t.Fatalf("callback invoked %d times, want 1", got)
	}
	if actions := rec.last().Actions; len(actions) != 1 || actions[0] != core.ActionNone {
		t.Fatalf("silent cycle signal = %v, want [%s]", actions, core.ActionNone)
	}
}

func TestConcurrentCyclesIsolated(t *testing.T) {
	store := memory.NewInMemoryStore()
	r := newRunning(t,
		WithStore(store),
		WithPlugins(core.Plugin{Name: "echo", Actions: []core.Action{echoAction()}}),
	)

	const n = 10
	rooms := make([]core.ID, n)
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		rooms[i] = core.NewID()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := core.NewMemory(core.NewID(), rooms[i], core.Content{Text: "hello"})
			_, errs[i] = r.HandleMessage(context.Background(), msg)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	for i, room := range rooms {
		count, err := store.CountMemories(context.Background(), room)
		if err != nil {
			t.Fatalf("CountMemories: %v", err)
		}
		if count != 2 {
			t.Fatalf("room %d has %d memories, want 2", i, count)
		}
	}
}

func TestHandleMessageWithoutStore(t *testing.T) {
	r := newRunning(t, WithPlugins(core.Plugin{Name: "echo", Actions: []core.Action{echoAction()}}))

	rec := &callbackRecorder{}
	outcome, err := r.HandleMessage(context.Background(), inboundMessage("hello"), WithCallback(rec.fn))
	if err != nil {
		t.Fatalf("HandleMessage without a store: %v", err)
	}
	if !outcome.Responded {
		t.Fatal("cycle did not respond without a store")
	}
	if got := rec.last().Text; got != "echo: hello" {
		t.Fatalf("reply = %q, want %q", got, "echo: hello")
	}
}
