package bootstrap

import (
	"context"
	"testing"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

func TestReplyGeneratesResponse(t *testing.T) {
	tk := newFakeToolkit()
	tk.character = core.Character{Name: "ada", System: "You are Ada."}
	var captured core.ModelRequest
	tk.models[core.ModelTextLarge] = func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		captured = req
		return core.ModelResponse{Text: "  Tea is at four.  "}, nil
	}
	roomID := core.NewID()
	msg := userMessage(roomID, "when is tea?")
	st := &core.State{Text: "# Context\nsome facts", Values: map[string]any{}, Data: map[string]any{}}

	res, err := replyAction().Handler(context.Background(), tk, msg, st, nil)
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !res.Success || res.Text != "Tea is at four." {
		t.Errorf("result = %+v", res)
	}
	if len(res.Responses) != 1 {
		t.Fatalf("responses = %d", len(res.Responses))
	}
	out := res.Responses[0]
	if out.EntityID != tk.agentID || out.RoomID != roomID || out.Content.Source != "bootstrap" {
		t.Errorf("response memory = %+v", out)
	}
	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %+v", captured.Messages)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "You are Ada." {
		t.Errorf("persona turn = %+v", captured.Messages[0])
	}
	if captured.Messages[1].Content != st.Text {
		t.Errorf("context turn = %+v", captured.Messages[1])
	}
	if captured.Messages[2].Role != "user" || captured.Messages[2].Content != "when is tea?" {
		t.Errorf("user turn = %+v", captured.Messages[2])
	}
}

func TestReplyOmitsEmptyTurns(t *testing.T) {
	tk := newFakeToolkit()
	var captured core.ModelRequest
	tk.models[core.ModelTextLarge] = func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		captured = req
		return core.ModelResponse{Text: "ok"}, nil
	}

	_, err := replyAction().Handler(context.Background(), tk, userMessage(core.NewID(), "hi"), core.NewState(), nil)
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", captured.Messages)
	}
}

func TestReplyFallsBackToSmallModel(t *testing.T) {
	tk := newFakeToolkit()
	smallCalled := false
	tk.models[core.ModelTextSmall] = func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		smallCalled = true
		return core.ModelResponse{Text: "small says hi"}, nil
	}

	res, err := replyAction().Handler(context.Background(), tk, userMessage(core.NewID(), "hi"), core.NewState(), nil)
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !smallCalled || res.Text != "small says hi" {
		t.Errorf("fallback not used: %+v", res)
	}
}

func TestReplyPropagatesBackendError(t *testing.T) {
	tk := newFakeToolkit()
	smallCalled := false
	tk.models[core.ModelTextLarge] = func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		return core.ModelResponse{}, errors.New(errors.CodeModelBackend, "backend down", nil)
	}
	tk.models[core.ModelTextSmall] = func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		smallCalled = true
		return core.ModelResponse{Text: "nope"}, nil
	}

	_, err := replyAction().Handler(context.Background(), tk, userMessage(core.NewID(), "hi"), core.NewState(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsCode(err, errors.CodeModelBackend) {
		t.Errorf("err = %v", err)
	}
	if smallCalled {
		t.Error("backend errors must not trigger the fallback model")
	}
}

func TestReplyEmptyCompletionIsSilent(t *testing.T) {
	tk := newFakeToolkit()
	tk.models[core.ModelTextLarge] = func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		return core.ModelResponse{Text: "   "}, nil
	}

	res, err := replyAction().Handler(context.Background(), tk, userMessage(core.NewID(), "hi"), core.NewState(), nil)
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if !res.Success || res.Text != "" || len(res.Responses) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestReplyValidate(t *testing.T) {
	tk := newFakeToolkit()
	tests := []struct {
		name string
		msg  core.Memory
		want bool
	}{
		{"plain text", userMessage(core.NewID(), "hello"), true},
		{"blank text", userMessage(core.NewID(), "   "), false},
		{"explicit other action", userMessage(core.NewID(), "hello", "IGNORE"), false},
		{"explicit reply", userMessage(core.NewID(), "hello", "reply"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replyAction().Validate(context.Background(), tk, tt.msg, core.NewState())
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Validate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIgnoreAndNoneRunOnlyWhenRequested(t *testing.T) {
	tk := newFakeToolkit()
	for _, action := range []core.Action{ignoreAction(), noneAction()} {
		ok, err := action.Validate(context.Background(), tk, userMessage(core.NewID(), "hello"), core.NewState())
		if err != nil || ok {
			t.Errorf("%s: Validate = %v, %v; want false", action.Name, ok, err)
		}
		ok, err = action.Validate(context.Background(), tk, userMessage(core.NewID(), "hello", action.Name), core.NewState())
		if err != nil || !ok {
			t.Errorf("%s: Validate requested = %v, %v; want true", action.Name, ok, err)
		}
		res, err := action.Handler(context.Background(), tk, userMessage(core.NewID(), "hello", action.Name), core.NewState(), nil)
		if err != nil {
			t.Fatalf("%s: Handler: %v", action.Name, err)
		}
		if !res.Success || len(res.Responses) != 0 {
			t.Errorf("%s: result = %+v", action.Name, res)
		}
	}
}
