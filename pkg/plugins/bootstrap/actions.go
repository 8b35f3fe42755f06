package bootstrap

import (
	"context"
	"strings"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

func replyAction() core.Action {
	return core.Action{
		Name:        "REPLY",
		Similes:     []string{"RESPOND", "ANSWER"},
		Description: "Generate a conversational reply with the configured text model.",
		Providers:   []string{"KNOWLEDGE"},
		Examples: [][]core.ActionExample{
			{
				{Name: "user", Content: core.Content{Text: "What can you help me with?"}},
				{Name: "agent", Content: core.Content{Text: "Quite a lot. What are you working on?", Actions: []string{"REPLY"}}},
			},
		},
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State) (bool, error) {
			if strings.TrimSpace(msg.Content.Text) == "" {
				return false, nil
			}
			if hasExplicitRequest(msg) && !requested(msg, "REPLY") {
				return false, nil
			}
			return true, nil
		},
		Handler: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, prior []core.ActionResult) (core.ActionResult, error) {
			resp, err := generate(ctx, tk, core.ModelTextLarge, core.ModelTextSmall, core.ModelRequest{
				Messages: replyMessages(tk.Character(), st, msg),
			})
			if err != nil {
				return core.ActionResult{}, err
			}
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				return core.ActionResult{Success: true}, nil
			}
			out := core.NewMemory(tk.AgentID(), msg.RoomID, core.Content{
				Text:   text,
				Source: "bootstrap",
			})
			out.AgentID = tk.AgentID()
			return core.ActionResult{
				Success:   true,
				Text:      text,
				Responses: []core.Memory{out},
			}, nil
		},
	}
}

func ignoreAction() core.Action {
	return core.Action{
		Name:        "IGNORE",
		Similes:     []string{"STOP_TALKING", "DISMISS"},
		Description: "Deliberately produce no reply for this message.",
		Examples: [][]core.ActionExample{
			{
				{Name: "user", Content: core.Content{Text: "Go away.", Actions: []string{"IGNORE"}}},
				{Name: "agent", Content: core.Content{Actions: []string{"IGNORE"}}},
			},
		},
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State) (bool, error) {
			return requested(msg, "IGNORE"), nil
		},
		Handler: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, prior []core.ActionResult) (core.ActionResult, error) {
			return core.ActionResult{Success: true}, nil
		},
	}
}

func noneAction() core.Action {
	return core.Action{
		Name:        core.ActionNone,
		Description: "Acknowledge the message without replying or acting.",
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State) (bool, error) {
			return requested(msg, core.ActionNone), nil
		},
		Handler: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, prior []core.ActionResult) (core.ActionResult, error) {
			return core.ActionResult{Success: true}, nil
		},
	}
}

// replyMessages shapes the chat request: persona as the system turn, the
// composed state as a second system turn, then the user's message.
func replyMessages(c core.Character, st *core.State, msg core.Memory) []core.ModelMessage {
	messages := make([]core.ModelMessage, 0, 3)
	if system := strings.TrimSpace(c.System); system != "" {
		messages = append(messages, core.ModelMessage{Role: "system", Content: system})
	}
	if st != nil && strings.TrimSpace(st.Text) != "" {
		messages = append(messages, core.ModelMessage{Role: "system", Content: st.Text})
	}
	messages = append(messages, core.ModelMessage{Role: "user", Content: msg.Content.Text})
	return messages
}

// generate invokes the preferred model class, falling back once when no
// handler is registered for it. Any other failure is returned as is.
func generate(ctx context.Context, tk core.Toolkit, preferred, fallback core.ModelClass, req core.ModelRequest) (core.ModelResponse, error) {
	resp, err := tk.UseModel(ctx, preferred, req)
	if err == nil {
		return resp, nil
	}
	if fallback == "" || !errors.IsCode(err, errors.CodeNoModelHandler) {
		return resp, err
	}
	return tk.UseModel(ctx, fallback, req)
}
