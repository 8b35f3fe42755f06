package bootstrap

import (
	"context"
	"strings"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

func reflectionEvaluator() core.Evaluator {
	return core.Evaluator{
		Name:        "REFLECTION",
		Description: "Distills a completed exchange into a stored fact.",
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State) (bool, error) {
			return strings.TrimSpace(msg.Content.Text) != "", nil
		},
		Evaluate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, outcome *core.ActionOutcome) (core.EvaluatorResult, error) {
			if outcome == nil || !outcome.Responded {
				return core.EvaluatorResult{Evaluator: "REFLECTION", Success: true}, nil
			}
			resp, err := generate(ctx, tk, core.ModelTextSmall, core.ModelTextLarge, core.ModelRequest{
				Prompt: reflectionPrompt(msg, outcome),
			})
			if err != nil {
				return core.EvaluatorResult{}, err
			}
			summary := strings.TrimSpace(resp.Text)
			if summary == "" {
				return core.EvaluatorResult{Evaluator: "REFLECTION", Success: true}, nil
			}
			rec := core.NewMemory(tk.AgentID(), msg.RoomID, core.Content{
				Text:   summary,
				Source: "reflection",
			})
			rec.AgentID = tk.AgentID()
			rec.Metadata = map[string]any{"kind": "reflection"}
			id, err := tk.Store().SaveMemory(ctx, rec)
			if err != nil {
				// A missing store degrades reflection to transient, it does
				// not fail the evaluator.
				if errors.IsCode(err, errors.CodeUnavailable) {
					return core.EvaluatorResult{
						Evaluator: "REFLECTION",
						Success:   true,
						Text:      summary,
						Data:      map[string]any{"persisted": false},
					}, nil
				}
				return core.EvaluatorResult{}, err
			}
			return core.EvaluatorResult{
				Evaluator: "REFLECTION",
				Success:   true,
				Text:      summary,
				Data:      map[string]any{"persisted": true, "memory_id": id.String()},
			}, nil
		},
	}
}

func reflectionPrompt(msg core.Memory, outcome *core.ActionOutcome) string {
	var b strings.Builder
	b.WriteString("Summarize the notable facts from this exchange in one short sentence. Reply with only the summary.\n\n")
	b.WriteString("User: " + strings.TrimSpace(msg.Content.Text) + "\n")
	b.WriteString("Agent: " + strings.TrimSpace(outcome.Response.Text) + "\n")
	return b.String()
}
