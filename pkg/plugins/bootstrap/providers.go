package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
)

// actionCatalog is the introspection surface the ACTIONS provider needs.
// The runtime's Toolkit implementation satisfies it.
type actionCatalog interface {
	Actions() []core.Action
}

func timeProvider() core.Provider {
	return core.Provider{
		Name:        "TIME",
		Description: "Current date and time in UTC.",
		Position:    -10,
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			now := time.Now().UTC()
			return core.ProviderResult{
				Text: "The current date and time is " + now.Format("Monday, January 2, 2006 at 15:04 UTC") + ".",
				Values: map[string]any{
					"time": now.Format(time.RFC3339),
					"date": now.Format("2006-01-02"),
				},
			}, nil
		},
	}
}

func characterProvider() core.Provider {
	return core.Provider{
		Name:        "CHARACTER",
		Description: "The agent's persona: bio, traits, topics, and style.",
		Position:    0,
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			c := tk.Character()
			var b strings.Builder
			fmt.Fprintf(&b, "# About %s\n", c.Name)
			for _, line := range c.Bio {
				if line = strings.TrimSpace(line); line != "" {
					b.WriteString(line + "\n")
				}
			}
			if len(c.Adjectives) > 0 {
				fmt.Fprintf(&b, "%s is %s.\n", c.Name, strings.Join(c.Adjectives, ", "))
			}
			if len(c.Topics) > 0 {
				fmt.Fprintf(&b, "Interests: %s.\n", strings.Join(c.Topics, ", "))
			}
			directives := append(append([]string(nil), c.Style.All...), c.Style.Chat...)
			if len(directives) > 0 {
				b.WriteString("Style:\n")
				for _, d := range directives {
					b.WriteString("- " + d + "\n")
				}
			}
			return core.ProviderResult{
				Text:   strings.TrimRight(b.String(), "\n"),
				Values: map[string]any{"agent_name": c.Name},
			}, nil
		},
	}
}

func actionsProvider() core.Provider {
	return core.Provider{
		Name:        "ACTIONS",
		Description: "The actions currently registered with the runtime.",
		Position:    50,
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			cat, ok := tk.(actionCatalog)
			if !ok {
				return core.ProviderResult{}, nil
			}
			actions := cat.Actions()
			if len(actions) == 0 {
				return core.ProviderResult{}, nil
			}
			names := make([]string, 0, len(actions))
			var b strings.Builder
			b.WriteString("# Available actions\n")
			for _, a := range actions {
				names = append(names, a.Name)
				if a.Description != "" {
					fmt.Fprintf(&b, "%s: %s\n", a.Name, a.Description)
				} else {
					b.WriteString(a.Name + "\n")
				}
			}
			return core.ProviderResult{
				Text:   strings.TrimRight(b.String(), "\n"),
				Values: map[string]any{"action_names": names},
			}, nil
		},
	}
}

func knowledgeProvider() core.Provider {
	return core.Provider{
		Name:        "KNOWLEDGE",
		Description: "Memories semantically similar to the current message.",
		Dynamic:     true,
		Position:    60,
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			text := strings.TrimSpace(msg.Content.Text)
			if text == "" {
				return core.ProviderResult{}, nil
			}
			emb, err := tk.UseModel(ctx, core.ModelEmbedding, core.ModelRequest{Input: text})
			if err != nil {
				return core.ProviderResult{}, err
			}
			if len(emb.Embedding) == 0 {
				return core.ProviderResult{}, nil
			}
			matches, err := tk.Store().SearchMemories(ctx, emb.Embedding, core.SearchFilter{
				RoomID:   msg.RoomID,
				Limit:    settingInt(tk, SettingKnowledgeLimit, 5),
				MinScore: float32(settingFloat(tk, SettingKnowledgeMinScore, 0)),
			})
			if err != nil {
				return core.ProviderResult{}, err
			}
			var b strings.Builder
			for _, m := range matches {
				line := strings.TrimSpace(m.Memory.Content.Text)
				if line == "" || line == text {
					continue
				}
				b.WriteString("- " + line + "\n")
			}
			if b.Len() == 0 {
				return core.ProviderResult{}, nil
			}
			return core.ProviderResult{
				Text: "# Relevant knowledge\n" + strings.TrimRight(b.String(), "\n"),
				Data: map[string]any{"knowledge_matches": matches},
			}, nil
		},
	}
}

func recentMessagesProvider() core.Provider {
	return core.Provider{
		Name:        "RECENT_MESSAGES",
		Description: "The latest conversation turns in this room.",
		Position:    100,
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			memories, err := tk.Store().GetMemories(ctx, core.MemoryQuery{
				RoomID: msg.RoomID,
				Limit:  settingInt(tk, SettingRecentLimit, 10),
			})
			if err != nil {
				return core.ProviderResult{}, err
			}
			if len(memories) == 0 {
				return core.ProviderResult{}, nil
			}
			agentName := tk.Character().Name
			agentID := tk.AgentID()
			// The store returns newest first; render oldest first.
			var b strings.Builder
			for i := len(memories) - 1; i >= 0; i-- {
				m := memories[i]
				line := strings.TrimSpace(m.Content.Text)
				if line == "" {
					continue
				}
				speaker := "user"
				if m.EntityID == agentID {
					speaker = agentName
				}
				fmt.Fprintf(&b, "%s: %s\n", speaker, line)
			}
			if b.Len() == 0 {
				return core.ProviderResult{}, nil
			}
			return core.ProviderResult{
				Text:   "# Recent conversation\n" + strings.TrimRight(b.String(), "\n"),
				Values: map[string]any{"recent_messages_count": len(memories)},
				Data:   map[string]any{"recent_messages": memories},
			}, nil
		},
	}
}
