// Package bootstrap is the default capability bundle: the reply flow, the
// standard context providers, a reflection evaluator, and a memory
// retention service. A runtime without bootstrap can compose state and
// dispatch, but it has nothing to say.
package bootstrap

import (
	"strconv"
	"strings"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
)

// Setting names the plugin understands. All are overridable through
// character settings or runtime options.
const (
	SettingRecentLimit       = "RECENT_MESSAGES_LIMIT"
	SettingKnowledgeLimit    = "KNOWLEDGE_LIMIT"
	SettingKnowledgeMinScore = "KNOWLEDGE_MIN_SCORE"
	SettingRetentionDays     = "RETENTION_DAYS"
	SettingRetentionInterval = "RETENTION_SWEEP_INTERVAL"
)

// Plugin returns the bootstrap bundle. Register it before any plugin that
// wants to build on the standard providers.
func Plugin() core.Plugin {
	return core.Plugin{
		Name:        "bootstrap",
		Description: "Default reply flow, context providers, reflection, and memory retention.",
		Config: map[string]string{
			SettingRecentLimit:       "10",
			SettingKnowledgeLimit:    "5",
			SettingKnowledgeMinScore: "0",
			SettingRetentionDays:     "0",
			SettingRetentionInterval: "1h",
		},
		Actions: []core.Action{
			replyAction(),
			ignoreAction(),
			noneAction(),
		},
		Providers: []core.Provider{
			timeProvider(),
			characterProvider(),
			actionsProvider(),
			knowledgeProvider(),
			recentMessagesProvider(),
		},
		Evaluators: []core.Evaluator{
			reflectionEvaluator(),
		},
		Services: []core.Service{
			NewRetention(),
		},
	}
}

// requested reports whether the message explicitly asks for the named
// action. Matching is case-insensitive.
func requested(msg core.Memory, name string) bool {
	for _, a := range msg.Content.Actions {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

// hasExplicitRequest reports whether the message names any actions at all.
// When it does, only the named actions should volunteer.
func hasExplicitRequest(msg core.Memory) bool {
	return len(msg.Content.Actions) > 0
}

func settingInt(tk core.Toolkit, name string, fallback int) int {
	raw := strings.TrimSpace(tk.Setting(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func settingFloat(tk core.Toolkit, name string, fallback float64) float64 {
	raw := strings.TrimSpace(tk.Setting(name))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

func settingDuration(tk core.Toolkit, name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(tk.Setting(name))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
