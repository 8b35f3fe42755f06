// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic binds the model gateway to the Anthropic Claude
// API. It serves the two text classes only: the API exposes no
// embeddings endpoint, so the embedding class stays with whichever
// other plugin provides one. Explicit Config fields win, runtime
// settings fill the rest at Init, and a missing API key defers to the
// SDK's own ANTHROPIC_API_KEY environment lookup.
package anthropic

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Setting names the plugin reads at Init.
const (
	SettingAPIKey     = "ANTHROPIC_API_KEY"
	SettingBaseURL    = "ANTHROPIC_BASE_URL"
	SettingLargeModel = "ANTHROPIC_LARGE_MODEL"
	SettingSmallModel = "ANTHROPIC_SMALL_MODEL"
	SettingMaxTokens  = "ANTHROPIC_MAX_TOKENS"
)

const (
	defaultLargeModel = "claude-sonnet-4-20250514"
	defaultSmallModel = "claude-3-5-haiku-latest"
	defaultMaxTokens  = 4096
)

// Config fixes client parameters in code. Zero-value fields fall back
// to runtime settings, then to the plugin defaults.
type Config struct {
	APIKey     string
	BaseURL    string
	LargeModel string
	SmallModel string
	MaxTokens  int64
}

// Plugin returns the Anthropic bundle: handlers for text-large and
// text-small backed by one shared client.
func Plugin(cfg Config) core.Plugin {
	client := NewClient(cfg)
	return core.Plugin{
		Name:        "anthropic",
		Description: "Chat completions through the Anthropic Claude API.",
		Config: map[string]string{
			SettingLargeModel: defaultLargeModel,
			SettingSmallModel: defaultSmallModel,
			SettingMaxTokens:  strconv.Itoa(defaultMaxTokens),
		},
		Init: func(ctx context.Context, tk core.Toolkit) error {
			client.Configure(tk)
			return nil
		},
		Models: map[core.ModelClass]core.ModelHandler{
			core.ModelTextLarge: client.TextHandler(core.ModelTextLarge),
			core.ModelTextSmall: client.TextHandler(core.ModelTextSmall),
		},
	}
}

// Client talks to the Anthropic API. It is safe for concurrent use;
// Configure may be called again to repoint it.
type Client struct {
	mu        sync.RWMutex
	fixed     Config
	api       anthropic.Client
	large     string
	small     string
	maxTokens int64
}

// NewClient returns a client for the given config. Fields left empty
// keep their defaults until Configure fills them from settings.
func NewClient(cfg Config) *Client {
	c := &Client{fixed: cfg}
	c.apply(cfg)
	return c
}

// Configure re-resolves the client's parameters: explicit Config
// fields first, runtime settings for whatever they left empty.
func (c *Client) Configure(tk core.Toolkit) {
	resolved := c.fixed
	if resolved.APIKey == "" {
		resolved.APIKey = strings.TrimSpace(tk.Setting(SettingAPIKey))
	}
	if resolved.BaseURL == "" {
		resolved.BaseURL = strings.TrimSpace(tk.Setting(SettingBaseURL))
	}
	if resolved.LargeModel == "" {
		resolved.LargeModel = strings.TrimSpace(tk.Setting(SettingLargeModel))
	}
	if resolved.SmallModel == "" {
		resolved.SmallModel = strings.TrimSpace(tk.Setting(SettingSmallModel))
	}
	if resolved.MaxTokens == 0 {
		if n, err := strconv.ParseInt(strings.TrimSpace(tk.Setting(SettingMaxTokens)), 10, 64); err == nil && n > 0 {
			resolved.MaxTokens = n
		}
	}
	c.apply(resolved)
}

func (c *Client) apply(cfg Config) {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.api = anthropic.NewClient(opts...)
	c.large = cfg.LargeModel
	if c.large == "" {
		c.large = defaultLargeModel
	}
	c.small = cfg.SmallModel
	if c.small == "" {
		c.small = defaultSmallModel
	}
	c.maxTokens = cfg.MaxTokens
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
}

func (c *Client) snapshot(class core.ModelClass) (anthropic.Client, string, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if class == core.ModelTextSmall {
		return c.api, c.small, c.maxTokens
	}
	return c.api, c.large, c.maxTokens
}

// TextHandler returns a gateway handler for a chat-shaped model class.
func (c *Client) TextHandler(class core.ModelClass) core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		api, model, maxTokens := c.snapshot(class)
		return chat(ctx, api, model, maxTokens, req)
	}
}

func chat(ctx context.Context, api anthropic.Client, model string, maxTokens int64, req core.ModelRequest) (core.ModelResponse, error) {
	system, messages := splitMessages(req)
	if len(messages) == 0 {
		return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "chat request needs a prompt or messages", nil)
	}
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		}
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := api.Messages.New(ctx, params)
	if err != nil {
		return core.ModelResponse{}, wrapAPIError("anthropic message failed", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return core.ModelResponse{
		Text:      text.String(),
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
		Raw:       message,
	}, nil
}

// splitMessages separates system turns, which the Messages API takes
// as a top-level field, from the conversation. Multiple system turns
// are joined so none of them is dropped.
func splitMessages(req core.ModelRequest) (string, []anthropic.MessageParam) {
	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(messages) == 0 {
		if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
		}
	}
	return strings.Join(system, "\n\n"), messages
}

// wrapAPIError keeps the HTTP status visible to retry policy: server
// and rate-limit failures are recoverable, client mistakes are not.
func wrapAPIError(msg string, err error) *errors.DaimonError {
	var apiErr *anthropic.Error
	if stderrors.As(err, &apiErr) {
		recoverable := apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests
		return errors.New(errors.CodeModelBackend, msg, err).WithRecoverable(recoverable)
	}
	return errors.New(errors.CodeModelBackend, msg, err).WithRecoverable(true)
}
