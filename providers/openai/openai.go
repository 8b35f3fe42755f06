// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai binds the model gateway to the OpenAI API: chat
// completions for the text classes and the embeddings endpoint for
// vectors. Explicit Config fields win, runtime settings fill the rest
// at Init, and a missing API key defers to the SDK's own
// OPENAI_API_KEY environment lookup.
package openai

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Setting names the plugin reads at Init.
const (
	SettingAPIKey     = "OPENAI_API_KEY"
	SettingBaseURL    = "OPENAI_BASE_URL"
	SettingLargeModel = "OPENAI_LARGE_MODEL"
	SettingSmallModel = "OPENAI_SMALL_MODEL"
	SettingEmbedModel = "OPENAI_EMBED_MODEL"
)

const (
	defaultLargeModel = "gpt-5"
	defaultSmallModel = "gpt-5-mini"
	defaultEmbedModel = "text-embedding-3-small"
)

// Config fixes client parameters in code. Zero-value fields fall back
// to runtime settings, then to the plugin defaults.
type Config struct {
	APIKey     string
	BaseURL    string
	LargeModel string
	SmallModel string
	EmbedModel string
}

// Plugin returns the OpenAI bundle: handlers for text-large,
// text-small, and text-embedding backed by one shared client.
func Plugin(cfg Config) core.Plugin {
	client := NewClient(cfg)
	return core.Plugin{
		Name:        "openai",
		Description: "Chat completions and embeddings through the OpenAI API.",
		Config: map[string]string{
			SettingLargeModel: defaultLargeModel,
			SettingSmallModel: defaultSmallModel,
			SettingEmbedModel: defaultEmbedModel,
		},
		Init: func(ctx context.Context, tk core.Toolkit) error {
			client.Configure(tk)
			return nil
		},
		Models: map[core.ModelClass]core.ModelHandler{
			core.ModelTextLarge: client.TextHandler(core.ModelTextLarge),
			core.ModelTextSmall: client.TextHandler(core.ModelTextSmall),
			core.ModelEmbedding: client.EmbedHandler(),
		},
	}
}

// Client talks to the OpenAI API. It is safe for concurrent use;
// Configure may be called again to repoint it.
type Client struct {
	mu    sync.RWMutex
	fixed Config
	api   openai.Client
	large string
	small string
	embed string
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
	if resolved.EmbedModel == "" {
		resolved.EmbedModel = strings.TrimSpace(tk.Setting(SettingEmbedModel))
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
	c.api = openai.NewClient(opts...)
	c.large = cfg.LargeModel
	if c.large == "" {
		c.large = defaultLargeModel
	}
	c.small = cfg.SmallModel
	if c.small == "" {
		c.small = defaultSmallModel
	}
	c.embed = cfg.EmbedModel
	if c.embed == "" {
		c.embed = defaultEmbedModel
	}
}

func (c *Client) snapshot(class core.ModelClass) (openai.Client, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch class {
	case core.ModelTextSmall:
		return c.api, c.small
	case core.ModelEmbedding:
		return c.api, c.embed
	default:
		return c.api, c.large
	}
}

// TextHandler returns a gateway handler for a chat-shaped model class.
func (c *Client) TextHandler(class core.ModelClass) core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		api, model := c.snapshot(class)
		return chat(ctx, api, model, req)
	}
}

// EmbedHandler returns a gateway handler for the embedding class.
func (c *Client) EmbedHandler() core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		api, model := c.snapshot(core.ModelEmbedding)
		return embed(ctx, api, model, req)
	}
}

func chat(ctx context.Context, api openai.Client, model string, req core.ModelRequest) (core.ModelResponse, error) {
	messages := toMessages(req)
	if len(messages) == 0 {
		return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "chat request needs a prompt or messages", nil)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens != 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := api.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.ModelResponse{}, wrapAPIError("openai chat completion failed", err)
	}
	if len(completion.Choices) == 0 {
		return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "openai returned no choices for model %s", model)
	}
	return core.ModelResponse{
		Text:      completion.Choices[0].Message.Content,
		TokensIn:  int(completion.Usage.PromptTokens),
		TokensOut: int(completion.Usage.CompletionTokens),
		Raw:       completion,
	}, nil
}

func embed(ctx context.Context, api openai.Client, model string, req core.ModelRequest) (core.ModelResponse, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		input = strings.TrimSpace(req.Prompt)
	}
	if input == "" {
		return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "embed request needs input text", nil)
	}

	res, err := api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(input)},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return core.ModelResponse{}, wrapAPIError("openai embedding failed", err)
	}
	if len(res.Data) == 0 || len(res.Data[0].Embedding) == 0 {
		return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "openai returned no embedding for model %s", model)
	}
	vec := make([]float32, len(res.Data[0].Embedding))
	for i, v := range res.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return core.ModelResponse{
		Embedding: vec,
		TokensIn:  int(res.Usage.PromptTokens),
		Raw:       res,
	}, nil
}

// toMessages converts chat turns, falling back to a single user turn
// built from the prompt.
func toMessages(req core.ModelRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	if len(messages) == 0 {
		if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
			messages = append(messages, openai.UserMessage(prompt))
		}
	}
	return messages
}

// wrapAPIError keeps the HTTP status visible to retry policy: server
// and rate-limit failures are recoverable, client mistakes are not.
func wrapAPIError(msg string, err error) *errors.DaimonError {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		recoverable := apiErr.StatusCode >= http.StatusInternalServerError ||
			apiErr.StatusCode == http.StatusTooManyRequests
		return errors.New(errors.CodeModelBackend, msg, err).WithRecoverable(recoverable)
	}
	return errors.New(errors.CodeModelBackend, msg, err).WithRecoverable(true)
}
