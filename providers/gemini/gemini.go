// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini binds the model gateway to the Google Gemini API:
// content generation for the text classes and EmbedContent for
// vectors. The genai client is built at Init because construction
// takes a context and validates credentials; a missing API key defers
// to the SDK's GOOGLE_API_KEY / GEMINI_API_KEY environment lookup.
package gemini

import (
	"context"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Setting names the plugin reads at Init.
const (
	SettingAPIKey     = "GEMINI_API_KEY"
	SettingBaseURL    = "GEMINI_BASE_URL"
	SettingLargeModel = "GEMINI_LARGE_MODEL"
	SettingSmallModel = "GEMINI_SMALL_MODEL"
	SettingEmbedModel = "GEMINI_EMBED_MODEL"
)

const (
	defaultLargeModel = "gemini-3-flash-preview"
	defaultSmallModel = "gemini-3-flash-preview"
	defaultEmbedModel = "gemini-embedding-001"
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

// Plugin returns the Gemini bundle: handlers for text-large,
// text-small, and text-embedding backed by one shared client.
func Plugin(cfg Config) core.Plugin {
	client := NewClient(cfg)
	return core.Plugin{
		Name:        "gemini",
		Description: "Content generation and embeddings through the Google Gemini API.",
		Config: map[string]string{
			SettingLargeModel: defaultLargeModel,
			SettingSmallModel: defaultSmallModel,
			SettingEmbedModel: defaultEmbedModel,
		},
		Init: func(ctx context.Context, tk core.Toolkit) error {
			return client.Configure(ctx, tk)
		},
		Models: map[core.ModelClass]core.ModelHandler{
			core.ModelTextLarge: client.TextHandler(core.ModelTextLarge),
			core.ModelTextSmall: client.TextHandler(core.ModelTextSmall),
			core.ModelEmbedding: client.EmbedHandler(),
		},
	}
}

// Client talks to the Gemini API. The genai client stays nil until
// Configure runs; handlers report that instead of panicking.
type Client struct {
	mu    sync.RWMutex
	fixed Config
	api   *genai.Client
	large string
	small string
	embed string
}

// NewClient returns an unconfigured client carrying the fixed config.
func NewClient(cfg Config) *Client {
	return &Client{
		fixed: cfg,
		large: pick(cfg.LargeModel, defaultLargeModel),
		small: pick(cfg.SmallModel, defaultSmallModel),
		embed: pick(cfg.EmbedModel, defaultEmbedModel),
	}
}

// Configure resolves parameters and builds the genai client: explicit
// Config fields first, runtime settings for whatever they left empty.
func (c *Client) Configure(ctx context.Context, tk core.Toolkit) error {
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

	cc := &genai.ClientConfig{APIKey: resolved.APIKey}
	if resolved.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(resolved.BaseURL, "/")}
	}
	api, err := genai.NewClient(ctx, cc)
	if err != nil {
		return errors.New(errors.CodeModelBackend, "create gemini client", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.api = api
	c.large = pick(resolved.LargeModel, defaultLargeModel)
	c.small = pick(resolved.SmallModel, defaultSmallModel)
	c.embed = pick(resolved.EmbedModel, defaultEmbedModel)
	return nil
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func (c *Client) snapshot(class core.ModelClass) (*genai.Client, string) {
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
		return generate(ctx, api, model, req)
	}
}

// EmbedHandler returns a gateway handler for the embedding class.
func (c *Client) EmbedHandler() core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		api, model := c.snapshot(core.ModelEmbedding)
		return embed(ctx, api, model, req)
	}
}

func generate(ctx context.Context, api *genai.Client, model string, req core.ModelRequest) (core.ModelResponse, error) {
	contents, system := toContents(req)
	if len(contents) == 0 {
		return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "chat request needs a prompt or messages", nil)
	}
	if api == nil {
		return core.ModelResponse{}, errors.New(errors.CodeModelBackend, "gemini client is not initialized", nil)
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if req.Temperature != 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	resp, err := api.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return core.ModelResponse{}, errors.New(errors.CodeModelBackend, "gemini generate content failed", err).
			WithRecoverable(true)
	}

	out := core.ModelResponse{Raw: resp}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
		out.Text = text.String()
	}
	if out.Text == "" {
		return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "gemini returned no text for model %s", model)
	}
	return out, nil
}

func embed(ctx context.Context, api *genai.Client, model string, req core.ModelRequest) (core.ModelResponse, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		input = strings.TrimSpace(req.Prompt)
	}
	if input == "" {
		return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "embed request needs input text", nil)
	}
	if api == nil {
		return core.ModelResponse{}, errors.New(errors.CodeModelBackend, "gemini client is not initialized", nil)
	}

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: input}}}}
	resp, err := api.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return core.ModelResponse{}, errors.New(errors.CodeModelBackend, "gemini embed content failed", err).
			WithRecoverable(true)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "gemini returned no embedding for model %s", model)
	}
	return core.ModelResponse{Embedding: resp.Embeddings[0].Values, Raw: resp}, nil
}

// toContents converts chat turns to Gemini contents. System turns move
// to the system instruction, joined so none of them is dropped; the
// assistant role maps to Gemini's "model" role.
func toContents(req core.ModelRequest) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	if len(contents) == 0 {
		if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: prompt}},
			})
		}
	}
	return contents, strings.Join(system, "\n\n")
}
