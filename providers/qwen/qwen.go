// Copyright 2026 © The Daimon Authors
// SPDX-License-Identifier: Apache-2.0

// Package qwen binds the model gateway to Alibaba Cloud's Qwen models
// through the DashScope OpenAI-compatible API: chat completions for
// the text classes and the embeddings endpoint for vectors. There is
// no official Go SDK for DashScope, so the client speaks the REST
// surface directly.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
)

// Setting names the plugin reads at Init.
const (
	SettingAPIKey     = "DASHSCOPE_API_KEY"
	SettingBaseURL    = "QWEN_BASE_URL"
	SettingLargeModel = "QWEN_LARGE_MODEL"
	SettingSmallModel = "QWEN_SMALL_MODEL"
	SettingEmbedModel = "QWEN_EMBED_MODEL"
)

// DefaultBaseURL is the DashScope OpenAI-compatible endpoint.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

const (
	defaultLargeModel = "qwen-plus"
	defaultSmallModel = "qwen-turbo"
	defaultEmbedModel = "text-embedding-v3"
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

// Plugin returns the Qwen bundle: handlers for text-large, text-small,
// and text-embedding backed by one shared client.
func Plugin(cfg Config) core.Plugin {
	client := NewClient(cfg)
	return core.Plugin{
		Name:        "qwen",
		Description: "Qwen chat completions and embeddings through the DashScope API.",
		Config: map[string]string{
			SettingBaseURL:    DefaultBaseURL,
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

// Client talks to one DashScope endpoint. It is safe for concurrent
// use; Configure may be called again to repoint it.
type Client struct {
	mu         sync.RWMutex
	fixed      Config
	apiKey     string
	baseURL    string
	large      string
	small      string
	embed      string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewClient returns a client for the given config. Fields left empty
// keep their defaults until Configure fills them from settings.
func NewClient(cfg Config) *Client {
	c := &Client{
		fixed:      cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retry:      resilience.DefaultRetryConfig(),
	}
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
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = cfg.APIKey
	c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
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

func (c *Client) model(class core.ModelClass) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch class {
	case core.ModelTextSmall:
		return c.small
	case core.ModelEmbedding:
		return c.embed
	default:
		return c.large
	}
}

// TextHandler returns a gateway handler for a chat-shaped model class.
func (c *Client) TextHandler(class core.ModelClass) core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		return c.Chat(ctx, c.model(class), req)
	}
}

// EmbedHandler returns a gateway handler for the embedding class.
func (c *Client) EmbedHandler() core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		return c.Embed(ctx, c.model(core.ModelEmbedding), req)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage apiUsage `json:"usage"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage apiUsage `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Chat sends a non-streaming chat completion request.
func (c *Client) Chat(ctx context.Context, model string, req core.ModelRequest) (core.ModelResponse, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 {
		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "chat request needs a prompt or messages", nil)
		}
		messages = append(messages, chatMessage{Role: "user", Content: prompt})
	}

	body := chatRequest{Model: model, Messages: messages, MaxTokens: req.MaxTokens}
	if req.Temperature != 0 {
		temp := req.Temperature
		body.Temperature = &temp
	}

	return resilience.DoWithResult(ctx, c.retry, func() (core.ModelResponse, error) {
		var out chatResponse
		if err := c.post(ctx, "/chat/completions", body, &out); err != nil {
			return core.ModelResponse{}, err
		}
		if len(out.Choices) == 0 {
			return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "qwen returned no choices for model %s", model)
		}
		return core.ModelResponse{
			Text:      out.Choices[0].Message.Content,
			TokensIn:  out.Usage.PromptTokens,
			TokensOut: out.Usage.CompletionTokens,
			Raw:       out,
		}, nil
	})
}

// Embed requests an embedding vector for the input text.
func (c *Client) Embed(ctx context.Context, model string, req core.ModelRequest) (core.ModelResponse, error) {
	input := strings.TrimSpace(req.Input)
	if input == "" {
		input = strings.TrimSpace(req.Prompt)
	}
	if input == "" {
		return core.ModelResponse{}, errors.New(errors.CodeInvalidInput, "embed request needs input text", nil)
	}

	return resilience.DoWithResult(ctx, c.retry, func() (core.ModelResponse, error) {
		var out embedResponse
		if err := c.post(ctx, "/embeddings", embedRequest{Model: model, Input: input}, &out); err != nil {
			return core.ModelResponse{}, err
		}
		if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
			return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "qwen returned no embedding for model %s", model)
		}
		vec := make([]float32, len(out.Data[0].Embedding))
		for i, v := range out.Data[0].Embedding {
			vec[i] = float32(v)
		}
		return core.ModelResponse{
			Embedding: vec,
			TokensIn:  out.Usage.PromptTokens,
			Raw:       out,
		}, nil
	})
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	c.mu.RLock()
	baseURL, apiKey, httpClient := c.baseURL, c.apiKey, c.httpClient
	c.mu.RUnlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "marshal qwen request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.New(errors.CodeModelBackend, "build qwen request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return errors.New(errors.CodeModelBackend, "qwen call failed", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var detail errorResponse
		json.NewDecoder(resp.Body).Decode(&detail)
		err := errors.Newf(errors.CodeModelBackend, "qwen %s returned status %d: %s",
			path, resp.StatusCode, detail.Error.Message)
		recoverable := resp.StatusCode >= http.StatusInternalServerError ||
			resp.StatusCode == http.StatusTooManyRequests
		return err.WithRecoverable(recoverable)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.CodeModelBackend, fmt.Sprintf("decode qwen %s response", path), err)
	}
	return nil
}
