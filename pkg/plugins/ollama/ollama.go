// Package ollama binds the model gateway to a local Ollama server: chat
// completions for the text classes and /api/embed for embeddings. The
// plugin resolves its models and base URL from runtime settings at Init,
// so character files and runtime options can override the defaults.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	SettingBaseURL    = "OLLAMA_BASE_URL"
	SettingLargeModel = "OLLAMA_LARGE_MODEL"
	SettingSmallModel = "OLLAMA_SMALL_MODEL"
	SettingEmbedModel = "OLLAMA_EMBED_MODEL"
)

// Plugin returns the Ollama bundle: handlers for text-large, text-small,
// and text-embedding backed by one shared client.
func Plugin() core.Plugin {
	client := NewClient("")
	return core.Plugin{
		Name:        "ollama",
		Description: "Local inference through the Ollama HTTP API.",
		Config: map[string]string{
			SettingBaseURL:    "http://localhost:11434",
			SettingLargeModel: "llama3.2",
			SettingSmallModel: "llama3.2",
			SettingEmbedModel: "nomic-embed-text",
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

// Client talks to one Ollama server. It is safe for concurrent use;
// Configure may be called again to repoint it.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	largeModel string
	smallModel string
	embedModel string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewClient returns a client with library defaults. An empty baseURL means
// the local server.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		baseURL:    baseURL,
		largeModel: "llama3.2",
		smallModel: "llama3.2",
		embedModel: "nomic-embed-text",
		httpClient: &http.Client{Timeout: 120 * time.Second},
		retry:      resilience.DefaultRetryConfig(),
	}
}

// Configure re-reads the client's settings from the toolkit.
func (c *Client) Configure(tk core.Toolkit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v := strings.TrimSpace(tk.Setting(SettingBaseURL)); v != "" {
		c.baseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(tk.Setting(SettingLargeModel)); v != "" {
		c.largeModel = v
	}
	if v := strings.TrimSpace(tk.Setting(SettingSmallModel)); v != "" {
		c.smallModel = v
	}
	if v := strings.TrimSpace(tk.Setting(SettingEmbedModel)); v != "" {
		c.embedModel = v
	}
}

func (c *Client) model(class core.ModelClass) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch class {
	case core.ModelTextSmall:
		return c.smallModel
	case core.ModelEmbedding:
		return c.embedModel
	default:
		return c.largeModel
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
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
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

	options := map[string]any{}
	for k, v := range req.Options {
		options[k] = v
	}
	if req.Temperature != 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens != 0 {
		options["num_predict"] = req.MaxTokens
	}
	body := chatRequest{Model: model, Messages: messages, Stream: false}
	if len(options) > 0 {
		body.Options = options
	}

	return resilience.DoWithResult(ctx, c.retry, func() (core.ModelResponse, error) {
		var out chatResponse
		if err := c.post(ctx, "/api/chat", body, &out); err != nil {
			return core.ModelResponse{}, err
		}
		return core.ModelResponse{
			Text:      out.Message.Content,
			TokensIn:  out.PromptEvalCount,
			TokensOut: out.EvalCount,
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
		if err := c.post(ctx, "/api/embed", embedRequest{Model: model, Input: input}, &out); err != nil {
			return core.ModelResponse{}, err
		}
		if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
			return core.ModelResponse{}, errors.Newf(errors.CodeModelBackend, "ollama returned no embedding for model %s", model)
		}
		return core.ModelResponse{
			Embedding: out.Embeddings[0],
			TokensIn:  out.PromptEvalCount,
			Raw:       out,
		}, nil
	})
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	c.mu.RLock()
	baseURL, httpClient := c.baseURL, c.httpClient
	c.mu.RUnlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "marshal ollama request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.New(errors.CodeModelBackend, "build ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return errors.New(errors.CodeModelBackend, "ollama call failed", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Newf(errors.CodeModelBackend, "ollama %s returned status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(detail)))
		// Server-side failures are worth retrying; client mistakes are not.
		return err.WithRecoverable(resp.StatusCode >= http.StatusInternalServerError)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.CodeModelBackend, fmt.Sprintf("decode ollama %s response", path), err)
	}
	return nil
}
