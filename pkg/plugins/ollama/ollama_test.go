package ollama

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// settingsToolkit is a Toolkit that only answers Setting lookups.
type settingsToolkit map[string]string

func (s settingsToolkit) AgentID() core.ID          { return core.ZeroID }
func (s settingsToolkit) Character() core.Character { return core.Character{Name: "test"} }
func (s settingsToolkit) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
func (s settingsToolkit) UseModel(ctx context.Context, class core.ModelClass, req core.ModelRequest) (core.ModelResponse, error) {
	return core.ModelResponse{}, nil
}
func (s settingsToolkit) Service(name string) (core.Service, bool)       { return nil, false }
func (s settingsToolkit) ServiceByKind(kind string) (core.Service, bool) { return nil, false }
func (s settingsToolkit) Store() core.Store                              { return nil }
func (s settingsToolkit) Setting(name string) string                     { return s[name] }
func (s settingsToolkit) Emit(ctx context.Context, event core.Event)     {}

func fastClient(baseURL string) *Client {
	c := NewClient(baseURL)
	c.retry = c.retry.WithInitialDelay(time.Millisecond).WithMaxDelay(5 * time.Millisecond)
	return c
}

func TestChatMapsRequestAndResponse(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message:         chatMessage{Role: "assistant", Content: "four o'clock"},
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       5,
		})
	}))
	defer server.Close()

	resp, err := fastClient(server.URL).Chat(context.Background(), "llama3.2", core.ModelRequest{
		Messages: []core.ModelMessage{
			{Role: "system", Content: "You are terse."},
			{Role: "user", Content: "when is tea?"},
		},
		Temperature: 0.2,
		MaxTokens:   64,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Text != "four o'clock" || resp.TokensIn != 12 || resp.TokensOut != 5 {
		t.Errorf("resp = %+v", resp)
	}
	if got.Model != "llama3.2" || got.Stream || len(got.Messages) != 2 {
		t.Errorf("request = %+v", got)
	}
	if got.Options["temperature"] != 0.2 || got.Options["num_predict"] != float64(64) {
		t.Errorf("options = %v", got.Options)
	}
}

func TestChatPromptBecomesUserMessage(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}})
	}))
	defer server.Close()

	if _, err := fastClient(server.URL).Chat(context.Background(), "m", core.ModelRequest{Prompt: "  hello  "}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.Options != nil {
		t.Errorf("options = %v, want omitted", got.Options)
	}
}

func TestChatRejectsEmptyRequest(t *testing.T) {
	_, err := fastClient("http://unused.invalid").Chat(context.Background(), "m", core.ModelRequest{})
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "recovered"}})
	}))
	defer server.Close()

	resp, err := fastClient(server.URL).Chat(context.Background(), "m", core.ModelRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Text != "recovered" {
		t.Errorf("resp = %+v", resp)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model name", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := fastClient(server.URL).Chat(context.Background(), "m", core.ModelRequest{Prompt: "hi"})
	if !errors.IsCode(err, errors.CodeModelBackend) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	var got embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}, PromptEvalCount: 4})
	}))
	defer server.Close()

	resp, err := fastClient(server.URL).Embed(context.Background(), "nomic-embed-text", core.ModelRequest{Input: "tea time"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(resp.Embedding) != 3 || resp.Embedding[0] != 0.1 || resp.TokensIn != 4 {
		t.Errorf("resp = %+v", resp)
	}
	if got.Model != "nomic-embed-text" || got.Input != "tea time" {
		t.Errorf("request = %+v", got)
	}
}

func TestEmbedEmptyResponseFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer server.Close()

	_, err := fastClient(server.URL).Embed(context.Background(), "m", core.ModelRequest{Input: "x"})
	if !errors.IsCode(err, errors.CodeModelBackend) {
		t.Fatalf("err = %v", err)
	}
}

func TestEmbedRequiresInput(t *testing.T) {
	_, err := fastClient("http://unused.invalid").Embed(context.Background(), "m", core.ModelRequest{})
	if !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestPluginShape(t *testing.T) {
	p := Plugin()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, class := range []core.ModelClass{core.ModelTextLarge, core.ModelTextSmall, core.ModelEmbedding} {
		if p.Models[class] == nil {
			t.Errorf("missing handler for %s", class)
		}
	}
	if p.Config[SettingBaseURL] == "" {
		t.Error("missing base URL default")
	}
}

func TestPluginInitWiresSettings(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "hi"}})
	}))
	defer server.Close()

	p := Plugin()
	tk := settingsToolkit{
		SettingBaseURL:    server.URL + "/",
		SettingSmallModel: "qwen2.5:0.5b",
	}
	if err := p.Init(context.Background(), tk); err != nil {
		t.Fatalf("Init: %v", err)
	}
	resp, err := p.Models[core.ModelTextSmall](context.Background(), core.ModelRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.Text != "hi" || gotModel != "qwen2.5:0.5b" {
		t.Errorf("resp=%+v model=%q", resp, gotModel)
	}
}
