package core

import "context"

// ModelClass names an abstract model capability. Capabilities invoke models
// by class through the gateway instead of binding to a concrete backend.
type ModelClass string

const (
	ModelTextLarge ModelClass = "text-large"
	ModelTextSmall ModelClass = "text-small"
	ModelEmbedding ModelClass = "text-embedding"
)

// ModelMessage is one turn of a chat-shaped request.
type ModelMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelRequest carries the inputs a handler may use. Text handlers read
// Prompt or Messages; embedding handlers read Input. Options passes
// backend-specific knobs through untouched.
type ModelRequest struct {
	Prompt      string         `json:"prompt,omitempty"`
	Messages    []ModelMessage `json:"messages,omitempty"`
	Input       string         `json:"input,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// ModelResponse carries a handler's output. Text handlers set Text;
// embedding handlers set Embedding. Raw keeps the backend response for
// callers that need more.
type ModelResponse struct {
	Text      string    `json:"text,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	TokensIn  int       `json:"tokens_in,omitempty"`
	TokensOut int       `json:"tokens_out,omitempty"`
	Raw       any       `json:"-"`
}

// ModelHandler executes one model invocation against a concrete backend.
type ModelHandler func(ctx context.Context, req ModelRequest) (ModelResponse, error)
