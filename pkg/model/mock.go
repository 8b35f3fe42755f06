package model

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/daimon-agents/daimon/pkg/core"
)

// ScriptedHandler returns a pre-defined sequence of responses in order.
// Useful for testing multi-step cycles where each model call should see a
// different answer.
type ScriptedHandler struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	// CallCount tracks how many times the handler ran
	CallCount int
	// Requests records every request in call order
	Requests []core.ModelRequest
}

// NewScriptedHandler creates a handler that plays back responses in order.
func NewScriptedHandler(responses ...string) *ScriptedHandler {
	return &ScriptedHandler{Responses: responses}
}

// Handle pops the next scripted response or returns the configured error.
func (s *ScriptedHandler) Handle(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CallCount++
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return core.ModelResponse{}, s.Err
	}
	if len(s.Responses) == 0 {
		return core.ModelResponse{}, errors.New("scripted handler: no more responses available")
	}

	text := s.Responses[0]
	s.Responses = s.Responses[1:]
	return core.ModelResponse{
		Text:      text,
		TokensIn:  10,
		TokensOut: 10,
	}, nil
}

// AddResponse appends a response to the queue.
func (s *ScriptedHandler) AddResponse(response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Responses = append(s.Responses, response)
}

// Calls returns how many times the handler ran.
func (s *ScriptedHandler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCount
}

// FailingHandler always fails.
func FailingHandler(err error) core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		if err == nil {
			return core.ModelResponse{}, fmt.Errorf("mock model error")
		}
		return core.ModelResponse{}, err
	}
}

// EchoHandler answers every request with its own prompt, prefixed so tests
// can see which handler ran.
func EchoHandler(prefix string) core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		text := req.Prompt
		if text == "" && len(req.Messages) > 0 {
			text = req.Messages[len(req.Messages)-1].Content
		}
		return core.ModelResponse{
			Text:      prefix + text,
			TokensIn:  len(text),
			TokensOut: len(prefix) + len(text),
		}, nil
	}
}

// HashEmbedder produces a deterministic pseudo-embedding of the requested
// dimension from the input text. Identical inputs embed identically, which
// is all similarity tests need.
func HashEmbedder(dim int) core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		if dim <= 0 {
			return core.ModelResponse{}, fmt.Errorf("embedding dimension must be positive")
		}
		vec := make([]float32, dim)
		h := fnv.New64a()
		_, _ = h.Write([]byte(req.Input))
		seed := h.Sum64()
		for i := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] = float32(int64(seed>>33))/float32(1<<30) - 1
		}
		return core.ModelResponse{Embedding: vec}, nil
	}
}
