package testing

import (
	"context"
	"fmt"
	"sync"

	"github.com/daimon-agents/daimon/pkg/core"
)

// ScriptedModel is a model backend for tests. It returns queued responses
// in order and captures every request it receives.
type ScriptedModel struct {
	mu           sync.Mutex
	responses    []ScriptedResponse
	currentIndex int
	requests     []core.ModelRequest
	defaultError error
	onInvoke     func(req core.ModelRequest) (core.ModelResponse, error)
}

// ScriptedResponse is one queued model response.
type ScriptedResponse struct {
	Text      string
	Embedding []float32
	Error     error
}

// NewScriptedModel creates an empty scripted model.
func NewScriptedModel() *ScriptedModel {
	return &ScriptedModel{}
}

// Reply queues one text response per argument.
func (m *ScriptedModel) Reply(texts ...string) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, text := range texts {
		m.responses = append(m.responses, ScriptedResponse{Text: text})
	}
	return m
}

// Embed queues an embedding response.
func (m *ScriptedModel) Embed(embedding []float32) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, ScriptedResponse{Embedding: embedding})
	return m
}

// Fail queues an error response.
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, ScriptedResponse{Error: err})
	return m
}

// Script queues a fully configured response.
func (m *ScriptedModel) Script(resp ScriptedResponse) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	return m
}

// WithDefaultError sets the error returned once the queue is exhausted.
func (m *ScriptedModel) WithDefaultError(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultError = err
	return m
}

// OnInvoke replaces queued responses with a custom function.
func (m *ScriptedModel) OnInvoke(fn func(req core.ModelRequest) (core.ModelResponse, error)) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInvoke = fn
	return m
}

// Handler returns the model handler backed by this script.
func (m *ScriptedModel) Handler() core.ModelHandler {
	return func(ctx context.Context, req core.ModelRequest) (core.ModelResponse, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.requests = append(m.requests, req)

		if m.onInvoke != nil {
			return m.onInvoke(req)
		}
		if m.currentIndex >= len(m.responses) {
			if m.defaultError != nil {
				return core.ModelResponse{}, m.defaultError
			}
			return core.ModelResponse{}, fmt.Errorf("no more scripted responses (call %d)", m.currentIndex+1)
		}

		resp := m.responses[m.currentIndex]
		m.currentIndex++
		if resp.Error != nil {
			return core.ModelResponse{}, resp.Error
		}
		return core.ModelResponse{Text: resp.Text, Embedding: resp.Embedding}, nil
	}
}

// Plugin wraps the handler in a registerable plugin for the given classes.
// With no classes it covers both text classes.
func (m *ScriptedModel) Plugin(name string, classes ...core.ModelClass) core.Plugin {
	if len(classes) == 0 {
		classes = []core.ModelClass{core.ModelTextLarge, core.ModelTextSmall}
	}
	models := make(map[core.ModelClass]core.ModelHandler, len(classes))
	handler := m.Handler()
	for _, class := range classes {
		models[class] = handler
	}
	return core.Plugin{
		Name:        name,
		Description: "Scripted model backend for tests.",
		Models:      models,
	}
}

// Requests returns a copy of all captured requests.
func (m *ScriptedModel) Requests() []core.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]core.ModelRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// LastRequest returns the most recent request, or nil before the first call.
func (m *ScriptedModel) LastRequest() *core.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

// Calls returns the number of handler invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset rewinds the queue and clears captured requests.
func (m *ScriptedModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentIndex = 0
	m.requests = m.requests[:0]
}

// MessageBuilder constructs inbound messages for tests.
type MessageBuilder struct {
	entityID core.ID
	roomID   core.ID
	content  core.Content
}

// NewMessage starts a message with the given text and fresh identities.
func NewMessage(text string) *MessageBuilder {
	return &MessageBuilder{
		entityID: core.NewID(),
		roomID:   core.NewID(),
		content:  core.Content{Text: text},
	}
}

// From sets the sending entity.
func (b *MessageBuilder) From(id core.ID) *MessageBuilder {
	b.entityID = id
	return b
}

// In sets the room.
func (b *MessageBuilder) In(id core.ID) *MessageBuilder {
	b.roomID = id
	return b
}

// WithSource sets the content source.
func (b *MessageBuilder) WithSource(source string) *MessageBuilder {
	b.content.Source = source
	return b
}

// WithActions sets the explicitly requested actions.
func (b *MessageBuilder) WithActions(names ...string) *MessageBuilder {
	b.content.Actions = names
	return b
}

// WithData adds one payload entry.
func (b *MessageBuilder) WithData(key string, value any) *MessageBuilder {
	if b.content.Data == nil {
		b.content.Data = map[string]any{}
	}
	b.content.Data[key] = value
	return b
}

// Build creates the memory.
func (b *MessageBuilder) Build() core.Memory {
	return core.NewMemory(b.entityID, b.roomID, b.content)
}
