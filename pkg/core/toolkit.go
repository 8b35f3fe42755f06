package core

import (
	"context"
	"log/slog"
)

// Toolkit is the non-owning handle the runtime passes to every capability
// invocation. It is a lookup surface, not shared ownership: after the
// runtime stops, a retained Toolkit degrades gracefully instead of
// panicking. Model calls fail with a typed not-running error, service
// lookups miss, and the store rejects operations.
type Toolkit interface {
	// AgentID is the immutable identity assigned at construction.
	AgentID() ID
	// Character returns a read-only snapshot of the current persona.
	Character() Character
	// Logger returns the runtime logger; never nil.
	Logger() *slog.Logger
	// UseModel invokes the handler registered for the class.
	UseModel(ctx context.Context, class ModelClass, req ModelRequest) (ModelResponse, error)
	// Service looks up a running service by name.
	Service(name string) (Service, bool)
	// ServiceByKind returns the first running service of a logical kind.
	ServiceByKind(kind string) (Service, bool)
	// Store returns the persistence collaborator; never nil, but may be a
	// rejecting stand-in when no store was configured or the runtime
	// stopped.
	Store() Store
	// Setting resolves a named setting: runtime options override character
	// settings, which override plugin config defaults.
	Setting(name string) string
	// Emit publishes a runtime event to the configured emitter.
	Emit(ctx context.Context, event Event)
}
