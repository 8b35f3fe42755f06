package core

import "context"

// Service is a long-lived component with an explicit lifecycle. Services own
// external resources (sockets, file handles, model contexts) and are
// singletons per name within a runtime. Kind is a logical grouping used for
// lookup when the caller does not care which concrete service answers.
type Service interface {
	Name() string
	Kind() string
	// Start is called once when the owning runtime initializes or, for
	// late-registered plugins, at registration. It must not be called again
	// before Stop.
	Start(ctx context.Context, tk Toolkit) error
	// Stop releases resources. Stopping a never-started or already-stopped
	// service must be a harmless no-op.
	Stop(ctx context.Context) error
}
