package registry

import (
	"sync"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Catalog holds the actions, providers, evaluators, and routes contributed
// by plugins. A bundle attaches under one write lock, so concurrent lookups
// see either the pre-registration or post-registration set, never a torn
// one. Iteration goes through ordered snapshots; no lock is held while a
// capability runs.
type Catalog struct {
	mu         sync.RWMutex
	actions    map[string]core.Action
	providers  map[string]core.Provider
	evaluators map[string]core.Evaluator

	actionOrder    []string
	providerOrder  []string
	evaluatorOrder []string

	routes []core.Route
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		actions:    make(map[string]core.Action),
		providers:  make(map[string]core.Provider),
		evaluators: make(map[string]core.Evaluator),
	}
}

// Stage validates a bundle against the current sets without mutating
// anything: shape first, then name collisions. Callers run Stage before a
// plugin's Init so a doomed bundle fails before its side effects.
func (c *Catalog) Stage(p core.Plugin) error {
	if err := p.Validate(); err != nil {
		return errors.New(errors.CodeInvalidPlugin, "malformed plugin bundle", err).
			WithContext("plugin", p.Name)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collisions(p)
}

// Attach commits a bundle. The whole bundle re-validates under the write
// lock and attaches in one critical section; on any error nothing attaches.
func (c *Catalog) Attach(p core.Plugin) error {
	if err := p.Validate(); err != nil {
		return errors.New(errors.CodeInvalidPlugin, "malformed plugin bundle", err).
			WithContext("plugin", p.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.collisions(p); err != nil {
		return err
	}

	for _, a := range p.Actions {
		c.actions[a.Name] = a
		c.actionOrder = append(c.actionOrder, a.Name)
	}
	for _, pr := range p.Providers {
		c.providers[pr.Name] = pr
		c.providerOrder = append(c.providerOrder, pr.Name)
	}
	for _, e := range p.Evaluators {
		c.evaluators[e.Name] = e
		c.evaluatorOrder = append(c.evaluatorOrder, e.Name)
	}
	c.routes = append(c.routes, p.Routes...)
	return nil
}

// collisions reports the first capability name already taken. Callers hold
// at least a read lock.
func (c *Catalog) collisions(p core.Plugin) error {
	for _, a := range p.Actions {
		if _, exists := c.actions[a.Name]; exists {
			return duplicate(p.Name, "action", a.Name)
		}
	}
	for _, pr := range p.Providers {
		if _, exists := c.providers[pr.Name]; exists {
			return duplicate(p.Name, "provider", pr.Name)
		}
	}
	for _, e := range p.Evaluators {
		if _, exists := c.evaluators[e.Name]; exists {
			return duplicate(p.Name, "evaluator", e.Name)
		}
	}
	return nil
}

func duplicate(plugin, kind, name string) error {
	return errors.Newf(errors.CodeDuplicateCapability, "%s %q already registered", kind, name).
		WithContext("plugin", plugin).
		WithContext("capability", name)
}

// Actions returns all actions in registration order.
func (c *Catalog) Actions() []core.Action {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Action, 0, len(c.actionOrder))
	for _, name := range c.actionOrder {
		out = append(out, c.actions[name])
	}
	return out
}

// Providers returns all providers in registration order.
func (c *Catalog) Providers() []core.Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Provider, 0, len(c.providerOrder))
	for _, name := range c.providerOrder {
		out = append(out, c.providers[name])
	}
	return out
}

// Evaluators returns all evaluators in registration order.
func (c *Catalog) Evaluators() []core.Evaluator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Evaluator, 0, len(c.evaluatorOrder))
	for _, name := range c.evaluatorOrder {
		out = append(out, c.evaluators[name])
	}
	return out
}

// Routes returns the HTTP route descriptors plugins contributed, in
// registration order.
func (c *Catalog) Routes() []core.Route {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]core.Route(nil), c.routes...)
}

// Action looks up one action by name.
func (c *Catalog) Action(name string) (core.Action, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	a, ok := c.actions[name]
	return a, ok
}

// Provider looks up one provider by name.
func (c *Catalog) Provider(name string) (core.Provider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.providers[name]
	return p, ok
}

// Counts returns how many actions, providers, and evaluators are
// registered.
func (c *Catalog) Counts() (actions, providers, evaluators int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.actions), len(c.providers), len(c.evaluators)
}
