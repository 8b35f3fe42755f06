package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Route describes an HTTP endpoint a plugin wants a transport collaborator
// to mount. The runtime stores and exposes routes; it never serves them.
type Route struct {
	Name    string
	Path    string
	Method  string
	Public  bool
	Handler http.HandlerFunc
}

// Plugin is a named bundle of capabilities registered atomically: either
// every piece attaches or none do. Init, when set, runs after the bundle
// validates and before anything attaches; an Init error rejects the whole
// plugin.
type Plugin struct {
	Name        string
	Description string
	// Config supplies default setting values, overridable by character
	// settings and runtime options.
	Config     map[string]string
	Init       func(ctx context.Context, tk Toolkit) error
	Actions    []Action
	Providers  []Provider
	Evaluators []Evaluator
	Services   []Service
	Models     map[ModelClass]ModelHandler
	Routes     []Route
}

// Validate checks the bundle shape: the plugin and every capability must be
// named, handlers must be present, and names must not repeat inside the
// bundle. Collisions with already-registered capabilities are the
// registry's concern, not Validate's.
func (p Plugin) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("plugin: name is required")
	}
	seenActions := map[string]struct{}{}
	for _, a := range p.Actions {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("plugin %s: action with empty name", p.Name)
		}
		if a.Handler == nil {
			return fmt.Errorf("plugin %s: action %s has no handler", p.Name, a.Name)
		}
		if _, dup := seenActions[a.Name]; dup {
			return fmt.Errorf("plugin %s: duplicate action %s in bundle", p.Name, a.Name)
		}
		seenActions[a.Name] = struct{}{}
	}
	seenProviders := map[string]struct{}{}
	for _, pr := range p.Providers {
		if strings.TrimSpace(pr.Name) == "" {
			return fmt.Errorf("plugin %s: provider with empty name", p.Name)
		}
		if pr.Get == nil {
			return fmt.Errorf("plugin %s: provider %s has no get", p.Name, pr.Name)
		}
		if _, dup := seenProviders[pr.Name]; dup {
			return fmt.Errorf("plugin %s: duplicate provider %s in bundle", p.Name, pr.Name)
		}
		seenProviders[pr.Name] = struct{}{}
	}
	seenEvaluators := map[string]struct{}{}
	for _, e := range p.Evaluators {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("plugin %s: evaluator with empty name", p.Name)
		}
		if e.Evaluate == nil {
			return fmt.Errorf("plugin %s: evaluator %s has no evaluate", p.Name, e.Name)
		}
		if _, dup := seenEvaluators[e.Name]; dup {
			return fmt.Errorf("plugin %s: duplicate evaluator %s in bundle", p.Name, e.Name)
		}
		seenEvaluators[e.Name] = struct{}{}
	}
	seenServices := map[string]struct{}{}
	for _, s := range p.Services {
		if s == nil || strings.TrimSpace(s.Name()) == "" {
			return fmt.Errorf("plugin %s: service with empty name", p.Name)
		}
		if _, dup := seenServices[s.Name()]; dup {
			return fmt.Errorf("plugin %s: duplicate service %s in bundle", p.Name, s.Name())
		}
		seenServices[s.Name()] = struct{}{}
	}
	for class, h := range p.Models {
		if strings.TrimSpace(string(class)) == "" {
			return fmt.Errorf("plugin %s: model handler with empty class", p.Name)
		}
		if h == nil {
			return fmt.Errorf("plugin %s: nil model handler for %s", p.Name, class)
		}
	}
	return nil
}
