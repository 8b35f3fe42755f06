// Package service tracks the lifecycle of long-lived components registered
// by plugins. The manager starts services in registration order, stops them
// in reverse, and keeps lookups limited to services that actually run.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
)

// State is the manager's view of one service.
type State string

const (
	// StateRegistered means the service is known but has not started.
	StateRegistered State = "registered"
	// StateRunning means Start returned without error.
	StateRunning State = "running"
	// StateDegraded means Start failed; the service stays registered and
	// gets a stop attempt, but lookups will not return it.
	StateDegraded State = "degraded"
	// StateStopped means the service was stopped.
	StateStopped State = "stopped"
)

// Manager owns service registration and lifecycle. All state transitions
// happen under one lock so States never reports a torn view.
type Manager struct {
	mu       sync.RWMutex
	services map[string]core.Service
	states   map[string]State
	order    []string

	logger       *slog.Logger
	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewManager returns an empty manager. A zero timeout disables the bound
// for that phase.
func NewManager(logger *slog.Logger, startTimeout, stopTimeout time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		services:     make(map[string]core.Service),
		states:       make(map[string]State),
		logger:       logger,
		startTimeout: startTimeout,
		stopTimeout:  stopTimeout,
	}
}

// Register adds a service without starting it. Names are unique per
// manager; a duplicate leaves the original in place.
func (m *Manager) Register(svc core.Service) error {
	if svc == nil || svc.Name() == "" {
		return errors.New(errors.CodeInvalidInput, "service must have a name", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := svc.Name()
	if _, exists := m.services[name]; exists {
		return errors.Newf(errors.CodeDuplicateCapability, "service %q already registered", name).
			WithContext("service", name)
	}
	m.services[name] = svc
	m.states[name] = StateRegistered
	m.order = append(m.order, name)
	return nil
}

// StartAll starts every registered service in registration order. A start
// failure marks that service degraded and moves on; all failures come back
// collected. Services already running are left alone.
func (m *Manager) StartAll(ctx context.Context, tk core.Toolkit) []error {
	var errs []error
	for _, name := range m.names() {
		if err := m.Start(ctx, tk, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Start starts one service by name. Starting a running service is a no-op.
func (m *Manager) Start(ctx context.Context, tk core.Toolkit, name string) error {
	m.mu.Lock()
	svc, ok := m.services[name]
	if !ok {
		m.mu.Unlock()
		return errors.Newf(errors.CodeNotFound, "service %q not registered", name)
	}
	if m.states[name] == StateRunning {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	err := resilience.WithTimeout(ctx, m.startTimeout, func(ctx context.Context) error {
		return svc.Start(ctx, tk)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.states[name] = StateDegraded
		m.logger.Error("service start failed",
			slog.String("service", name),
			slog.String("kind", svc.Kind()),
			slog.String("error", err.Error()))
		return errors.New(errors.CodeService, "service start failed", err).
			WithContext("service", name)
	}
	m.states[name] = StateRunning
	m.logger.Info("service started",
		slog.String("service", name),
		slog.String("kind", svc.Kind()))
	return nil
}

// StopAll stops services in reverse registration order. Every started or
// degraded service gets a stop attempt even when earlier ones fail; calling
// StopAll again is a no-op.
func (m *Manager) StopAll(ctx context.Context) []error {
	names := m.names()
	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]

		m.mu.Lock()
		svc := m.services[name]
		state := m.states[name]
		if state != StateRunning && state != StateDegraded {
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()

		err := resilience.WithTimeout(ctx, m.stopTimeout, func(ctx context.Context) error {
			return svc.Stop(ctx)
		})

		m.mu.Lock()
		m.states[name] = StateStopped
		m.mu.Unlock()

		if err != nil {
			m.logger.Error("service stop failed",
				slog.String("service", name),
				slog.String("error", err.Error()))
			errs = append(errs, errors.New(errors.CodeService, "service stop failed", err).
				WithContext("service", name))
			continue
		}
		m.logger.Info("service stopped", slog.String("service", name))
	}
	return errs
}

// Get returns a service by name, but only while it is running. Degraded and
// stopped services are invisible to callers.
func (m *Manager) Get(name string) (core.Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[name]
	if !ok || m.states[name] != StateRunning {
		return nil, false
	}
	return svc, true
}

// ByKind returns the first running service of the given kind in
// registration order.
func (m *Manager) ByKind(kind string) (core.Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		if m.states[name] != StateRunning {
			continue
		}
		if svc := m.services[name]; svc.Kind() == kind {
			return svc, true
		}
	}
	return nil, false
}

// States returns a copy of every service's current state.
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]State, len(m.states))
	for name, state := range m.states {
		out[name] = state
	}
	return out
}

// Running counts services currently in the running state.
func (m *Manager) Running() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, state := range m.states {
		if state == StateRunning {
			n++
		}
	}
	return n
}

// Health reports per-service health in registration order. Services
// implementing core.HealthChecker answer for themselves; for the rest the
// manager's state stands in.
func (m *Manager) Health(ctx context.Context) []core.HealthResult {
	m.mu.RLock()
	names := make([]string, len(m.order))
	copy(names, m.order)
	services := make(map[string]core.Service, len(m.services))
	states := make(map[string]State, len(m.states))
	for name, svc := range m.services {
		services[name] = svc
		states[name] = m.states[name]
	}
	m.mu.RUnlock()

	results := make([]core.HealthResult, 0, len(names))
	for _, name := range names {
		state := states[name]
		if state == StateStopped || state == StateRegistered {
			continue
		}
		if checker, ok := services[name].(core.HealthChecker); ok && state == StateRunning {
			results = append(results, checker.Check(ctx))
			continue
		}
		result := core.HealthResult{
			Component: "service:" + name,
			LastCheck: time.Now(),
		}
		switch state {
		case StateRunning:
			result.Status = core.HealthHealthy
			result.Message = "running"
		case StateDegraded:
			result.Status = core.HealthDegraded
			result.Message = "start failed"
		}
		results = append(results, result)
	}
	return results
}

func (m *Manager) names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
