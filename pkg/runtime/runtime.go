// Package runtime implements the agent execution engine: plugin
// registration, per-message state composition, sequential action dispatch,
// post-cycle evaluation, and the lifecycle tying them together.
package runtime

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/model"
	"github.com/daimon-agents/daimon/pkg/registry"
	"github.com/daimon-agents/daimon/pkg/service"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

// stopDrainTimeout bounds how long Stop waits for in-flight cycles before
// abandoning them.
const stopDrainTimeout = 5 * time.Second

// Runtime owns one agent: its identity, its capability catalog, its
// services, its model gateway, and the persistence handle. It implements
// core.Toolkit, so capabilities reach back into the runtime through the
// interface rather than the concrete type.
type Runtime struct {
	agentID core.ID

	mu           sync.RWMutex
	status       Status
	character    core.Character
	settings     map[string]string
	pluginConfig map[string]string

	catalog  *registry.Catalog
	services *service.Manager
	gateway  *model.Gateway
	store    core.Store

	logger   *slog.Logger
	emitter  core.EventEmitter
	metrics  *telemetry.CycleMetrics
	tracer   trace.Tracer
	timeouts Timeouts
	required []string
	now      func() time.Time

	// regMu serializes plugin registration so staged validation stays
	// authoritative through the commit.
	regMu   sync.Mutex
	pending []core.Plugin

	cycles sync.WaitGroup
}

var _ core.Toolkit = (*Runtime)(nil)

// New builds a runtime in the constructed state. The agent id derives from
// the character name and never changes afterwards.
func New(character core.Character, opts ...Option) (*Runtime, error) {
	if err := character.Validate(); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "invalid character", err)
	}

	r := &Runtime{
		agentID:      core.DeriveID(character.Name),
		status:       StatusConstructed,
		character:    character.Clone(),
		settings:     make(map[string]string),
		pluginConfig: make(map[string]string),
		store:        unavailableStore{},
		logger:       slog.Default(),
		emitter:      core.NoopEmitter{},
		timeouts:     DefaultTimeouts(),
		now:          time.Now,
		tracer:       otel.Tracer("daimon/runtime"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	r.catalog = registry.NewCatalog()
	r.services = service.NewManager(r.logger, r.timeouts.ServiceStart, r.timeouts.ServiceStop)
	r.gateway = model.NewGateway(r.logger, r.timeouts.Model, r.metrics)
	return r, nil
}

// Initialize registers the configured plugins and starts services. A plugin
// that fails to register is skipped and logged; initialization fails only
// when a required service cannot start.
func (r *Runtime) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if err := r.transition(StatusInitializing); err != nil {
		r.mu.Unlock()
		return err
	}
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	r.logger.Info("runtime initializing",
		slog.String("agent_id", r.agentID.String()),
		slog.String("character", r.Character().Name),
		slog.Int("plugins", len(pending)))

	for _, p := range pending {
		if err := r.registerPlugin(ctx, p, false); err != nil {
			r.logger.Error("plugin registration failed, skipping",
				slog.String("plugin", p.Name),
				slog.Any("error", err))
		}
	}

	for _, err := range r.services.StartAll(ctx, r) {
		r.logger.Warn("service degraded at startup", slog.Any("error", err))
	}

	if missing := r.missingRequiredServices(); len(missing) > 0 {
		_ = r.services.StopAll(ctx)
		r.mu.Lock()
		_ = r.transition(StatusStopped)
		r.mu.Unlock()
		return errors.Newf(errors.CodeService, "required services failed to start: %s", strings.Join(missing, ", "))
	}

	r.emitServiceStarts(ctx)
	r.metrics.SetServicesRunning(ctx, r.services.Running())

	r.mu.Lock()
	if err := r.transition(StatusRunning); err != nil {
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	actions, providers, evaluators := r.catalog.Counts()
	r.logger.Info("runtime running",
		slog.String("agent_id", r.agentID.String()),
		slog.Int("actions", actions),
		slog.Int("providers", providers),
		slog.Int("evaluators", evaluators),
		slog.Int("services", r.services.Running()))
	return nil
}

// Stop shuts the runtime down: new cycles are rejected, in-flight cycles
// get a bounded drain, and every service receives a stop attempt. Stopping
// an already-stopped runtime is a no-op.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	switch r.status {
	case StatusStopped, StatusStopping:
		r.mu.Unlock()
		return nil
	case StatusRunning:
		_ = r.transition(StatusStopping)
	}
	r.mu.Unlock()

	r.logger.Info("runtime stopping", slog.String("agent_id", r.agentID.String()))
	r.drainCycles()

	running := r.runningServiceNames()
	stopErrs := r.services.StopAll(ctx)
	for _, name := range running {
		r.emit(ctx, core.EventServiceStopped, map[string]any{"service": name})
	}
	r.metrics.SetServicesRunning(ctx, 0)

	r.mu.Lock()
	_ = r.transition(StatusStopped)
	r.mu.Unlock()

	r.logger.Info("runtime stopped", slog.String("agent_id", r.agentID.String()))
	return stderrors.Join(stopErrs...)
}

// RegisterPlugin makes a plugin's capabilities available. Before Initialize
// the plugin is queued; while running it registers live and is visible to
// the next cycle. Either the whole bundle lands or none of it does.
func (r *Runtime) RegisterPlugin(ctx context.Context, p core.Plugin) error {
	r.mu.Lock()
	status := r.status
	if status == StatusConstructed {
		r.pending = append(r.pending, p)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	switch status {
	case StatusInitializing, StatusRunning:
		return r.registerPlugin(ctx, p, status == StatusRunning)
	default:
		return errors.Newf(errors.CodeNotRunning, "cannot register plugin while %s", status)
	}
}

func (r *Runtime) registerPlugin(ctx context.Context, p core.Plugin, startServices bool) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	err := r.commitPlugin(ctx, p, startServices)
	r.metrics.RecordPluginRegistration(ctx, p.Name, err)
	if err != nil {
		return err
	}

	r.logger.Info("plugin registered",
		slog.String("plugin", p.Name),
		slog.Int("actions", len(p.Actions)),
		slog.Int("providers", len(p.Providers)),
		slog.Int("evaluators", len(p.Evaluators)),
		slog.Int("services", len(p.Services)),
		slog.Int("models", len(p.Models)))
	r.emit(ctx, core.EventPluginRegistered, map[string]any{"plugin": p.Name})
	return nil
}

// commitPlugin stages, initializes, and commits one bundle. Callers hold
// regMu, so the staged validation cannot be invalidated by a concurrent
// registration before the commit lands.
func (r *Runtime) commitPlugin(ctx context.Context, p core.Plugin, startServices bool) error {
	if err := r.catalog.Stage(p); err != nil {
		return err
	}
	states := r.services.States()
	for _, svc := range p.Services {
		if _, exists := states[svc.Name()]; exists {
			return errors.Newf(errors.CodeDuplicateCapability, "service %q already registered", svc.Name()).
				WithContext("plugin", p.Name)
		}
	}

	restoreConfig := r.mergePluginConfig(p.Config)
	if p.Init != nil {
		if err := p.Init(ctx, r); err != nil {
			restoreConfig()
			return errors.New(errors.CodeInvalidPlugin, "plugin init failed", err).
				WithContext("plugin", p.Name)
		}
	}

	for class, handler := range p.Models {
		if err := r.gateway.RegisterHandler(class, handler); err != nil {
			restoreConfig()
			return err
		}
	}
	for _, svc := range p.Services {
		if err := r.services.Register(svc); err != nil {
			restoreConfig()
			return err
		}
	}
	if startServices {
		for _, svc := range p.Services {
			if err := r.services.Start(ctx, r, svc.Name()); err != nil {
				// Degraded, not fatal: the plugin's other capabilities stay.
				r.logger.Error("service start failed during registration",
					slog.String("plugin", p.Name),
					slog.String("service", svc.Name()),
					slog.Any("error", err))
				continue
			}
			r.emit(ctx, core.EventServiceStarted, map[string]any{"service": svc.Name(), "kind": svc.Kind()})
		}
		r.metrics.SetServicesRunning(ctx, r.services.Running())
	}
	if err := r.catalog.Attach(p); err != nil {
		restoreConfig()
		return err
	}
	return nil
}

// mergePluginConfig folds default settings in (existing keys win) and
// returns a restore func for the failure path.
func (r *Runtime) mergePluginConfig(config map[string]string) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]string, len(r.pluginConfig))
	for k, v := range r.pluginConfig {
		saved[k] = v
	}
	for k, v := range config {
		if _, exists := r.pluginConfig[k]; !exists {
			r.pluginConfig[k] = v
		}
	}
	return func() {
		r.mu.Lock()
		r.pluginConfig = saved
		r.mu.Unlock()
	}
}

// GetService looks up a running service by name.
func (r *Runtime) GetService(name string) (core.Service, bool) {
	return r.services.Get(name)
}

// Routes returns every HTTP route contributed by registered plugins, in
// registration order. The runtime stores them for a transport collaborator;
// it serves nothing itself.
func (r *Runtime) Routes() []core.Route {
	return r.catalog.Routes()
}

// Actions returns snapshots of the registered actions in registration
// order. Capabilities that want to introspect the catalog type-assert the
// Toolkit to reach this.
func (r *Runtime) Actions() []core.Action {
	return r.catalog.Actions()
}

// Providers returns snapshots of the registered providers in registration
// order.
func (r *Runtime) Providers() []core.Provider {
	return r.catalog.Providers()
}

// Evaluators returns snapshots of the registered evaluators in registration
// order.
func (r *Runtime) Evaluators() []core.Evaluator {
	return r.catalog.Evaluators()
}

// AgentID implements core.Toolkit.
func (r *Runtime) AgentID() core.ID {
	return r.agentID
}

// Character returns a snapshot of the current persona.
func (r *Runtime) Character() core.Character {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.character.Clone()
}

// SetCharacter replaces the persona as a whole. The agent id does not
// change even when the name does.
func (r *Runtime) SetCharacter(c core.Character) error {
	if err := c.Validate(); err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid character", err)
	}
	r.mu.Lock()
	r.character = c.Clone()
	r.mu.Unlock()
	r.logger.Info("character replaced", slog.String("name", c.Name))
	return nil
}

// Logger implements core.Toolkit.
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// UseModel implements core.Toolkit. After stop it fails with a typed
// not-running error instead of reaching a half-torn gateway.
func (r *Runtime) UseModel(ctx context.Context, class core.ModelClass, req core.ModelRequest) (core.ModelResponse, error) {
	r.mu.RLock()
	status := r.status
	r.mu.RUnlock()
	if status == StatusStopped || status == StatusStopping {
		return core.ModelResponse{}, errors.Newf(errors.CodeNotRunning, "runtime is %s", status)
	}

	resp, err := r.gateway.Invoke(ctx, class, req)
	r.emit(ctx, core.EventModelInvoked, map[string]any{
		"class": string(class),
		"ok":    err == nil,
	})
	return resp, err
}

// Service implements core.Toolkit.
func (r *Runtime) Service(name string) (core.Service, bool) {
	return r.services.Get(name)
}

// ServiceByKind implements core.Toolkit.
func (r *Runtime) ServiceByKind(kind string) (core.Service, bool) {
	return r.services.ByKind(kind)
}

// Store implements core.Toolkit; after stop it degrades to a rejecting
// stand-in rather than touching a backend whose owner may have closed it.
func (r *Runtime) Store() core.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status == StatusStopped {
		return unavailableStore{}
	}
	return r.store
}

// Setting implements core.Toolkit: runtime overrides, then character
// settings, then plugin config defaults.
func (r *Runtime) Setting(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.settings[name]; ok {
		return v
	}
	if v := r.character.Setting(name); v != "" {
		return v
	}
	return r.pluginConfig[name]
}

// Emit implements core.Toolkit, stamping agent and cycle ids.
func (r *Runtime) Emit(ctx context.Context, event core.Event) {
	if event.AgentID == core.ZeroID {
		event.AgentID = r.agentID
	}
	if event.CycleID == core.ZeroID {
		if id, ok := core.CycleIDFromContext(ctx); ok {
			event.CycleID = id
		}
	}
	if event.ID == core.ZeroID {
		event.ID = core.NewID()
	}
	if event.Time.IsZero() {
		event.Time = r.now().UTC()
	}
	r.emitter.Emit(ctx, event)
}

// Status returns the lifecycle state.
func (r *Runtime) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Health reports the runtime's own state plus every service's health.
func (r *Runtime) Health(ctx context.Context) []core.HealthResult {
	self := core.HealthResult{
		Component: "runtime:" + r.agentID.String(),
		LastCheck: r.now().UTC(),
	}
	switch r.Status() {
	case StatusRunning:
		self.Status = core.HealthHealthy
		self.Message = "running"
	case StatusStopped:
		self.Status = core.HealthUnhealthy
		self.Message = "stopped"
	default:
		self.Status = core.HealthDegraded
		self.Message = string(r.Status())
	}
	return append([]core.HealthResult{self}, r.services.Health(ctx)...)
}

func (r *Runtime) emit(ctx context.Context, eventType core.EventType, data map[string]any) {
	cycleID, _ := core.CycleIDFromContext(ctx)
	r.emitter.Emit(ctx, core.Event{
		ID:      core.NewID(),
		Type:    eventType,
		AgentID: r.agentID,
		CycleID: cycleID,
		Time:    r.now().UTC(),
		Data:    data,
	})
}

func (r *Runtime) missingRequiredServices() []string {
	states := r.services.States()
	var missing []string
	for _, name := range r.required {
		if states[name] != service.StateRunning {
			missing = append(missing, name)
		}
	}
	return missing
}

func (r *Runtime) runningServiceNames() []string {
	var names []string
	for name, state := range r.services.States() {
		if state == service.StateRunning {
			names = append(names, name)
		}
	}
	return names
}

func (r *Runtime) emitServiceStarts(ctx context.Context) {
	for _, name := range r.runningServiceNames() {
		kind := ""
		if svc, ok := r.services.Get(name); ok {
			kind = svc.Kind()
		}
		r.emit(ctx, core.EventServiceStarted, map[string]any{"service": name, "kind": kind})
	}
}

func (r *Runtime) drainCycles() {
	done := make(chan struct{})
	go func() {
		r.cycles.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopDrainTimeout):
		r.logger.Warn("stop proceeding with cycles still in flight")
	}
}
