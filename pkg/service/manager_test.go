package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

type stubToolkit struct{}

func (stubToolkit) AgentID() core.ID            { return core.ZeroID }
func (stubToolkit) Character() core.Character   { return core.Character{Name: "test"} }
func (stubToolkit) Logger() *slog.Logger        { return slog.Default() }
func (stubToolkit) Setting(name string) string  { return "" }
func (stubToolkit) Store() core.Store           { return nil }
func (stubToolkit) Emit(context.Context, core.Event) {}
func (stubToolkit) Service(string) (core.Service, bool) {
	return nil, false
}
func (stubToolkit) ServiceByKind(string) (core.Service, bool) {
	return nil, false
}
func (stubToolkit) UseModel(context.Context, core.ModelClass, core.ModelRequest) (core.ModelResponse, error) {
	return core.ModelResponse{}, errors.New(errors.CodeNoModelHandler, "no handler", nil)
}

type stubService struct {
	name     string
	kind     string
	startErr error
	stopErr  error
	delay    time.Duration

	mu     sync.Mutex
	starts int
	stops  int
	log    *[]string
}

func (s *stubService) Name() string { return s.name }
func (s *stubService) Kind() string { return s.kind }

func (s *stubService) Start(ctx context.Context, tk core.Toolkit) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.log != nil {
		*s.log = append(*s.log, "start:"+s.name)
	}
	return s.startErr
}

func (s *stubService) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.log != nil {
		*s.log = append(*s.log, "stop:"+s.name)
	}
	return s.stopErr
}

func (s *stubService) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

func newTestManager() *Manager {
	return NewManager(slog.Default(), time.Second, time.Second)
}

func TestRegisterDuplicate(t *testing.T) {
	m := newTestManager()
	if err := m.Register(&stubService{name: "db", kind: "storage"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := m.Register(&stubService{name: "db", kind: "other"})
	if !errors.IsCode(err, errors.CodeDuplicateCapability) {
		t.Errorf("duplicate register = %v, want DUPLICATE_CAPABILITY", err)
	}
	if err := m.Register(nil); err == nil {
		t.Error("registering nil should error")
	}
}

func TestStartAllCollectsFailures(t *testing.T) {
	m := newTestManager()
	good := &stubService{name: "a", kind: "x"}
	bad := &stubService{name: "b", kind: "x", startErr: fmt.Errorf("boom")}
	tail := &stubService{name: "c", kind: "x"}
	for _, s := range []*stubService{good, bad, tail} {
		if err := m.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.name, err)
		}
	}

	errs := m.StartAll(context.Background(), stubToolkit{})
	if len(errs) != 1 {
		t.Fatalf("StartAll errors = %d, want 1", len(errs))
	}
	if !errors.IsCode(errs[0], errors.CodeService) {
		t.Errorf("error code = %v, want SERVICE_ERROR", errs[0])
	}

	states := m.States()
	if states["a"] != StateRunning || states["c"] != StateRunning {
		t.Errorf("healthy services not running: %v", states)
	}
	if states["b"] != StateDegraded {
		t.Errorf("failed service state = %s, want degraded", states["b"])
	}

	if _, ok := m.Get("a"); !ok {
		t.Error("Get(a) should find the running service")
	}
	if _, ok := m.Get("b"); ok {
		t.Error("Get(b) must not return a degraded service")
	}
	if n := m.Running(); n != 2 {
		t.Errorf("Running() = %d, want 2", n)
	}
}

func TestStartAllIdempotentForRunning(t *testing.T) {
	m := newTestManager()
	svc := &stubService{name: "a", kind: "x"}
	_ = m.Register(svc)
	if errs := m.StartAll(context.Background(), stubToolkit{}); len(errs) != 0 {
		t.Fatalf("StartAll: %v", errs)
	}
	if errs := m.StartAll(context.Background(), stubToolkit{}); len(errs) != 0 {
		t.Fatalf("second StartAll: %v", errs)
	}
	if starts, _ := svc.counts(); starts != 1 {
		t.Errorf("service started %d times, want 1", starts)
	}
}

func TestStartTimeout(t *testing.T) {
	m := NewManager(slog.Default(), 20*time.Millisecond, time.Second)
	slow := &stubService{name: "slow", kind: "x", delay: 500 * time.Millisecond}
	_ = m.Register(slow)

	errs := m.StartAll(context.Background(), stubToolkit{})
	if len(errs) != 1 {
		t.Fatalf("StartAll errors = %d, want 1", len(errs))
	}
	if m.States()["slow"] != StateDegraded {
		t.Errorf("timed-out service state = %s, want degraded", m.States()["slow"])
	}
}

func TestStopAllReverseOrderBestEffort(t *testing.T) {
	m := newTestManager()
	var log []string
	a := &stubService{name: "a", kind: "x", log: &log}
	b := &stubService{name: "b", kind: "x", log: &log, stopErr: fmt.Errorf("stuck")}
	c := &stubService{name: "c", kind: "x", log: &log}
	for _, s := range []*stubService{a, b, c} {
		_ = m.Register(s)
	}
	if errs := m.StartAll(context.Background(), stubToolkit{}); len(errs) != 0 {
		t.Fatalf("StartAll: %v", errs)
	}

	errs := m.StopAll(context.Background())
	if len(errs) != 1 {
		t.Fatalf("StopAll errors = %d, want 1", len(errs))
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("event log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("event log = %v, want %v", log, want)
		}
	}

	for name, state := range m.States() {
		if state != StateStopped {
			t.Errorf("service %s state = %s, want stopped", name, state)
		}
	}

	// Second StopAll must not touch the services again.
	if errs := m.StopAll(context.Background()); len(errs) != 0 {
		t.Fatalf("second StopAll: %v", errs)
	}
	if _, stops := c.counts(); stops != 1 {
		t.Errorf("service c stopped %d times, want 1", stops)
	}
}

func TestStopSkipsNeverStarted(t *testing.T) {
	m := newTestManager()
	svc := &stubService{name: "idle", kind: "x"}
	_ = m.Register(svc)
	if errs := m.StopAll(context.Background()); len(errs) != 0 {
		t.Fatalf("StopAll: %v", errs)
	}
	if _, stops := svc.counts(); stops != 0 {
		t.Errorf("never-started service received %d stop calls", stops)
	}
}

func TestByKind(t *testing.T) {
	m := newTestManager()
	first := &stubService{name: "pg", kind: "storage"}
	second := &stubService{name: "redis", kind: "storage"}
	other := &stubService{name: "mcp", kind: "tools", startErr: fmt.Errorf("down")}
	for _, s := range []*stubService{first, second, other} {
		_ = m.Register(s)
	}
	_ = m.StartAll(context.Background(), stubToolkit{})

	svc, ok := m.ByKind("storage")
	if !ok || svc.Name() != "pg" {
		t.Errorf("ByKind(storage) = %v, want pg", svc)
	}
	if _, ok := m.ByKind("tools"); ok {
		t.Error("ByKind must not return a degraded service")
	}
	if _, ok := m.ByKind("unknown"); ok {
		t.Error("ByKind(unknown) should miss")
	}
}

type checkedService struct {
	stubService
	result core.HealthResult
}

func (s *checkedService) Check(ctx context.Context) core.HealthResult { return s.result }

func TestHealthAggregation(t *testing.T) {
	m := newTestManager()
	self := &checkedService{
		stubService: stubService{name: "probed", kind: "x"},
		result: core.HealthResult{
			Status:    core.HealthDegraded,
			Component: "service:probed",
			Message:   "queue backlog",
		},
	}
	plain := &stubService{name: "plain", kind: "x"}
	broken := &stubService{name: "broken", kind: "x", startErr: fmt.Errorf("no dice")}
	_ = m.Register(self)
	_ = m.Register(plain)
	_ = m.Register(broken)
	_ = m.StartAll(context.Background(), stubToolkit{})

	results := m.Health(context.Background())
	if len(results) != 3 {
		t.Fatalf("Health results = %d, want 3", len(results))
	}
	byComponent := map[string]core.HealthResult{}
	for _, r := range results {
		byComponent[r.Component] = r
	}
	if byComponent["service:probed"].Message != "queue backlog" {
		t.Errorf("self-reported health not used: %+v", byComponent["service:probed"])
	}
	if byComponent["service:plain"].Status != core.HealthHealthy {
		t.Errorf("plain running service should report healthy")
	}
	if byComponent["service:broken"].Status != core.HealthDegraded {
		t.Errorf("degraded service should report degraded")
	}
	if core.WorstStatus(results) != core.HealthDegraded {
		t.Errorf("WorstStatus = %s, want DEGRADED", core.WorstStatus(results))
	}
}
