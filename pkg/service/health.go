package service

import (
	"context"
	"sync"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
)

// CachedChecker wraps a HealthChecker and serves a cached result for
// minInterval, so aggregation endpoints cannot hammer a slow probe.
type CachedChecker struct {
	inner       core.HealthChecker
	minInterval time.Duration

	mu         sync.RWMutex
	lastCheck  time.Time
	lastResult core.HealthResult
}

// NewCachedChecker wraps inner with a result cache. A zero interval
// defaults to 5 seconds.
func NewCachedChecker(inner core.HealthChecker, minInterval time.Duration) *CachedChecker {
	if minInterval <= 0 {
		minInterval = 5 * time.Second
	}
	return &CachedChecker{inner: inner, minInterval: minInterval}
}

// Check returns the cached result when fresh enough, otherwise runs the
// wrapped probe.
func (c *CachedChecker) Check(ctx context.Context) core.HealthResult {
	c.mu.RLock()
	if time.Since(c.lastCheck) < c.minInterval && !c.lastResult.LastCheck.IsZero() {
		result := c.lastResult
		c.mu.RUnlock()
		return result
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if time.Since(c.lastCheck) < c.minInterval && !c.lastResult.LastCheck.IsZero() {
		return c.lastResult
	}

	result := c.inner.Check(ctx)
	c.lastResult = result
	c.lastCheck = time.Now()
	return result
}

// ProbeChecker adapts a plain probe function into a HealthChecker. A nil
// error from the probe is healthy, anything else unhealthy.
type ProbeChecker struct {
	component string
	probe     func(ctx context.Context) error
}

// NewProbeChecker builds a checker around probe, reporting under the given
// component name.
func NewProbeChecker(component string, probe func(ctx context.Context) error) *ProbeChecker {
	return &ProbeChecker{component: component, probe: probe}
}

// Check runs the probe once.
func (p *ProbeChecker) Check(ctx context.Context) core.HealthResult {
	result := core.HealthResult{
		Component: p.component,
		LastCheck: time.Now(),
	}
	if err := p.probe(ctx); err != nil {
		result.Status = core.HealthUnhealthy
		result.Message = err.Error()
		result.Error = err
		return result
	}
	result.Status = core.HealthHealthy
	result.Message = "ok"
	return result
}
