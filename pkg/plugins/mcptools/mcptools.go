// Package mcptools connects the runtime to a Model Context Protocol
// server: a service owning the client connection, a dynamic provider that
// surfaces the server's tools into composed state, and an action that
// invokes one behind a circuit breaker.
package mcptools

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
)

// ServiceName is how the MCP service registers with the runtime.
const ServiceName = "mcp"

// Setting names the plugin reads at service start.
const (
	SettingTransport   = "MCP_TRANSPORT"
	SettingCommand     = "MCP_COMMAND"
	SettingArgs        = "MCP_ARGS"
	SettingURL         = "MCP_URL"
	SettingCallTimeout = "MCP_CALL_TIMEOUT"
	SettingCacheTTL    = "MCP_CACHE_TTL"
)

// Plugin returns the MCP bundle. The service fails to start when no
// endpoint is configured; the runtime treats that as a degraded optional
// service unless the caller requires it.
func Plugin() core.Plugin {
	return core.Plugin{
		Name:        "mcptools",
		Description: "Tools from a Model Context Protocol server.",
		Config: map[string]string{
			SettingCallTimeout: "10s",
			SettingCacheTTL:    "30s",
		},
		Actions:   []core.Action{callToolAction()},
		Providers: []core.Provider{toolsProvider()},
		Services:  []core.Service{NewService()},
	}
}

// Service owns the MCP connection for one runtime.
type Service struct {
	mu      sync.RWMutex
	client  *Client
	breaker *resilience.CircuitBreaker
	// dial is replaced in tests to skip real transports.
	dial func(ctx context.Context, tk core.Toolkit) (*Client, error)
}

// NewService returns an unconnected service; Start dials per settings.
func NewService() *Service {
	return &Service{
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "mcp",
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          15 * time.Second,
		}),
	}
}

func (*Service) Name() string { return ServiceName }
func (*Service) Kind() string { return "tools" }

func (s *Service) Start(ctx context.Context, tk core.Toolkit) error {
	dial := s.dial
	if dial == nil {
		dial = dialFromSettings
	}
	client, err := dial(ctx, tk)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// Tools lists the connected server's tools.
func (s *Service) Tools(ctx context.Context) ([]mcp.Tool, error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}
	return client.ListTools(ctx)
}

// Call invokes a tool through the circuit breaker.
func (s *Service) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	client, err := s.connected()
	if err != nil {
		return nil, err
	}
	var result *mcp.CallToolResult
	err = s.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = client.CallTool(ctx, name, args)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) connected() (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, errors.New(errors.CodeUnavailable, "mcp service is not connected", nil).
			WithRecoverable(true)
	}
	return s.client, nil
}

func dialFromSettings(ctx context.Context, tk core.Toolkit) (*Client, error) {
	transport := strings.ToLower(strings.TrimSpace(tk.Setting(SettingTransport)))
	command := strings.TrimSpace(tk.Setting(SettingCommand))
	url := strings.TrimSpace(tk.Setting(SettingURL))

	var opts []ClientOption
	if d, err := time.ParseDuration(tk.Setting(SettingCallTimeout)); err == nil && d > 0 {
		opts = append(opts, WithCallTimeout(d))
	}
	if d, err := time.ParseDuration(tk.Setting(SettingCacheTTL)); err == nil && d >= 0 {
		opts = append(opts, WithCacheTTL(d))
	}

	switch {
	case transport == "stdio" || (transport == "" && command != ""):
		if command == "" {
			return nil, errors.New(errors.CodeInvalidInput, "mcp stdio transport needs MCP_COMMAND", nil)
		}
		return DialStdio(ctx, command, strings.Fields(tk.Setting(SettingArgs)), opts...)
	case transport == "http" || (transport == "" && url != ""):
		if url == "" {
			return nil, errors.New(errors.CodeInvalidInput, "mcp http transport needs MCP_URL", nil)
		}
		return DialStreamableHTTP(ctx, url, opts...)
	default:
		return nil, errors.New(errors.CodeInvalidInput, "no mcp endpoint configured: set MCP_COMMAND or MCP_URL", nil)
	}
}
