package mcptools

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/daimon-agents/daimon/pkg/errors"
	"github.com/daimon-agents/daimon/pkg/resilience"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultCacheTTL    = 30 * time.Second
	initTimeout        = 10 * time.Second
)

// Conn is the slice of the mcp-go client the wrapper needs. *client.Client
// satisfies it for every transport.
type Conn interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ClientOption customizes the wrapper.
type ClientOption func(*Client)

// WithCallTimeout bounds each request to the server.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCacheTTL sets the tool discovery cache lifetime. Zero disables the
// cache.
func WithCacheTTL(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.cacheTTL = d
		}
	}
}

// WithRetry replaces the retry policy.
func WithRetry(rc resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = rc }
}

// Client wraps an MCP connection with per-call timeouts, retry, and a
// tool discovery cache.
type Client struct {
	conn     Conn
	timeout  time.Duration
	cacheTTL time.Duration
	retry    resilience.RetryConfig

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient wraps an already-initialized connection.
func NewClient(conn Conn, opts ...ClientOption) *Client {
	c := &Client{
		conn:     conn,
		timeout:  defaultCallTimeout,
		cacheTTL: defaultCacheTTL,
		retry:    resilience.DefaultRetryConfig().WithMaxAttempts(2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DialStdio launches command and speaks MCP over its stdio.
func DialStdio(ctx context.Context, command string, args []string, opts ...ClientOption) (*Client, error) {
	conn, err := mcpclient.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, errors.New(errors.CodeService, "start mcp subprocess", err)
	}
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return nil, errors.New(errors.CodeService, "start mcp stdio transport", err)
	}
	if err := initialize(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

// DialStreamableHTTP connects to a streamable HTTP MCP endpoint.
func DialStreamableHTTP(ctx context.Context, baseURL string, opts ...ClientOption) (*Client, error) {
	conn, err := mcpclient.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, errors.New(errors.CodeService, "create mcp http client", err)
	}
	if err := conn.Start(ctx); err != nil {
		conn.Close()
		return nil, errors.New(errors.CodeService, "start mcp http transport", err)
	}
	if err := initialize(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return NewClient(conn, opts...), nil
}

func initialize(ctx context.Context, conn *mcpclient.Client) error {
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: "daimon", Version: "0.1.0"}
	if _, err := conn.Initialize(initCtx, req); err != nil {
		return errors.New(errors.CodeService, "initialize mcp session", err)
	}
	return nil
}

// ListTools returns the server's tools, serving from the cache while it is
// fresh.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	result, err := resilience.DoWithResult(ctx, c.retry, func() (*mcp.ListToolsResult, error) {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		res, err := c.conn.ListTools(callCtx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, errors.New(errors.CodeService, "mcp list tools", err).
				WithRecoverable(ctx.Err() == nil)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(result.Tools)
	return result.Tools, nil
}

// CallTool executes a named tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return resilience.DoWithResult(ctx, c.retry, func() (*mcp.CallToolResult, error) {
		callCtx, cancel := c.callContext(ctx)
		defer cancel()
		res, err := c.conn.CallTool(callCtx, req)
		if err != nil {
			return nil, errors.New(errors.CodeService, fmt.Sprintf("mcp tool %s", name), err).
				WithContext("tool", name).
				WithRecoverable(ctx.Err() == nil)
		}
		return res, nil
	})
}

// InvalidateTools drops the discovery cache.
func (c *Client) InvalidateTools() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = nil
	c.cacheExpiry = time.Time{}
}

// Close shuts the underlying connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}
