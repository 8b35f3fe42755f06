package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/errors"
)

// Capability names the plugin contributes.
const (
	ProviderTools  = "MCP_TOOLS"
	ActionCallTool = "CALL_MCP_TOOL"
)

func lookupService(tk core.Toolkit) (*Service, bool) {
	svc, ok := tk.Service(ServiceName)
	if !ok {
		return nil, false
	}
	s, ok := svc.(*Service)
	return s, ok
}

func toolsProvider() core.Provider {
	return core.Provider{
		Name:        ProviderTools,
		Description: "Tools exposed by the connected MCP server.",
		Dynamic:     true,
		Position:    70,
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (bool, error) {
			_, ok := lookupService(tk)
			return ok, nil
		},
		Get: func(ctx context.Context, tk core.Toolkit, msg core.Memory) (core.ProviderResult, error) {
			s, ok := lookupService(tk)
			if !ok {
				return core.ProviderResult{}, nil
			}
			tools, err := s.Tools(ctx)
			if err != nil {
				return core.ProviderResult{}, err
			}
			if len(tools) == 0 {
				return core.ProviderResult{}, nil
			}
			names := make([]string, 0, len(tools))
			var b strings.Builder
			b.WriteString("# MCP tools\n")
			for _, tool := range tools {
				names = append(names, tool.Name)
				if tool.Description != "" {
					fmt.Fprintf(&b, "%s: %s\n", tool.Name, tool.Description)
				} else {
					b.WriteString(tool.Name + "\n")
				}
			}
			return core.ProviderResult{
				Text:   strings.TrimRight(b.String(), "\n"),
				Values: map[string]any{"mcp_tool_names": names},
				Data:   map[string]any{"mcp_tools": tools},
			}, nil
		},
	}
}

func callToolAction() core.Action {
	return core.Action{
		Name:        ActionCallTool,
		Description: "Invoke a named tool on the connected MCP server.",
		Providers:   []string{ProviderTools},
		Validate: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State) (bool, error) {
			if !callRequested(msg) {
				return false, nil
			}
			if _, ok := lookupService(tk); !ok {
				return false, nil
			}
			name, _, err := toolCallFromMessage(msg)
			return err == nil && name != "", nil
		},
		Handler: func(ctx context.Context, tk core.Toolkit, msg core.Memory, st *core.State, prior []core.ActionResult) (core.ActionResult, error) {
			name, args, err := toolCallFromMessage(msg)
			if err != nil {
				return core.ActionResult{}, err
			}
			s, ok := lookupService(tk)
			if !ok {
				return core.ActionResult{}, errors.New(errors.CodeUnavailable, "mcp service is not registered", nil)
			}
			result, err := s.Call(ctx, name, args)
			if err != nil {
				return core.ActionResult{}, err
			}
			output, err := renderResult(name, result)
			if err != nil {
				return core.ActionResult{}, err
			}
			out := core.NewMemory(tk.AgentID(), msg.RoomID, core.Content{
				Text:   output,
				Source: "mcp",
				Data:   map[string]any{"tool": name},
			})
			out.AgentID = tk.AgentID()
			return core.ActionResult{
				Success:   true,
				Text:      output,
				Data:      map[string]any{"tool": name, "output": output},
				Responses: []core.Memory{out},
			}, nil
		},
	}
}

func callRequested(msg core.Memory) bool {
	for _, a := range msg.Content.Actions {
		if strings.EqualFold(a, ActionCallTool) {
			return true
		}
	}
	return false
}

// toolCallFromMessage reads the tool name and arguments from the message
// payload. Arguments may be a map or a JSON object string.
func toolCallFromMessage(msg core.Memory) (string, map[string]any, error) {
	data := msg.Content.Data
	if data == nil {
		return "", nil, errors.New(errors.CodeInvalidInput, "tool call needs a payload with a tool name", nil)
	}
	name, _ := data["tool"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, errors.New(errors.CodeInvalidInput, "tool call payload is missing the tool name", nil)
	}
	args, err := normalizeArgs(data["arguments"])
	if err != nil {
		return "", nil, err
	}
	return name, args, nil
}

func normalizeArgs(input any) (map[string]any, error) {
	switch value := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return value, nil
	case json.RawMessage:
		var decoded map[string]any
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "tool arguments are not valid JSON", err)
		}
		return decoded, nil
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return map[string]any{}, nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "tool arguments are not valid JSON", err)
		}
		return decoded, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unsupported tool arguments type %T", input)
	}
}

func renderResult(name string, result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.Newf(errors.CodeService, "mcp tool %s returned no result", name)
	}
	text := textContent(result.Content)
	if result.IsError {
		return "", errors.Newf(errors.CodeService, "mcp tool %s failed: %s", name, text)
	}
	if text != "" {
		return text, nil
	}
	if result.StructuredContent != nil {
		encoded, err := json.Marshal(result.StructuredContent)
		if err == nil {
			return string(encoded), nil
		}
	}
	return fmt.Sprintf("tool %s completed", name), nil
}

func textContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
