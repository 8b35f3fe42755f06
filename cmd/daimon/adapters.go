package main

import (
	"flag"
	"fmt"
	"os"
)

// Adapter describes a pluggable backend and where its configuration
// lives. The catalog is what `daimon adapters` prints; it is not
// consulted at runtime.
type Adapter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
	Module      string   `json:"module,omitempty"`
}

var adaptersRegistry = []Adapter{
	// Model providers
	{
		Name:        "ollama",
		Type:        "model",
		Description: "Local inference through the Ollama HTTP API (built in)",
		ConfigKeys:  []string{"model.provider=ollama", "model.base_url", "model.model", "model.embed_model"},
		Module:      "pkg/plugins/ollama",
	},
	{
		Name:        "openai",
		Type:        "model",
		Description: "OpenAI chat and embedding models",
		ConfigKeys:  []string{"OPENAI_API_KEY", "OPENAI_LARGE_MODEL"},
		Module:      "providers/openai",
	},
	{
		Name:        "anthropic",
		Type:        "model",
		Description: "Anthropic Claude models (text classes only)",
		ConfigKeys:  []string{"ANTHROPIC_API_KEY", "ANTHROPIC_LARGE_MODEL"},
		Module:      "providers/anthropic",
	},
	{
		Name:        "gemini",
		Type:        "model",
		Description: "Google Gemini models",
		ConfigKeys:  []string{"GEMINI_API_KEY", "GEMINI_LARGE_MODEL"},
		Module:      "providers/gemini",
	},
	{
		Name:        "qwen",
		Type:        "model",
		Description: "Alibaba Qwen models over the DashScope API",
		ConfigKeys:  []string{"QWEN_API_KEY", "QWEN_LARGE_MODEL"},
		Module:      "providers/qwen",
	},

	// Memory backends
	{
		Name:        "inmemory",
		Type:        "memory",
		Description: "In-process storage, lost on exit",
		ConfigKeys:  []string{"memory.provider=inmemory"},
		Module:      "pkg/memory",
	},
	{
		Name:        "sqlite",
		Type:        "memory",
		Description: "Single-file SQLite persistence",
		ConfigKeys:  []string{"memory.provider=sqlite", "memory.path"},
		Module:      "pkg/memory",
	},
	{
		Name:        "qdrant",
		Type:        "memory",
		Description: "Qdrant vector index layered over the base store",
		ConfigKeys:  []string{"memory.vector_enabled=true", "memory.qdrant_addr", "memory.vector_collection", "memory.vector_dimensions"},
		Module:      "pkg/memory/qdrant",
	},

	// MCP transports
	{
		Name:        "mcp-stdio",
		Type:        "mcp",
		Description: "Model Context Protocol server as a subprocess",
		ConfigKeys:  []string{"mcp.transport=stdio", "mcp.command", "mcp.args"},
		Module:      "pkg/plugins/mcptools",
	},
	{
		Name:        "mcp-http",
		Type:        "mcp",
		Description: "Model Context Protocol server over streamable HTTP",
		ConfigKeys:  []string{"mcp.transport=http", "mcp.url"},
		Module:      "pkg/plugins/mcptools",
	},

	// Telemetry exporters
	{
		Name:        "otel-stdout",
		Type:        "telemetry",
		Description: "Traces and metrics printed to stdout",
		ConfigKeys:  []string{"telemetry.exporter=stdout"},
		Module:      "pkg/telemetry",
	},
	{
		Name:        "otel-otlp",
		Type:        "telemetry",
		Description: "Traces and metrics shipped over OTLP gRPC",
		ConfigKeys:  []string{"telemetry.exporter=otlp", "telemetry.otlp_endpoint", "telemetry.otlp_insecure"},
		Module:      "pkg/telemetry",
	},
	{
		Name:        "none",
		Type:        "telemetry",
		Description: "Telemetry disabled",
		ConfigKeys:  []string{"telemetry.exporter=none"},
		Module:      "pkg/telemetry",
	},
}

type adaptersListResult struct {
	Adapters []Adapter `json:"adapters"`
	Total    int       `json:"total"`
}

func runAdapters(global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: daimon adapters <list|info> [args]"))
	}

	switch args[0] {
	case "list":
		runAdaptersList(global, args[1:])
	case "info":
		runAdaptersInfo(global, args[1:])
	default:
		fatal(fmt.Errorf("unknown adapters subcommand %q; use list or info", args[0]))
	}
}

func runAdaptersList(global globalFlags, args []string) {
	cmd := flag.NewFlagSet("adapters list", flag.ContinueOnError)
	filterType := cmd.String("type", "", "Filter by type: model, memory, mcp, telemetry")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	adapters := adaptersRegistry
	if *filterType != "" {
		filtered := make([]Adapter, 0, len(adapters))
		for _, a := range adapters {
			if a.Type == *filterType {
				filtered = append(filtered, a)
			}
		}
		adapters = filtered
	}

	if global.JSON {
		printJSON(adaptersListResult{Adapters: adapters, Total: len(adapters)})
		return
	}

	if len(adapters) == 0 {
		fmt.Println("No adapters found.")
		return
	}

	w := newTabWriter()
	writeRow(w, "NAME", "TYPE", "DESCRIPTION")
	for _, a := range adapters {
		writeRow(w, a.Name, a.Type, a.Description)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d adapters\n", len(adapters))
	fmt.Println("Use 'daimon adapters info <name>' for configuration details.")
}

func runAdaptersInfo(global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: daimon adapters info <name>"))
	}

	name := args[0]
	found, ok := lookupAdapter(name)

	if global.JSON {
		printJSON(map[string]any{"adapter": found, "found": ok})
		if !ok {
			os.Exit(1)
		}
		return
	}

	if !ok {
		fmt.Printf("Adapter %q not found.\n\nAvailable adapters:\n", name)
		for _, a := range adaptersRegistry {
			fmt.Printf("  - %s (%s)\n", a.Name, a.Type)
		}
		os.Exit(1)
	}

	fmt.Printf("Adapter: %s\n", found.Name)
	fmt.Printf("Type: %s\n", found.Type)
	fmt.Printf("Description: %s\n", found.Description)
	if found.Module != "" {
		fmt.Printf("Module: %s\n", found.Module)
	}
	if len(found.ConfigKeys) > 0 {
		fmt.Println("\nConfiguration:")
		for _, k := range found.ConfigKeys {
			fmt.Printf("  %s\n", k)
		}
	}
}

func lookupAdapter(name string) (Adapter, bool) {
	for _, a := range adaptersRegistry {
		if a.Name == name {
			return a, true
		}
	}
	return Adapter{}, false
}
