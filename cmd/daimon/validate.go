package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/daimon-agents/daimon/pkg/character"
	"github.com/daimon-agents/daimon/pkg/config"
)

type validateResult struct {
	Config    checkResult `json:"config"`
	Character checkResult `json:"character"`
	Model     checkResult `json:"model"`
	Memory    checkResult `json:"memory"`
	MCP       checkResult `json:"mcp"`
	Overall   string      `json:"overall"`
}

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // ok, warn, error, skip
	Message string `json:"message,omitempty"`
}

func runValidate(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	characterPath := cmd.String("character", "", "Character definition file to check")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	var result validateResult
	hasError := false
	hasWarn := false
	track := func(r checkResult) checkResult {
		switch r.Status {
		case "error":
			hasError = true
		case "warn":
			hasWarn = true
		}
		return r
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		result.Config = track(checkResult{Name: "config", Status: "error", Message: fmt.Sprintf("failed to load: %v", err)})
	} else {
		result.Config = track(checkResult{Name: "config", Status: "ok"})
	}

	path := strings.TrimSpace(*characterPath)
	if path == "" && cfg != nil {
		path = cfg.Character.Path
	}
	result.Character = track(validateCharacter(path))

	if cfg != nil {
		result.Model = track(validateModel(cfg))
		result.Memory = track(validateMemory(cfg))
		result.MCP = track(validateMCP(cfg))
	} else {
		result.Model = checkResult{Name: "model", Status: "skip", Message: "config not loaded"}
		result.Memory = checkResult{Name: "memory", Status: "skip", Message: "config not loaded"}
		result.MCP = checkResult{Name: "mcp", Status: "skip", Message: "config not loaded"}
	}

	switch {
	case hasError:
		result.Overall = "error"
	case hasWarn:
		result.Overall = "warn"
	default:
		result.Overall = "ok"
	}

	if global.JSON {
		printJSON(result)
		if hasError {
			os.Exit(1)
		}
		return
	}

	printValidateResult(result)
	if hasError {
		os.Exit(1)
	}
}

func validateCharacter(path string) checkResult {
	if path == "" {
		return checkResult{Name: "character", Status: "warn", Message: "no character file configured (will use the default persona)"}
	}
	c, err := character.Load(path)
	if err != nil {
		return checkResult{Name: "character", Status: "error", Message: err.Error()}
	}
	return checkResult{Name: "character", Status: "ok", Message: c.Name}
}

func validateModel(cfg *config.Config) checkResult {
	switch strings.ToLower(cfg.Model.Provider) {
	case "", "ollama":
		baseURL := cfg.Model.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(baseURL + "/api/tags")
		if err != nil {
			return checkResult{Name: "model", Status: "error", Message: fmt.Sprintf("ollama not reachable at %s: %v", baseURL, err)}
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return checkResult{Name: "model", Status: "error", Message: fmt.Sprintf("ollama returned status %d", resp.StatusCode)}
		}
		return checkResult{Name: "model", Status: "ok", Message: fmt.Sprintf("ollama (%s)", cfg.Model.Model)}

	case "none":
		return checkResult{Name: "model", Status: "warn", Message: "no model handlers; reply actions will fail"}

	default:
		return checkResult{Name: "model", Status: "warn", Message: fmt.Sprintf("provider %q is served by a satellite module, not this binary", cfg.Model.Provider)}
	}
}

func validateMemory(cfg *config.Config) checkResult {
	provider := strings.ToLower(cfg.Memory.Provider)

	switch provider {
	case "", "inmemory":
		if cfg.Memory.VectorEnabled {
			return validateQdrant(cfg, "inmemory")
		}
		return checkResult{Name: "memory", Status: "ok", Message: "inmemory (non-persistent)"}

	case "sqlite":
		if cfg.Memory.Path == "" {
			return checkResult{Name: "memory", Status: "error", Message: "sqlite provider needs memory.path"}
		}
		if cfg.Memory.VectorEnabled {
			return validateQdrant(cfg, "sqlite")
		}
		return checkResult{Name: "memory", Status: "ok", Message: fmt.Sprintf("sqlite (%s)", cfg.Memory.Path)}

	default:
		return checkResult{Name: "memory", Status: "error", Message: fmt.Sprintf("unknown provider %q (use inmemory or sqlite)", cfg.Memory.Provider)}
	}
}

func validateQdrant(cfg *config.Config, base string) checkResult {
	if !checkTCP(cfg.Memory.QdrantAddr) {
		return checkResult{Name: "memory", Status: "error", Message: fmt.Sprintf("qdrant not reachable at %s", cfg.Memory.QdrantAddr)}
	}
	return checkResult{Name: "memory", Status: "ok", Message: fmt.Sprintf("%s + qdrant (%s)", base, cfg.Memory.QdrantAddr)}
}

func validateMCP(cfg *config.Config) checkResult {
	if !cfg.MCP.Configured() {
		return checkResult{Name: "mcp", Status: "ok", Message: "not configured"}
	}

	transport := strings.ToLower(strings.TrimSpace(cfg.MCP.Transport))
	if transport == "" {
		if cfg.MCP.Command != "" {
			transport = "stdio"
		} else {
			transport = "http"
		}
	}

	switch transport {
	case "stdio":
		if strings.TrimSpace(cfg.MCP.Command) == "" {
			return checkResult{Name: "mcp", Status: "error", Message: "stdio transport needs mcp.command"}
		}
		return checkResult{Name: "mcp", Status: "ok", Message: fmt.Sprintf("stdio: %s", cfg.MCP.Command)}

	case "http", "streamable-http":
		if cfg.MCP.URL == "" {
			return checkResult{Name: "mcp", Status: "error", Message: "http transport needs mcp.url"}
		}
		if !checkHTTP(cfg.MCP.URL) {
			return checkResult{Name: "mcp", Status: "error", Message: fmt.Sprintf("server not reachable at %s", cfg.MCP.URL)}
		}
		return checkResult{Name: "mcp", Status: "ok", Message: cfg.MCP.URL}

	default:
		return checkResult{Name: "mcp", Status: "error", Message: fmt.Sprintf("unsupported transport %q", cfg.MCP.Transport)}
	}
}

func printValidateResult(result validateResult) {
	statusIcon := map[string]string{
		"ok":    "✓",
		"warn":  "⚠",
		"error": "✗",
		"skip":  "○",
	}

	fmt.Println("Daimon configuration validation")
	fmt.Println()
	for _, r := range []checkResult{result.Config, result.Character, result.Model, result.Memory, result.MCP} {
		printCheck(statusIcon, r)
	}
	fmt.Println()

	switch result.Overall {
	case "ok":
		fmt.Println("✓ All checks passed")
	case "warn":
		fmt.Println("⚠ Validation completed with warnings")
	case "error":
		fmt.Println("✗ Validation failed")
	}
}

func printCheck(icons map[string]string, r checkResult) {
	icon := icons[r.Status]
	if r.Message != "" {
		fmt.Printf("%s %s: %s\n", icon, r.Name, r.Message)
	} else {
		fmt.Printf("%s %s\n", icon, r.Name)
	}
}
