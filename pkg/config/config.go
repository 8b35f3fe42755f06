package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Memory    MemoryConfig    `koanf:"memory"`
	Model     ModelConfig     `koanf:"model"`
	MCP       MCPConfig       `koanf:"mcp"`
	Character CharacterConfig `koanf:"character"`

	// Settings are passed to the runtime verbatim and read by plugins
	// through the toolkit. Keys are not case-folded, so they should match
	// the names plugins document, e.g. OLLAMA_BASE_URL.
	Settings map[string]string `koanf:"settings"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter           string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint       string `koanf:"otlp_endpoint"`
	OTLPInsecure       bool   `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int    `koanf:"otlp_timeout_seconds"`
}

// RuntimeConfig bounds capability invocations. Zero values keep the
// runtime's stock timeouts.
type RuntimeConfig struct {
	ProviderTimeoutSeconds     int      `koanf:"provider_timeout_seconds"`
	ActionTimeoutSeconds       int      `koanf:"action_timeout_seconds"`
	EvaluatorTimeoutSeconds    int      `koanf:"evaluator_timeout_seconds"`
	ModelTimeoutSeconds        int      `koanf:"model_timeout_seconds"`
	ServiceStartTimeoutSeconds int      `koanf:"service_start_timeout_seconds"`
	ServiceStopTimeoutSeconds  int      `koanf:"service_stop_timeout_seconds"`
	RequiredServices           []string `koanf:"required_services"`
}

type MemoryConfig struct {
	Provider         string `koanf:"provider"` // inmemory, sqlite
	Path             string `koanf:"path"`     // sqlite database file
	VectorEnabled    bool   `koanf:"vector_enabled"`
	QdrantAddr       string `koanf:"qdrant_addr"`
	VectorCollection string `koanf:"vector_collection"`
	VectorDimensions int    `koanf:"vector_dimensions"`
	RetentionDays    int    `koanf:"retention_days"` // 0 keeps everything
}

type ModelConfig struct {
	Provider   string `koanf:"provider"` // ollama, openai, anthropic
	Model      string `koanf:"model"`
	SmallModel string `koanf:"small_model"`
	EmbedModel string `koanf:"embed_model"`
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
}

// MCPConfig points the runtime at a Model Context Protocol server.
// Leaving both command and url blank keeps the MCP plugin out of the
// runtime entirely.
type MCPConfig struct {
	Transport   string `koanf:"transport"` // stdio, http
	Command     string `koanf:"command"`
	Args        string `koanf:"args"` // space-separated stdio arguments
	URL         string `koanf:"url"`
	CallTimeout string `koanf:"call_timeout"` // Go duration, e.g. 10s
}

// Configured reports whether an MCP endpoint has been named.
func (c MCPConfig) Configured() bool {
	return c.URL != "" || c.Command != ""
}

type CharacterConfig struct {
	Path string `koanf:"path"` // character definition file
}

// Load reads configuration from defaults, then the file at path (when
// given), then DAIMON_-prefixed environment variables, each layer
// overriding the previous one.
func Load(path string) (*Config, error) {
	return load(pathsFor(path, ""), nil)
}

// LoadWithProfile loads the base config file and, when a sibling profile
// file exists (config.yaml + "dev" -> config.dev.yaml), overlays it.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(pathsFor(path, profile), nil)
}

// LoadWithCLI loads configuration driven by command-line arguments:
// --config PATH, --profile NAME (--env is an alias), and repeatable
// --set key=value overrides applied last.
func LoadWithCLI(args []string) (*Config, error) {
	opts, err := parseCLIArgs(args)
	if err != nil {
		return nil, err
	}
	return load(pathsFor(opts.configPath, opts.profile), opts.sets)
}

type cliOptions struct {
	configPath string
	profile    string
	sets       []string
}

func parseCLIArgs(args []string) (cliOptions, error) {
	var opts cliOptions
	take := func(i int, flag string) (string, int, error) {
		if eq := strings.IndexByte(args[i], '='); eq >= 0 {
			return args[i][eq+1:], i, nil
		}
		if i+1 >= len(args) {
			return "", i, fmt.Errorf("config: %s requires a value", flag)
		}
		return args[i+1], i + 1, nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || strings.HasPrefix(arg, "--config="):
			value, next, err := take(i, "--config")
			if err != nil {
				return opts, err
			}
			opts.configPath, i = value, next
		case arg == "--profile" || strings.HasPrefix(arg, "--profile="),
			arg == "--env" || strings.HasPrefix(arg, "--env="):
			value, next, err := take(i, "--profile")
			if err != nil {
				return opts, err
			}
			opts.profile, i = value, next
		case arg == "--set" || strings.HasPrefix(arg, "--set="):
			value, next, err := take(i, "--set")
			if err != nil {
				return opts, err
			}
			if !strings.Contains(value, "=") {
				return opts, fmt.Errorf("config: --set wants key=value, got %q", value)
			}
			opts.sets, i = append(opts.sets, value), next
		}
	}
	return opts, nil
}

// profileConfigPath returns the sibling profile file for a base config
// path, or "" when it does not exist.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(filepath.Base(base), ext)
	path := filepath.Join(dir, name+"."+profile+ext)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func pathsFor(path, profile string) []string {
	if path == "" {
		return nil
	}
	paths := []string{path}
	if p := profileConfigPath(path, profile); p != "" {
		paths = append(paths, p)
	}
	return paths
}

func load(paths []string, sets []string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.otlp_endpoint", "localhost:4317")
	k.Set("telemetry.otlp_insecure", true)
	k.Set("telemetry.otlp_timeout_seconds", 10)

	k.Set("memory.provider", "inmemory")
	k.Set("memory.path", "daimon.db")
	k.Set("memory.vector_enabled", false)
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.vector_collection", "daimon_memories")
	k.Set("memory.vector_dimensions", 768)

	k.Set("model.provider", "ollama")
	k.Set("model.model", "llama3.2")
	k.Set("model.small_model", "llama3.2")
	k.Set("model.embed_model", "nomic-embed-text")
	k.Set("model.base_url", "http://localhost:11434")

	// 1. Load files in order; later files override earlier ones.
	for _, path := range paths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV. The first underscore separates the section, the
	// rest is the key: DAIMON_MODEL_BASE_URL -> model.base_url.
	if err := k.Load(env.Provider("DAIMON_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "DAIMON_"))
		return strings.Join(strings.SplitN(s, "_", 2), ".")
	}), nil); err != nil {
		return nil, err
	}

	// 3. CLI overrides win over everything.
	for _, set := range sets {
		key, value, _ := strings.Cut(set, "=")
		k.Set(key, value)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
