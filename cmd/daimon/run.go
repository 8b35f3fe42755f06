package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/daimon-agents/daimon/pkg/character"
	"github.com/daimon-agents/daimon/pkg/config"
	"github.com/daimon-agents/daimon/pkg/core"
	"github.com/daimon-agents/daimon/pkg/memory"
	"github.com/daimon-agents/daimon/pkg/memory/qdrant"
	"github.com/daimon-agents/daimon/pkg/plugins/bootstrap"
	"github.com/daimon-agents/daimon/pkg/plugins/mcptools"
	"github.com/daimon-agents/daimon/pkg/plugins/ollama"
	"github.com/daimon-agents/daimon/pkg/runtime"
	"github.com/daimon-agents/daimon/pkg/telemetry"
)

func runRun(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	characterPath := cmd.String("character", "", "Character definition file (YAML or Markdown)")
	message := cmd.String("message", "", "Handle a single message and exit")
	watch := cmd.Bool("watch", false, "Watch the character file and hot-reload it")
	noTelemetry := cmd.Bool("no-telemetry", false, "Disable telemetry export")
	var providers multiFlag
	cmd.Var(&providers, "provider", "Restrict state composition to this provider (repeatable)")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	exporter := cfg.Telemetry.Exporter
	if *noTelemetry || exporter == "" {
		exporter = "none"
	}
	shutdown, err := telemetry.InitWithConfig("daimon", version, telemetry.Config{
		Exporter:           exporter,
		OTLPEndpoint:       cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:       cfg.Telemetry.OTLPInsecure,
		OTLPTimeoutSeconds: cfg.Telemetry.OTLPTimeoutSeconds,
	})
	if err != nil {
		fatal(fmt.Errorf("init telemetry: %w", err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry shutdown: %v\n", err)
		}
	}()

	path := strings.TrimSpace(*characterPath)
	if path == "" {
		path = cfg.Character.Path
	}
	char := character.Default()
	if path != "" {
		char, err = character.Load(path)
		if err != nil {
			fatal(err)
		}
	}

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer closeStore()

	plugins, err := buildPlugins(cfg)
	if err != nil {
		fatal(err)
	}

	rt, err := runtime.New(char,
		runtime.WithLogger(logger),
		runtime.WithStore(store),
		runtime.WithPlugins(plugins...),
		runtime.WithSettings(buildSettings(cfg)),
		runtime.WithTimeouts(timeoutsFromConfig(cfg.Runtime)),
		runtime.WithRequiredServices(cfg.Runtime.RequiredServices...),
	)
	if err != nil {
		fatal(fmt.Errorf("create runtime: %w", err))
	}

	if err := rt.Initialize(ctx); err != nil {
		fatal(fmt.Errorf("initialize runtime: %w", err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			fmt.Fprintf(os.Stderr, "runtime stop: %v\n", err)
		}
	}()

	if *watch && path != "" {
		go watchCharacter(ctx, rt, path, global.JSON)
	}

	if !global.JSON {
		fmt.Printf("Daimon agent: %s (%s)\n", char.Name, rt.AgentID())
		fmt.Printf("Model: %s (%s)\n", cfg.Model.Provider, cfg.Model.Model)
		fmt.Printf("Memory: %s\n", describeMemory(cfg.Memory))
		if cfg.MCP.Configured() {
			fmt.Printf("MCP: %s\n", describeMCP(cfg.MCP))
		}
		fmt.Println()
	}

	sess := &session{
		rt:        rt,
		entityID:  core.NewID(),
		roomID:    core.NewID(),
		providers: providers,
	}

	if *message != "" {
		runOnce(ctx, sess, *message, global.JSON)
		return
	}

	if isatty.IsTerminal(os.Stdin.Fd()) {
		runREPL(ctx, sess, global.JSON)
		return
	}
	runPipe(ctx, sess, global.JSON)
}

// session pins one conversation: a synthetic user entity and a room that
// all messages of this process share.
type session struct {
	rt        *runtime.Runtime
	entityID  core.ID
	roomID    core.ID
	providers []string
}

func (s *session) handle(ctx context.Context, text string) (*core.ActionOutcome, []core.Content, error) {
	msg := core.NewMemory(s.entityID, s.roomID, core.Content{Text: text, Source: "cli"})
	var delivered []core.Content
	opts := []runtime.HandleOption{
		runtime.WithCallback(func(ctx context.Context, content core.Content) error {
			delivered = append(delivered, content)
			return nil
		}),
	}
	if len(s.providers) > 0 {
		opts = append(opts, runtime.WithProviders(s.providers...))
	}
	outcome, err := s.rt.HandleMessage(ctx, msg, opts...)
	return outcome, delivered, err
}

type cycleResult struct {
	Input     string   `json:"input"`
	Outcome   string   `json:"outcome"`
	Actions   []string `json:"actions,omitempty"`
	Responses []string `json:"responses,omitempty"`
	Error     string   `json:"error,omitempty"`
}

func runOnce(ctx context.Context, sess *session, text string, jsonOutput bool) {
	outcome, delivered, err := sess.handle(ctx, text)
	if err != nil {
		if jsonOutput {
			printJSON(cycleResult{Input: text, Error: err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	printCycle(text, outcome, delivered, jsonOutput)
}

func runREPL(ctx context.Context, sess *session, jsonOutput bool) {
	if !jsonOutput {
		fmt.Println("Interactive mode. Type 'exit' or Ctrl+C to quit, /help for commands.")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if !jsonOutput {
			fmt.Print("\n> ")
		}

		select {
		case <-ctx.Done():
			if !jsonOutput {
				fmt.Println("\nGoodbye!")
			}
			return
		default:
		}

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		lower := strings.ToLower(input)
		if lower == "exit" || lower == "quit" {
			if !jsonOutput {
				fmt.Println("Goodbye!")
			}
			return
		}
		if strings.HasPrefix(input, "/") {
			handleCommand(ctx, sess, input, jsonOutput)
			continue
		}

		outcome, delivered, err := sess.handle(ctx, input)
		if err != nil {
			if jsonOutput {
				printJSON(cycleResult{Input: input, Error: err.Error()})
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}
		printCycle(input, outcome, delivered, jsonOutput)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
	}
}

func runPipe(ctx context.Context, sess *session, jsonOutput bool) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		outcome, delivered, err := sess.handle(ctx, input)
		if err != nil {
			if jsonOutput {
				printJSON(cycleResult{Input: input, Error: err.Error()})
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		}
		printCycle(input, outcome, delivered, jsonOutput)
	}
}

func printCycle(input string, outcome *core.ActionOutcome, delivered []core.Content, jsonOutput bool) {
	if jsonOutput {
		result := cycleResult{Input: input, Outcome: outcomeLabel(outcome)}
		for _, r := range outcome.Results {
			result.Actions = append(result.Actions, r.Action)
		}
		for _, c := range delivered {
			result.Responses = append(result.Responses, c.Text)
		}
		printJSON(result)
		return
	}

	printed := false
	for _, c := range delivered {
		if c.Text != "" {
			fmt.Printf("\n%s\n", c.Text)
			printed = true
		}
	}
	if !printed {
		fmt.Printf("\n(%s)\n", outcomeLabel(outcome))
	}
}

func outcomeLabel(outcome *core.ActionOutcome) string {
	switch {
	case outcome == nil:
		return "unknown"
	case outcome.Responded:
		return "responded"
	case outcome.NoAction:
		return "no_action"
	default:
		return "silent"
	}
}

func handleCommand(ctx context.Context, sess *session, input string, jsonOutput bool) {
	switch strings.ToLower(strings.Fields(input)[0]) {
	case "/help":
		if !jsonOutput {
			fmt.Println(`Commands:
  /help        Show this help
  /actions     List registered actions
  /providers   List registered providers
  /health      Show component health
  /character   Show the active character
  /exit        Exit`)
		}

	case "/actions":
		actions := sess.rt.Actions()
		if jsonOutput {
			names := make([]string, len(actions))
			for i, a := range actions {
				names[i] = a.Name
			}
			printJSON(map[string]any{"actions": names})
			return
		}
		w := newTabWriter()
		writeRow(w, "NAME", "DESCRIPTION")
		for _, a := range actions {
			writeRow(w, a.Name, truncateMessage(a.Description, 60))
		}
		w.Flush()

	case "/providers":
		provs := sess.rt.Providers()
		if jsonOutput {
			names := make([]string, len(provs))
			for i, p := range provs {
				names[i] = p.Name
			}
			printJSON(map[string]any{"providers": names})
			return
		}
		w := newTabWriter()
		writeRow(w, "NAME", "POSITION", "DYNAMIC", "DESCRIPTION")
		for _, p := range provs {
			writeRow(w, p.Name, strconv.Itoa(p.Position), strconv.FormatBool(p.Dynamic), truncateMessage(p.Description, 50))
		}
		w.Flush()

	case "/health":
		results := sess.rt.Health(ctx)
		if jsonOutput {
			type healthEntry struct {
				Component string `json:"component"`
				Status    string `json:"status"`
				Message   string `json:"message,omitempty"`
			}
			entries := make([]healthEntry, len(results))
			for i, r := range results {
				entries[i] = healthEntry{Component: r.Component, Status: string(r.Status), Message: r.Message}
			}
			printJSON(map[string]any{"health": entries})
			return
		}
		w := newTabWriter()
		writeRow(w, "COMPONENT", "STATUS", "MESSAGE")
		for _, r := range results {
			writeRow(w, r.Component, string(r.Status), r.Message)
		}
		w.Flush()

	case "/character":
		c := sess.rt.Character()
		if jsonOutput {
			printJSON(map[string]any{"name": c.Name, "bio": c.Bio})
			return
		}
		fmt.Printf("Name: %s\n", c.Name)
		for _, line := range c.Bio {
			fmt.Printf("  %s\n", line)
		}

	case "/exit", "/quit":
		if !jsonOutput {
			fmt.Println("Goodbye!")
		}
		os.Exit(0)

	default:
		if !jsonOutput {
			fmt.Printf("Unknown command %s (try /help)\n", input)
		}
	}
}

// watchCharacter polls the character file and swaps the persona in place
// when it changes. A file that fails to parse keeps the previous one.
func watchCharacter(ctx context.Context, rt *runtime.Runtime, path string, jsonOutput bool) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil || !info.ModTime().After(lastMod) {
			continue
		}
		lastMod = info.ModTime()

		char, err := character.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "character reload skipped: %v\n", err)
			continue
		}
		if err := rt.SetCharacter(char); err != nil {
			fmt.Fprintf(os.Stderr, "character reload failed: %v\n", err)
			continue
		}
		if !jsonOutput {
			fmt.Printf("\n[Character reloaded: %s]\n", char.Name)
		}
	}
}

// buildStore assembles the memory backend from config. The returned
// closer is safe to call once handling has stopped.
func buildStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	var base core.Store
	closers := []func(){}

	switch strings.ToLower(cfg.Memory.Provider) {
	case "", "inmemory":
		base = memory.NewInMemoryStore()
	case "sqlite":
		store, err := memory.OpenSQLite(cfg.Memory.Path)
		if err != nil {
			return nil, nil, err
		}
		base = store
		closers = append(closers, func() { _ = store.Close() })
	default:
		return nil, nil, fmt.Errorf("unknown memory provider %q (use inmemory or sqlite)", cfg.Memory.Provider)
	}

	if cfg.Memory.VectorEnabled {
		index, err := qdrant.New(cfg.Memory.QdrantAddr)
		if err != nil {
			runClosers(closers)
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		closers = append(closers, func() { _ = index.Close() })
		indexed, err := memory.NewIndexedStore(ctx, base, index, cfg.Memory.VectorCollection, uint64(cfg.Memory.VectorDimensions))
		if err != nil {
			runClosers(closers)
			return nil, nil, err
		}
		base = indexed
	}

	return base, func() { runClosers(closers) }, nil
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// buildPlugins picks the bundles the config asks for. Bootstrap always
// loads first so later plugins can shadow its defaults.
func buildPlugins(cfg *config.Config) ([]core.Plugin, error) {
	plugins := []core.Plugin{bootstrap.Plugin()}

	switch strings.ToLower(cfg.Model.Provider) {
	case "", "ollama":
		plugins = append(plugins, ollama.Plugin())
	case "none":
		// No model handlers; actions that call UseModel will fail
		// recoverably.
	default:
		return nil, fmt.Errorf("model provider %q is not built into this binary; use ollama or wire the providers/%s module into your own main", cfg.Model.Provider, strings.ToLower(cfg.Model.Provider))
	}

	if cfg.MCP.Configured() {
		plugins = append(plugins, mcptools.Plugin())
	}

	return plugins, nil
}

// buildSettings flattens config into the runtime settings map that
// plugins read through the toolkit. Explicit entries in cfg.Settings win.
func buildSettings(cfg *config.Config) map[string]string {
	settings := map[string]string{}
	put := func(key, value string) {
		if value != "" {
			settings[key] = value
		}
	}

	put(ollama.SettingBaseURL, cfg.Model.BaseURL)
	put(ollama.SettingLargeModel, cfg.Model.Model)
	put(ollama.SettingSmallModel, cfg.Model.SmallModel)
	put(ollama.SettingEmbedModel, cfg.Model.EmbedModel)

	put(mcptools.SettingTransport, cfg.MCP.Transport)
	put(mcptools.SettingCommand, cfg.MCP.Command)
	put(mcptools.SettingArgs, cfg.MCP.Args)
	put(mcptools.SettingURL, cfg.MCP.URL)
	put(mcptools.SettingCallTimeout, cfg.MCP.CallTimeout)

	if cfg.Memory.RetentionDays > 0 {
		settings[bootstrap.SettingRetentionDays] = strconv.Itoa(cfg.Memory.RetentionDays)
	}

	for key, value := range cfg.Settings {
		settings[key] = value
	}
	return settings
}

func timeoutsFromConfig(rc config.RuntimeConfig) runtime.Timeouts {
	secs := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return runtime.Timeouts{
		Provider:     secs(rc.ProviderTimeoutSeconds),
		Action:       secs(rc.ActionTimeoutSeconds),
		Evaluator:    secs(rc.EvaluatorTimeoutSeconds),
		Model:        secs(rc.ModelTimeoutSeconds),
		ServiceStart: secs(rc.ServiceStartTimeoutSeconds),
		ServiceStop:  secs(rc.ServiceStopTimeoutSeconds),
	}
}

func describeMemory(mc config.MemoryConfig) string {
	desc := strings.ToLower(mc.Provider)
	if desc == "" {
		desc = "inmemory"
	}
	if desc == "sqlite" {
		desc = fmt.Sprintf("sqlite (%s)", mc.Path)
	}
	if mc.VectorEnabled {
		desc += fmt.Sprintf(" + qdrant (%s)", mc.QdrantAddr)
	}
	return desc
}

func describeMCP(mc config.MCPConfig) string {
	if mc.URL != "" {
		return mc.URL
	}
	return fmt.Sprintf("stdio: %s", mc.Command)
}
