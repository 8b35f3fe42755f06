package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const characterMarkdownTemplate = `---
name: %s
bio:
  - A helpful assistant that answers plainly.
adjectives: [direct, curious]
topics: []
style:
  all:
    - Be concise.
    - Prefer concrete answers over hedging.
  chat:
    - Match the user's tone.
settings: {}
---

You are %s. Answer the user directly. When you do not know something,
say so instead of guessing.
`

const characterYAMLTemplate = `name: %s
bio:
  - A helpful assistant that answers plainly.
system: |
  You are %s. Answer the user directly. When you do not know something,
  say so instead of guessing.
adjectives: [direct, curious]
topics: []
style:
  all:
    - Be concise.
    - Prefer concrete answers over hedging.
  chat:
    - Match the user's tone.
settings: {}
`

func runInit(global globalFlags, args []string) {
	cmd := flag.NewFlagSet("init", flag.ContinueOnError)
	name := cmd.String("name", "", "Agent name (defaults to the file name)")
	force := cmd.Bool("force", false, "Overwrite an existing file")
	cmd.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: daimon init <path> [flags]

Scaffold a character definition file. The extension picks the format:
.md gets YAML frontmatter with the system prompt as body, anything
else is plain YAML.

Flags:`)
		cmd.PrintDefaults()
	}
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if cmd.NArg() < 1 {
		cmd.Usage()
		os.Exit(1)
	}

	path := cmd.Arg(0)
	agentName := strings.TrimSpace(*name)
	if agentName == "" {
		base := filepath.Base(path)
		agentName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	content, err := scaffoldCharacter(path, agentName)
	if err != nil {
		fatal(err)
	}

	if _, err := os.Stat(path); err == nil && !*force {
		fatal(fmt.Errorf("%s already exists (use -force to overwrite)", path))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fatal(err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fatal(err)
	}

	if global.JSON {
		printJSON(map[string]string{"path": path, "name": agentName})
		return
	}
	fmt.Printf("Created %s\n", path)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  daimon validate -character %s\n", path)
	fmt.Printf("  daimon run -character %s\n", path)
}

func scaffoldCharacter(path, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("agent name is empty")
	}
	if strings.ContainsAny(name, "\n\"'") {
		return "", fmt.Errorf("agent name %q has characters that would break the template", name)
	}
	if strings.EqualFold(filepath.Ext(path), ".md") {
		return fmt.Sprintf(characterMarkdownTemplate, name, name), nil
	}
	return fmt.Sprintf(characterYAMLTemplate, name, name), nil
}
