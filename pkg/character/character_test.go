package character

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMarkdown(t *testing.T) {
	path := writeFile(t, t.TempDir(), "ada.md", `---
name: ada
bio:
  - Research assistant with a numerical bent
adjectives: [precise, curious]
topics:
  - mathematics
  - computing history
style:
  all:
    - Be concise.
  chat:
    - Ask clarifying questions.
settings:
  MODEL_PROVIDER: ollama
---
You are Ada, a research assistant. Cite sources when you can.`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "ada" {
		t.Errorf("Name = %q, want ada", c.Name)
	}
	if len(c.Bio) != 1 || !strings.Contains(c.Bio[0], "numerical") {
		t.Errorf("Bio = %v", c.Bio)
	}
	if len(c.Adjectives) != 2 || c.Adjectives[0] != "precise" {
		t.Errorf("Adjectives = %v", c.Adjectives)
	}
	if len(c.Topics) != 2 {
		t.Errorf("Topics = %v", c.Topics)
	}
	if len(c.Style.All) != 1 || len(c.Style.Chat) != 1 {
		t.Errorf("Style = %+v", c.Style)
	}
	if got := c.Setting("MODEL_PROVIDER"); got != "ollama" {
		t.Errorf("Setting(MODEL_PROVIDER) = %q", got)
	}
	if !strings.HasPrefix(c.System, "You are Ada") {
		t.Errorf("System = %q, want body as system prompt", c.System)
	}
}

func TestLoadMarkdownBodyOverridesSystemKey(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.md", `---
name: twin
system: from frontmatter
---
from body`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.System != "from body" {
		t.Errorf("System = %q, want body to win", c.System)
	}
}

func TestLoadMarkdownFrontmatterOnlySystem(t *testing.T) {
	path := writeFile(t, t.TempDir(), "c.md", `---
name: quiet
system: stay in frontmatter
---
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.System != "stay in frontmatter" {
		t.Errorf("System = %q", c.System)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bot.yaml", `name: bot
bio:
  - First line
  - Second line
settings:
  LANG: en
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "bot" || len(c.Bio) != 2 {
		t.Errorf("character = %+v", c)
	}
	if c.Setting("LANG") != "en" {
		t.Errorf("Setting(LANG) = %q", c.Setting("LANG"))
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"missing frontmatter", "plain.md", "no delimiters here"},
		{"unterminated frontmatter", "open.md", "---\nname: x\n"},
		{"bad yaml", "bad.yaml", "name: [unclosed"},
		{"missing name", "anon.md", "---\nbio: [someone]\n---\nbody"},
		{"empty name", "blank.yaml", "name: \"  \"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.md")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "---\nname: alpha\n---\nAlpha prompt")
	writeFile(t, dir, "b.yaml", "name: beta\n")
	writeFile(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	chars, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(chars) != 2 {
		t.Fatalf("len = %d, want 2", len(chars))
	}
	if chars[0].Name != "alpha" || chars[1].Name != "beta" {
		t.Errorf("names = %q, %q", chars[0].Name, chars[1].Name)
	}
}

func TestLoadDirPropagatesError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.md", "no frontmatter")
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Name != "daimon" {
		t.Errorf("Name = %q", c.Name)
	}
}
