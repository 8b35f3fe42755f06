package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daimon-agents/daimon/pkg/character"
)

func TestScaffoldCharacterMarkdown(t *testing.T) {
	content, err := scaffoldCharacter("scout.md", "scout")
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if !strings.HasPrefix(content, "---\n") {
		t.Error("markdown scaffold should start with frontmatter")
	}

	path := filepath.Join(t.TempDir(), "scout.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := character.Load(path)
	if err != nil {
		t.Fatalf("scaffolded markdown should load: %v", err)
	}
	if c.Name != "scout" {
		t.Errorf("name = %q, want scout", c.Name)
	}
	if c.System == "" {
		t.Error("markdown body should become the system prompt")
	}
}

func TestScaffoldCharacterYAML(t *testing.T) {
	content, err := scaffoldCharacter("helper.yaml", "helper")
	if err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	if strings.HasPrefix(content, "---") {
		t.Error("yaml scaffold should not carry frontmatter fences")
	}

	path := filepath.Join(t.TempDir(), "helper.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := character.Load(path)
	if err != nil {
		t.Fatalf("scaffolded yaml should load: %v", err)
	}
	if c.Name != "helper" {
		t.Errorf("name = %q, want helper", c.Name)
	}
	if len(c.Style.All) == 0 {
		t.Error("scaffold should include style guidance")
	}
}

func TestScaffoldCharacterRejectsBadNames(t *testing.T) {
	if _, err := scaffoldCharacter("x.yaml", ""); err == nil {
		t.Error("empty name should fail")
	}
	if _, err := scaffoldCharacter("x.yaml", "a\"b"); err == nil {
		t.Error("quoted name should fail")
	}
	if _, err := scaffoldCharacter("x.yaml", "a\nb"); err == nil {
		t.Error("multi-line name should fail")
	}
}
