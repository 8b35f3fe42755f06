// Package character loads agent persona definitions from disk. A character
// file is either plain YAML or a Markdown file whose YAML frontmatter holds
// the structured fields and whose body becomes the system prompt.
package character

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daimon-agents/daimon/pkg/core"
)

// Default returns the stock persona used when no character file is given.
func Default() core.Character {
	return core.Character{
		Name: "daimon",
		Bio:  []string{"A helpful agent runtime."},
		Style: core.Style{
			All: []string{"Be concise.", "Be direct."},
		},
	}
}

// Load parses a character definition file. The format follows the
// extension: .md files carry frontmatter, anything else is plain YAML.
func Load(path string) (core.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Character{}, err
	}

	var c core.Character
	if strings.EqualFold(filepath.Ext(path), ".md") {
		c, err = parseMarkdown(string(data))
	} else {
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return core.Character{}, fmt.Errorf("character %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return core.Character{}, fmt.Errorf("character %s: %w", path, err)
	}
	return c, nil
}

// LoadDir loads every character file directly under root, sorted by file
// name. Files with other extensions are ignored.
func LoadDir(root string) ([]core.Character, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []core.Character
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".md", ".yaml", ".yml":
		default:
			continue
		}
		c, err := Load(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseMarkdown(content string) (core.Character, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return core.Character{}, err
	}
	var c core.Character
	if err := yaml.Unmarshal([]byte(fm), &c); err != nil {
		return core.Character{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	// The body is the system prompt; it wins over a frontmatter system key.
	if body != "" {
		c.System = body
	}
	return c, nil
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", errors.New("invalid frontmatter")
	}
	fm := strings.TrimSpace(parts[1])
	body := strings.TrimSpace(parts[2])
	return fm, body, nil
}
