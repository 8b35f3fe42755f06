// Package core defines the shared vocabulary of the Daimon runtime: agent
// identity, memories, composed state, capability definitions, plugins, and
// the toolkit handle capabilities use to reach back into the runtime.
package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID identifies agents, entities, rooms, memories, and processing cycles.
type ID = uuid.UUID

// ZeroID is the absent id.
var ZeroID = uuid.Nil

// NewID returns a fresh random id.
func NewID() ID {
	return uuid.New()
}

// ParseID parses the textual form of an id.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}

// DeriveID maps a name deterministically to an id, so the same character
// keeps its identity across restarts.
func DeriveID(name string) ID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

// Style groups the tone directives a character applies to its output.
type Style struct {
	All  []string `yaml:"all,omitempty" json:"all,omitempty"`
	Chat []string `yaml:"chat,omitempty" json:"chat,omitempty"`
}

// Character is the agent's persona configuration. A runtime holds exactly
// one Character; it is shared-read and replaceable only as a whole.
type Character struct {
	Name       string            `yaml:"name" json:"name"`
	Bio        []string          `yaml:"bio,omitempty" json:"bio,omitempty"`
	System     string            `yaml:"system,omitempty" json:"system,omitempty"`
	Adjectives []string          `yaml:"adjectives,omitempty" json:"adjectives,omitempty"`
	Topics     []string          `yaml:"topics,omitempty" json:"topics,omitempty"`
	Style      Style             `yaml:"style,omitempty" json:"style,omitempty"`
	Settings   map[string]string `yaml:"settings,omitempty" json:"settings,omitempty"`
}

// Validate reports whether the character is usable by a runtime.
func (c Character) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("character: name is required")
	}
	return nil
}

// Setting returns a character-scoped setting value, or "" when unset.
func (c Character) Setting(name string) string {
	if c.Settings == nil {
		return ""
	}
	return c.Settings[name]
}

// Clone returns a deep copy so a replacement cannot alias the old value.
func (c Character) Clone() Character {
	out := c
	out.Bio = append([]string(nil), c.Bio...)
	out.Adjectives = append([]string(nil), c.Adjectives...)
	out.Topics = append([]string(nil), c.Topics...)
	out.Style.All = append([]string(nil), c.Style.All...)
	out.Style.Chat = append([]string(nil), c.Style.Chat...)
	if c.Settings != nil {
		out.Settings = make(map[string]string, len(c.Settings))
		for k, v := range c.Settings {
			out.Settings[k] = v
		}
	}
	return out
}
