// Package knowledge holds the assistant's static knowledge: the platform
// description handed to the model, the strategy catalog, the glossary and the
// canned texts used when the model is unavailable. A Base is read-only once
// loaded and is shared by every request.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed knowledge.yaml
var defaultData []byte

// DefaultFallbackKey names the text used when no topic matches.
const DefaultFallbackKey = "default"

type Strategy struct {
	Key         string   `yaml:"key" json:"key"`
	APYRange    string   `yaml:"apy_range" json:"apy_range"`
	Risk        string   `yaml:"risk" json:"risk"`
	IdealFor    []string `yaml:"ideal_for" json:"best_for"`
	Description string   `yaml:"description" json:"description"`
}

// Name is the display form of the strategy key.
func (s Strategy) Name() string {
	return TitleCase(s.Key)
}

type Term struct {
	Term       string `yaml:"term"`
	Definition string `yaml:"definition"`
}

type Base struct {
	Currency        string            `yaml:"currency"`
	Acknowledgement string            `yaml:"acknowledgement"`
	SystemContext   string            `yaml:"system_context"`
	Strategies      []Strategy        `yaml:"strategies"`
	Glossary        []Term            `yaml:"glossary"`
	Fallback        map[string]string `yaml:"fallback"`
}

// Default returns the knowledge base compiled into the binary.
func Default() (*Base, error) {
	return Parse(defaultData)
}

// Load reads a YAML knowledge base from path, or the embedded one when path is empty.
func Load(path string) (*Base, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Base, error) {
	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Base) validate() error {
	if strings.TrimSpace(b.SystemContext) == "" {
		return errors.New("knowledge base: system_context is empty")
	}
	if strings.TrimSpace(b.Fallback[DefaultFallbackKey]) == "" {
		return errors.New("knowledge base: fallback.default is empty")
	}
	seen := make(map[string]bool, len(b.Strategies))
	for _, s := range b.Strategies {
		if s.Key == "" {
			return errors.New("knowledge base: strategy without key")
		}
		if seen[s.Key] {
			return fmt.Errorf("knowledge base: duplicate strategy %q", s.Key)
		}
		seen[s.Key] = true
	}
	return nil
}

// Strategy looks a strategy up by exact key.
func (b *Base) Strategy(key string) (Strategy, bool) {
	for _, s := range b.Strategies {
		if s.Key == key {
			return s, true
		}
	}
	return Strategy{}, false
}

// FallbackText returns the canned text for a topic, or "" when none is configured.
func (b *Base) FallbackText(topic string) string {
	return b.Fallback[topic]
}

// ExplainTerm looks term up in the glossary ignoring case.
func (b *Base) ExplainTerm(term string) string {
	for _, t := range b.Glossary {
		if strings.EqualFold(t.Term, term) {
			return fmt.Sprintf("**%s**: %s", t.Term, t.Definition)
		}
	}
	return fmt.Sprintf("I don't have a specific definition for '%s', but I can help explain it in context. What would you like to know about it?", term)
}

// CompareStrategies renders the whole strategy catalog as markdown.
func (b *Base) CompareStrategies() string {
	var sb strings.Builder
	sb.WriteString("## Investment Strategy Comparison\n\n")
	for _, s := range b.Strategies {
		fmt.Fprintf(&sb, "### %s Strategy\n", s.Name())
		fmt.Fprintf(&sb, "- **APY Range**: %s\n", s.APYRange)
		fmt.Fprintf(&sb, "- **Risk Level**: %s\n", s.Risk)
		fmt.Fprintf(&sb, "- **Best For**: %s\n", strings.Join(s.IdealFor, ", "))
		fmt.Fprintf(&sb, "- **Description**: %s\n\n", s.Description)
	}
	return sb.String()
}

// TitleCase upper-cases the first letter of each word.
func TitleCase(s string) string {
	return cases.Title(language.English).String(s)
}
