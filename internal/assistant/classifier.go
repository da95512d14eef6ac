package assistant

import (
	"fmt"
	"strings"
	"yieldbot/internal/knowledge"
)

type topic struct {
	key      string
	keywords []string
}

// Evaluated in order; the first topic with a keyword contained in the message wins.
var topics = []topic{
	{"strategy", []string{"strategy", "conservative", "balanced", "growth", "which"}},
	{"security", []string{"safe", "secure", "hack", "scam", "trust"}},
	{"withdrawal", []string{"withdraw", "take out", "remove", "access"}},
	{"deposit", []string{"deposit", "add", "invest", "start", "minimum"}},
	{"yield", []string{"apy", "yield", "earn", "return", "interest"}},
	{"education", []string{"what is", "explain", "how does", "understand"}},
	{"greeting", []string{"hello", "hi", "hey", "help", "start"}},
}

// Classifier picks a canned reply for a message when the model is unavailable.
type Classifier struct {
	texts       map[string]string
	defaultText string
}

func NewClassifier(kb *knowledge.Base) (*Classifier, error) {
	texts := make(map[string]string, len(topics))
	for _, t := range topics {
		text := kb.FallbackText(t.key)
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("knowledge base has no fallback text for %q", t.key)
		}
		texts[t.key] = text
	}
	return &Classifier{
		texts:       texts,
		defaultText: kb.FallbackText(knowledge.DefaultFallbackKey),
	}, nil
}

// Topic returns the matched topic key, or knowledge.DefaultFallbackKey.
func (c *Classifier) Topic(message string) string {
	lower := strings.ToLower(message)
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.key
			}
		}
	}
	return knowledge.DefaultFallbackKey
}

func (c *Classifier) Classify(message string) string {
	if text, ok := c.texts[c.Topic(message)]; ok {
		return text
	}
	return c.defaultText
}
