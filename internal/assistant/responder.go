// Package assistant decides what the assistant says. Respond always produces
// a reply: from the model provider when it succeeds, otherwise from the
// keyword classifier.
package assistant

import (
	"context"
	"fmt"
	"yieldbot/internal/knowledge"
	"yieldbot/internal/llm"
	"yieldbot/internal/messagestore/models"

	"github.com/sirupsen/logrus"
)

type Reply struct {
	Text        string
	Origin      models.Origin
	Model       string
	ErrorDetail string
	Tokens      int
}

type Responder struct {
	kb         *knowledge.Base
	provider   llm.Provider
	classifier *Classifier
}

// NewResponder wires the orchestrator. A nil provider makes every reply a fallback.
func NewResponder(kb *knowledge.Base, provider llm.Provider, classifier *Classifier) *Responder {
	return &Responder{
		kb:         kb,
		provider:   provider,
		classifier: classifier,
	}
}

func (r *Responder) Respond(ctx context.Context, history []llm.Turn, uc *UserContext) (reply Reply) {
	defer func() {
		if p := recover(); p != nil {
			logrus.Errorf("Recovered from panic while generating reply: %v", p)
			reply = r.fallback(history, fmt.Sprintf("panic: %v", p))
		}
	}()

	if r.provider == nil {
		return r.fallback(history, "no model provider configured")
	}

	prompt := BuildPrompt(r.kb, uc)
	out := r.provider.Generate(ctx, history, prompt)
	if !out.OK() {
		logrus.WithFields(logrus.Fields{
			"provider": r.provider.Name(),
			"kind":     out.Failure.Kind,
		}).Warnf("Model provider failed, using fallback: %v", out.Failure)
		return r.fallback(history, out.Failure.Error())
	}

	return Reply{
		Text:   out.Text,
		Origin: models.OriginAPI,
		Model:  out.Model,
		Tokens: out.Tokens,
	}
}

func (r *Responder) fallback(history []llm.Turn, detail string) Reply {
	return Reply{
		Text:        r.classifier.Classify(lastUserText(history)),
		Origin:      models.OriginFallback,
		ErrorDetail: detail,
	}
}

func lastUserText(history []llm.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Text
		}
	}
	return ""
}

// Turns converts stored messages, oldest first, into provider turns.
func Turns(messages []models.Message) []llm.Turn {
	turns := make([]llm.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, llm.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}
