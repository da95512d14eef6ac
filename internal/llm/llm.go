// Package llm defines the contract between the response orchestrator and the
// hosted model backends. Providers never return errors: every call ends in an
// Outcome that is either a reply or a classified Failure.
package llm

import (
	"context"
	"fmt"
	"yieldbot/internal/messagestore/models"
)

// Turn is one prior message of a conversation, oldest first.
type Turn struct {
	Role models.Role
	Text string
}

type FailureKind string

const (
	FailureTransport       FailureKind = "transport"
	FailureStatus          FailureKind = "status"
	FailureMalformed       FailureKind = "malformed"
	FailureEmptyCandidates FailureKind = "empty_candidates"
)

type Failure struct {
	Kind       FailureKind
	StatusCode int
	Body       string
	Err        error
}

func (f *Failure) Error() string {
	switch {
	case f.Kind == FailureStatus:
		return fmt.Sprintf("provider returned status %d: %s", f.StatusCode, f.Body)
	case f.Err != nil:
		return fmt.Sprintf("provider %s failure: %v", f.Kind, f.Err)
	default:
		return fmt.Sprintf("provider %s failure", f.Kind)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Outcome is the result of one provider call. Exactly one of Text or Failure is set.
type Outcome struct {
	Text    string
	Model   string
	Tokens  int
	Failure *Failure
}

func (o Outcome) OK() bool {
	return o.Failure == nil
}

func Succeeded(text, model string, tokens int) Outcome {
	return Outcome{Text: text, Model: model, Tokens: tokens}
}

func Failed(kind FailureKind, err error) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Err: err}}
}

func FailedStatus(code int, body string) Outcome {
	return Outcome{Failure: &Failure{Kind: FailureStatus, StatusCode: code, Body: body}}
}

// Provider sends a conversation to a hosted model. Implementations must be
// safe for concurrent use and must bound every call with their own timeout.
type Provider interface {
	Generate(ctx context.Context, turns []Turn, systemPrompt string) Outcome
	Name() string
}
