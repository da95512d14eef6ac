package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"yieldbot/internal/knowledge"
	"yieldbot/internal/llm"
	"yieldbot/internal/messagestore/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	out    llm.Outcome
	panics bool
	calls  int
	turns  []llm.Turn
	prompt string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, turns []llm.Turn, prompt string) llm.Outcome {
	p.calls++
	p.turns = turns
	p.prompt = prompt
	if p.panics {
		panic("provider exploded")
	}
	return p.out
}

func testKB(t *testing.T) *knowledge.Base {
	t.Helper()
	kb, err := knowledge.Default()
	require.NoError(t, err)
	return kb
}

func testClassifier(t *testing.T, kb *knowledge.Base) *Classifier {
	t.Helper()
	c, err := NewClassifier(kb)
	require.NoError(t, err)
	return c
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBuildPromptWithoutContext(t *testing.T) {
	kb := testKB(t)
	assert.Equal(t, kb.SystemContext, BuildPrompt(kb, nil))
	assert.Equal(t, kb.SystemContext, BuildPrompt(kb, &UserContext{}))
}

func TestBuildPromptOnlyBalance(t *testing.T) {
	kb := testKB(t)

	got := BuildPrompt(kb, &UserContext{Balance: dec("42")})
	assert.True(t, strings.HasPrefix(got, kb.SystemContext))
	assert.Contains(t, got, "## Current User Information\n- Current Balance: 42 cUSD\n")
	assert.NotContains(t, got, "Total Deposited")
	assert.NotContains(t, got, "Total Earned")
	assert.NotContains(t, got, "new to the platform")
}

func TestBuildPromptFullContext(t *testing.T) {
	kb := testKB(t)

	got := BuildPrompt(kb, &UserContext{
		Balance:        dec("105.5"),
		TotalDeposited: dec("100"),
		TotalEarned:    dec("0"),
		Strategy:       "balanced",
		IsNewUser:      true,
	})
	want := kb.SystemContext + "\n\n## Current User Information\n" +
		"- Current Balance: 105.5 cUSD\n" +
		"- Total Deposited: 100 cUSD\n" +
		"- Total Earned: 0 cUSD\n" +
		"- Current Strategy: Balanced\n" +
		"- Expected APY: 5-10%\n" +
		"- Note: This user is new to the platform\n"
	assert.Equal(t, want, got)
}

func TestBuildPromptUnknownStrategyHasNoAPY(t *testing.T) {
	kb := testKB(t)

	got := BuildPrompt(kb, &UserContext{Strategy: "moonshot"})
	assert.Contains(t, got, "- Current Strategy: Moonshot\n")
	assert.NotContains(t, got, "Expected APY")
}

func TestUserContextToMap(t *testing.T) {
	m := (&UserContext{Balance: dec("1.25"), Strategy: "growth"}).ToMap()
	assert.Equal(t, map[string]interface{}{"balance": "1.25", "current_strategy": "growth", "is_new_user": false}, m)
	assert.Nil(t, (*UserContext)(nil).ToMap())
}

func TestClassifierTopics(t *testing.T) {
	c := testClassifier(t, testKB(t))

	tests := []struct {
		message string
		topic   string
	}{
		{"Which strategy is best, is it safe?", "strategy"},
		{"Is my money SAFE here?", "security"},
		{"How do I take out my funds", "withdrawal"},
		{"What's the minimum deposit?", "deposit"},
		{"What APY do you pay", "yield"},
		{"please explain DeFi", "education"},
		{"Hello", "greeting"},
		{"asdfqwerty", knowledge.DefaultFallbackKey},
		{"", knowledge.DefaultFallbackKey},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.topic, c.Topic(tt.message))
		})
	}
}

func TestClassifierFirstMatchWins(t *testing.T) {
	kb := testKB(t)
	c := testClassifier(t, kb)

	got := c.Classify("Which strategy is best, is it safe?")
	assert.Equal(t, kb.FallbackText("strategy"), got)
	assert.NotEqual(t, kb.FallbackText("security"), got)

	assert.Equal(t, kb.FallbackText(knowledge.DefaultFallbackKey), c.Classify("asdfqwerty"))
	assert.NotEmpty(t, c.Classify(""))
}

func TestNewClassifierRequiresAllTopics(t *testing.T) {
	kb, err := knowledge.Parse([]byte("system_context: x\nfallback:\n  default: d\n  strategy: s\n"))
	require.NoError(t, err)

	_, err = NewClassifier(kb)
	assert.Error(t, err)
}

func TestRespondProviderSuccess(t *testing.T) {
	kb := testKB(t)
	provider := &stubProvider{out: llm.Succeeded("Try Balanced.", "gemini-2.0", 40)}
	r := NewResponder(kb, provider, testClassifier(t, kb))

	history := []llm.Turn{{Role: models.RoleUser, Text: "which one?"}}
	reply := r.Respond(context.Background(), history, &UserContext{Balance: dec("42")})

	assert.Equal(t, Reply{Text: "Try Balanced.", Origin: models.OriginAPI, Model: "gemini-2.0", Tokens: 40}, reply)
	assert.Equal(t, history, provider.turns)
	assert.Contains(t, provider.prompt, "- Current Balance: 42 cUSD")
}

func TestRespondFallbackMatchesClassifier(t *testing.T) {
	kb := testKB(t)
	classifier := testClassifier(t, kb)

	failures := []llm.Outcome{
		llm.Failed(llm.FailureTransport, errors.New("connection refused")),
		llm.FailedStatus(500, "boom"),
		llm.Failed(llm.FailureMalformed, errors.New("bad json")),
		llm.Failed(llm.FailureEmptyCandidates, errors.New("none")),
	}
	history := []llm.Turn{
		{Role: models.RoleUser, Text: "hello"},
		{Role: models.RoleAssistant, Text: "hi there"},
		{Role: models.RoleUser, Text: "How do I withdraw?"},
	}

	for _, out := range failures {
		t.Run(string(out.Failure.Kind), func(t *testing.T) {
			r := NewResponder(kb, &stubProvider{out: out}, classifier)
			reply := r.Respond(context.Background(), history, nil)

			assert.Equal(t, models.OriginFallback, reply.Origin)
			assert.Equal(t, classifier.Classify("How do I withdraw?"), reply.Text)
			assert.Equal(t, out.Failure.Error(), reply.ErrorDetail)
			assert.Empty(t, reply.Model)
		})
	}
}

func TestRespondRecoversFromPanic(t *testing.T) {
	kb := testKB(t)
	r := NewResponder(kb, &stubProvider{panics: true}, testClassifier(t, kb))

	reply := r.Respond(context.Background(), []llm.Turn{{Role: models.RoleUser, Text: "is it a scam"}}, nil)
	assert.Equal(t, models.OriginFallback, reply.Origin)
	assert.Equal(t, kb.FallbackText("security"), reply.Text)
	assert.Contains(t, reply.ErrorDetail, "provider exploded")
}

func TestRespondWithoutProviderOrUserMessage(t *testing.T) {
	kb := testKB(t)
	r := NewResponder(kb, nil, testClassifier(t, kb))

	reply := r.Respond(context.Background(), []llm.Turn{{Role: models.RoleAssistant, Text: "greetings"}}, nil)
	assert.Equal(t, models.OriginFallback, reply.Origin)
	assert.Equal(t, kb.FallbackText(knowledge.DefaultFallbackKey), reply.Text)
}

func TestRespondAlwaysProducesText(t *testing.T) {
	kb := testKB(t)
	r := NewResponder(kb, &stubProvider{out: llm.FailedStatus(429, "")}, testClassifier(t, kb))

	for _, msg := range []string{"x", "what is apy", "hey", "🙂", "   "} {
		reply := r.Respond(context.Background(), []llm.Turn{{Role: models.RoleUser, Text: msg}}, nil)
		assert.NotEmpty(t, reply.Text, msg)
		assert.Contains(t, []models.Origin{models.OriginAPI, models.OriginFallback}, reply.Origin)
	}
}

func TestTurns(t *testing.T) {
	turns := Turns([]models.Message{
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	})
	assert.Equal(t, []llm.Turn{{Role: models.RoleUser, Text: "q"}, {Role: models.RoleAssistant, Text: "a"}}, turns)
}
