package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefault(t *testing.T) *Base {
	t.Helper()
	kb, err := Default()
	require.NoError(t, err)
	return kb
}

func TestDefaultKnowledgeBase(t *testing.T) {
	kb := mustDefault(t)

	assert.Equal(t, "cUSD", kb.Currency)
	assert.NotEmpty(t, kb.SystemContext)
	assert.NotEmpty(t, kb.Acknowledgement)
	require.Len(t, kb.Strategies, 3)
	assert.Equal(t, []string{"conservative", "balanced", "growth"},
		[]string{kb.Strategies[0].Key, kb.Strategies[1].Key, kb.Strategies[2].Key})

	for _, topic := range []string{"strategy", "security", "withdrawal", "deposit", "yield", "education", "greeting", DefaultFallbackKey} {
		assert.NotEmpty(t, kb.FallbackText(topic), topic)
	}
}

func TestExplainTermIgnoresCase(t *testing.T) {
	kb := mustDefault(t)

	want := kb.ExplainTerm("APY")
	assert.True(t, strings.HasPrefix(want, "**APY**: Annual Percentage Yield"))
	for _, term := range []string{"apy", "Apy", "aPY"} {
		assert.Equal(t, want, kb.ExplainTerm(term))
	}

	assert.Equal(t, kb.ExplainTerm("smart contract"), kb.ExplainTerm("Smart Contract"))
}

func TestExplainTermUnknown(t *testing.T) {
	kb := mustDefault(t)

	got := kb.ExplainTerm("rugpull")
	assert.Contains(t, got, "I don't have a specific definition for 'rugpull'")
}

func TestCompareStrategies(t *testing.T) {
	kb := mustDefault(t)

	got := kb.CompareStrategies()
	assert.True(t, strings.HasPrefix(got, "## Investment Strategy Comparison\n\n"))
	assert.Contains(t, got, "### Conservative Strategy\n- **APY Range**: 3-5%\n- **Risk Level**: Low\n")
	assert.Contains(t, got, "- **Best For**: Regular savers, Medium-term goals (6-12 months), Diversified portfolios\n")
	assert.Less(t, strings.Index(got, "Balanced Strategy"), strings.Index(got, "Growth Strategy"))
}

func TestStrategyLookupIsExact(t *testing.T) {
	kb := mustDefault(t)

	s, ok := kb.Strategy("growth")
	require.True(t, ok)
	assert.Equal(t, "10-15%", s.APYRange)
	assert.Equal(t, "Growth", s.Name())

	_, ok = kb.Strategy("Growth")
	assert.False(t, ok)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing context", "fallback:\n  default: hi\n", "system_context"},
		{"missing default", "system_context: x\n", "fallback.default"},
		{"duplicate strategy", "system_context: x\nfallback:\n  default: d\nstrategies:\n  - key: a\n  - key: a\n", "duplicate"},
		{"bad yaml", "system_context: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system_context: custom\nfallback:\n  default: menu\n"), 0o644))

	kb, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", kb.SystemContext)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
