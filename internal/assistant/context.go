package assistant

import (
	"fmt"
	"strings"
	"yieldbot/internal/knowledge"

	"github.com/shopspring/decimal"
)

// UserContext is a per-request snapshot of the caller's account. Nil amounts
// and an empty Strategy are not rendered.
type UserContext struct {
	Balance        *decimal.Decimal
	TotalDeposited *decimal.Decimal
	TotalEarned    *decimal.Decimal
	Strategy       string
	IsNewUser      bool
}

// NewUserContext is the context used for callers without account data.
func NewUserContext() *UserContext {
	return &UserContext{IsNewUser: true}
}

// ToMap is the form stored on the session.
func (uc *UserContext) ToMap() map[string]interface{} {
	if uc == nil {
		return nil
	}
	m := map[string]interface{}{"is_new_user": uc.IsNewUser}
	if uc.Balance != nil {
		m["balance"] = uc.Balance.String()
	}
	if uc.TotalDeposited != nil {
		m["total_deposited"] = uc.TotalDeposited.String()
	}
	if uc.TotalEarned != nil {
		m["total_earned"] = uc.TotalEarned.String()
	}
	if uc.Strategy != "" {
		m["current_strategy"] = uc.Strategy
	}
	return m
}

// BuildPrompt returns the knowledge base context, followed by a
// "Current User Information" block when uc has anything to show.
func BuildPrompt(kb *knowledge.Base, uc *UserContext) string {
	if uc == nil {
		return kb.SystemContext
	}

	var lines []string
	amount := func(label string, v *decimal.Decimal) {
		if v != nil {
			lines = append(lines, fmt.Sprintf("- %s: %s %s", label, v.String(), kb.Currency))
		}
	}
	amount("Current Balance", uc.Balance)
	amount("Total Deposited", uc.TotalDeposited)
	amount("Total Earned", uc.TotalEarned)

	if uc.Strategy != "" {
		lines = append(lines, "- Current Strategy: "+knowledge.TitleCase(uc.Strategy))
		if s, ok := kb.Strategy(uc.Strategy); ok {
			lines = append(lines, "- Expected APY: "+s.APYRange)
		}
	}
	if uc.IsNewUser {
		lines = append(lines, "- Note: This user is new to the platform")
	}

	if len(lines) == 0 {
		return kb.SystemContext
	}
	return kb.SystemContext + "\n\n## Current User Information\n" + strings.Join(lines, "\n") + "\n"
}
