package tokenbudget

import (
	"context"

	mw "lmbridge/internal/middleware"
)

func init() {
	mw.Register(BudgetLimiter{})
}

// BudgetLimiter caps the "maxTokens" request option at the budget found in
// Event.Context["token_budget"] (int). The smaller of the two wins.
type BudgetLimiter struct{}

func (BudgetLimiter) ID() string    { return "token_budget" }
func (BudgetLimiter) Priority() int { return 90 }

// ShouldLoad is true only for requests that carry a positive budget.
func (BudgetLimiter) ShouldLoad(_ context.Context, e *mw.Event) bool {
	if e == nil || e.Name != mw.EventBeforeLLMRequest {
		return false
	}
	budget, ok := e.Context["token_budget"].(int)
	return ok && budget > 0
}

func (BudgetLimiter) OnEvent(_ context.Context, e *mw.Event) (mw.Decision, error) {
	if e == nil || e.Name != mw.EventBeforeLLMRequest {
		return mw.Decision{}, nil
	}
	budget, ok := e.Context["token_budget"].(int)
	if !ok || budget <= 0 {
		return mw.Decision{}, nil
	}

	if cur := e.Options.MaxTokens(); cur == 0 || cur > budget {
		opts := e.Options.Clone()
		opts["maxTokens"] = budget
		return mw.Decision{
			OverrideOptions: opts,
			Reason:          "token_budget: capped maxTokens",
		}, nil
	}
	return mw.Decision{}, nil
}
