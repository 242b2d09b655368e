package classifier

import (
	"strings"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// Fallback is the deterministic keyword path used when the model is
// disabled, unavailable, times out, or returns malformed output. It maps
// literal keywords to the most conservative matching action; the router
// still applies every gate, so a gated action can never execute from here.
func (c *Classifier) Fallback(text string, stage domain.Stage) domain.Decision {
	lower := strings.ToLower(text)

	decision := domain.Decision{
		Intent:       domain.IntentHelp,
		Confidence:   1,
		FallbackUsed: true,
	}

	switch {
	case containsAny(lower, "reset", "start over", "start again"):
		decision.Intent = domain.IntentReset
		return decision
	case containsAny(lower, "hello", "hi ", "hey", "thanks", "thank you"):
		decision.Intent = domain.IntentSmallTalk
		return decision
	case containsAny(lower, "help", "what can"):
		return decision
	}

	// Literal keyword match against the catalog, in catalog order so ties
	// resolve deterministically.
	for _, spec := range c.registry.All() {
		for _, kw := range spec.Keywords {
			if strings.Contains(lower, kw) {
				decision.RequestedTool = spec.ID
				decision.RequiredGates = []domain.Stage{spec.Precondition}
				if spec.Sandboxed {
					decision.Intent = domain.IntentAnalyze
				} else {
					decision.Intent = domain.IntentRunTool
				}
				return decision
			}
		}
	}

	return decision
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
