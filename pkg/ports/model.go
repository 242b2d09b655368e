package ports

import "context"

// ModelClient is the probabilistic model behind the classifier, the
// argument resolver and memory summarization. Implementations must honor
// the context deadline; callers attach their own short timeouts.
type ModelClient interface {
	// Complete sends a system instruction and a user prompt and returns
	// the raw model text.
	Complete(ctx context.Context, system, prompt string) (string, error)
}
