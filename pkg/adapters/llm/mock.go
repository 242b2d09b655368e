package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted ModelClient for tests and the offline chat mode. It
// returns its responses in order, repeating the last one when exhausted.
type Mock struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int

	// Prompts records every prompt received, for assertions.
	Prompts []string
}

// NewMock creates a Mock that cycles through the given responses.
func NewMock(responses ...string) *Mock {
	return &Mock{responses: responses}
}

// NewMockError creates a Mock that always fails.
func NewMockError(err error) *Mock {
	return &Mock{err: err}
}

func (m *Mock) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Prompts = append(m.Prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", fmt.Errorf("mock has no responses")
	}

	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	return m.responses[i], nil
}

// Calls returns how many completions were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
