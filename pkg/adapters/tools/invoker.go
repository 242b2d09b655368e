// Package tools implements the ToolInvoker port with a strict registry of
// named implementations plus the built-in reference tools for the guided
// analysis workflow.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
)

// Func is one tool implementation. It receives validated arguments and the
// session's active dataset; it must not mutate workflow stage.
type Func func(ctx context.Context, call domain.ToolCall, data *domain.Dataset) (domain.ToolResult, error)

// Invoker dispatches calls to registered implementations. Unknown tools
// resolve to an error result, not a panic or a crash.
type Invoker struct {
	mu     sync.RWMutex
	funcs  map[string]Func
	logger *slog.Logger
}

// NewInvoker creates an empty Invoker.
func NewInvoker(logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Invoker{
		funcs:  make(map[string]Func),
		logger: logger,
	}
}

// Register adds an implementation, overwriting any previous one.
func (i *Invoker) Register(name string, fn Func) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.funcs[name] = fn
}

// Invoke dispatches the call.
func (i *Invoker) Invoke(ctx context.Context, call domain.ToolCall, data *domain.Dataset) (domain.ToolResult, error) {
	i.mu.RLock()
	fn, ok := i.funcs[call.Tool]
	i.mu.RUnlock()

	if !ok {
		return domain.ToolResult{
			ID:      call.ID,
			IsError: true,
			Error:   fmt.Sprintf("tool not registered: %s", call.Tool),
		}, nil
	}

	result, err := fn(ctx, call, data)
	if err != nil {
		i.logger.Error("tool failed", "tool", call.Tool, "error", err)
		return domain.ToolResult{ID: call.ID, IsError: true, Error: err.Error()}, nil
	}
	result.ID = call.ID
	return result, nil
}
