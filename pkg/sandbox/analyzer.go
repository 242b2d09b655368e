package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
)

// Analyzer answers free-form analysis requests by running the fixed
// analysis template in the sandbox. A sanitization failure is retried once
// with the stricter template before surfacing.
type Analyzer struct {
	exec   *Executor
	logger *slog.Logger
}

// NewAnalyzer wraps an Executor.
func NewAnalyzer(exec *Executor, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{exec: exec, logger: logger}
}

// Analyze runs the request against the session's dataset.
func (a *Analyzer) Analyze(ctx context.Context, request string, data *domain.Dataset) ([]domain.Table, error) {
	if data == nil || data.Path == "" {
		return nil, fmt.Errorf("no dataset to analyze")
	}

	input := Input{DataPath: data.Path, Columns: data.Columns}
	out, err := a.exec.Execute(ctx, analysisScript(request, data.Columns), input)
	if errors.Is(err, domain.ErrInvalidOutput) {
		a.logger.Warn("analysis output rejected, retrying with strict template", "err", err)
		out, err = a.exec.Execute(ctx, strictScript(), input)
	}
	if err != nil {
		return nil, err
	}
	return out.Tables, nil
}
