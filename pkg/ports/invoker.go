package ports

import (
	"context"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// ToolInvoker executes catalog actions. Tools must be idempotent-safe to
// retry and must not mutate workflow stage; only the router advances the
// stage, based on the tool's declared on-success transition.
type ToolInvoker interface {
	Invoke(ctx context.Context, call domain.ToolCall, data *domain.Dataset) (domain.ToolResult, error)
}

// DataLoader resolves the session's tabular data. Precedence: the most
// recently derived dataset wins, with an explicit fallback to the original
// upload when no derived dataset exists yet.
type DataLoader interface {
	// Load returns the active dataset for the session, or
	// domain.ErrSessionNotFound when nothing has been uploaded.
	Load(ctx context.Context, sessionID string) (*domain.Dataset, error)

	// Put stores the original upload for the session.
	Put(ctx context.Context, sessionID string, columns []string, rows [][]string) (*domain.Dataset, error)

	// SaveDerived stores a derived dataset, which becomes the active one.
	SaveDerived(ctx context.Context, sessionID, name string, columns []string, rows [][]string) (*domain.Dataset, error)

	// Delete removes all datasets for the session.
	Delete(ctx context.Context, sessionID string) error
}
