package ports

import (
	"context"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// StateStore persists WorkflowState as the single source of truth for a
// session, reachable from every worker process. All mutation goes through
// the compare-and-swap in Save; no caller may read-modify-write without the
// version check.
type StateStore interface {
	// Load retrieves the state for a session.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.WorkflowState, error)

	// Save persists state only if the stored version still equals
	// expectedVersion (0 means "must not exist yet"). On success the
	// stored and in-memory Version become expectedVersion+1. Returns
	// domain.ErrVersionConflict otherwise; the caller must re-read and
	// recompute its transition, never overwrite blindly.
	Save(ctx context.Context, sessionID string, state *domain.WorkflowState, expectedVersion int64) error

	// Delete removes the session's state.
	Delete(ctx context.Context, sessionID string) error

	// List returns the known session IDs.
	List(ctx context.Context) ([]string, error)
}

// MemoryStore persists the bounded conversation memory record. Like the
// state store it must be reachable from every worker; the record is
// overwritten in place to bound its size.
type MemoryStore interface {
	// LoadMemory returns the record, or an empty one for a new session.
	LoadMemory(ctx context.Context, sessionID string) (*domain.MemoryRecord, error)

	// SaveMemory overwrites the record.
	SaveMemory(ctx context.Context, sessionID string, rec *domain.MemoryRecord) error

	// DeleteMemory removes the record.
	DeleteMemory(ctx context.Context, sessionID string) error
}
