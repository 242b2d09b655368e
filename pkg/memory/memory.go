// Package memory maintains the bounded conversation window and rolling
// summary used as classifier and resolver context. The read path is
// synchronous and completes before classification; the write path completes
// before the response is returned, which orders it ahead of the session's
// next request.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/ports"
)

const (
	// DefaultWindow is the number of turns kept verbatim.
	DefaultWindow = 12
	// DefaultSummaryEvery recomputes the summary every k appended turns.
	DefaultSummaryEvery = 8

	summaryTimeout = 3 * time.Second
)

// Manager reads and writes the per-session memory record.
type Manager struct {
	store        ports.MemoryStore
	model        ports.ModelClient
	window       int
	summaryEvery int
	logger       *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithWindow sets the number of turns kept verbatim.
func WithWindow(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.window = n
		}
	}
}

// WithSummaryEvery sets the summary recomputation cadence.
func WithSummaryEvery(k int) Option {
	return func(m *Manager) {
		if k > 0 {
			m.summaryEvery = k
		}
	}
}

// WithModel enables model-backed summarization of the discarded tail.
func WithModel(model ports.ModelClient) Option {
	return func(m *Manager) {
		m.model = model
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a memory manager over the given store.
func NewManager(store ports.MemoryStore, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		window:       DefaultWindow,
		summaryEvery: DefaultSummaryEvery,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context returns the record used as classification context. Must complete
// before the message is classified.
func (m *Manager) Context(ctx context.Context, sessionID string) (*domain.MemoryRecord, error) {
	return m.store.LoadMemory(ctx, sessionID)
}

// Append records one user/assistant exchange, trims the window, and
// refreshes the summary when the cadence is due.
func (m *Manager) Append(ctx context.Context, sessionID, userText, replyText string) error {
	rec, err := m.store.LoadMemory(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load memory: %w", err)
	}

	now := time.Now().UTC()
	rec.Turns = append(rec.Turns,
		domain.Turn{Role: domain.RoleUser, Text: userText, At: now},
		domain.Turn{Role: domain.RoleAssistant, Text: replyText, At: now},
	)
	rec.TurnCount += 2

	if len(rec.Turns) > m.window {
		discarded := rec.Turns[:len(rec.Turns)-m.window]
		rec.Turns = append([]domain.Turn(nil), rec.Turns[len(rec.Turns)-m.window:]...)
		if rec.TurnCount%m.summaryEvery < 2 {
			rec.Summary = m.summarize(ctx, rec.Summary, discarded)
		}
	}

	return m.store.SaveMemory(ctx, sessionID, rec)
}

// Clear drops the session's memory.
func (m *Manager) Clear(ctx context.Context, sessionID string) error {
	return m.store.DeleteMemory(ctx, sessionID)
}

// summarize folds discarded turns into the rolling summary, via the model
// when one is configured and a plain fold otherwise.
func (m *Manager) summarize(ctx context.Context, prev string, discarded []domain.Turn) string {
	fold := foldTurns(prev, discarded)

	if m.model == nil {
		return fold
	}

	mctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	out, err := m.model.Complete(mctx,
		"Summarize the conversation so far in at most three sentences. Output only the summary.",
		fold)
	if err != nil || strings.TrimSpace(out) == "" {
		m.logger.Warn("memory summary model call failed, keeping plain fold", "err", err)
		return fold
	}
	return strings.TrimSpace(out)
}

const maxFoldLen = 800

func foldTurns(prev string, turns []domain.Turn) string {
	var b strings.Builder
	if prev != "" {
		b.WriteString(prev)
		b.WriteString(" ")
	}
	for _, t := range turns {
		text := t.Text
		if len(text) > 120 {
			text = text[:120]
		}
		fmt.Fprintf(&b, "[%s] %s ", t.Role, text)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > maxFoldLen {
		out = out[len(out)-maxFoldLen:]
	}
	return out
}
