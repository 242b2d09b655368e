package ports

import (
	"context"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// EventSink receives the three structured observability event kinds.
// Emission is best-effort; a sink must never fail a request.
type EventSink interface {
	RouterEvent(ctx context.Context, ev domain.RouterEvent)
	ChoiceEvent(ctx context.Context, ev domain.ChoiceEvent)
	ToolEvent(ctx context.Context, ev domain.ToolEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RouterEvent(context.Context, domain.RouterEvent) {}
func (NopSink) ChoiceEvent(context.Context, domain.ChoiceEvent) {}
func (NopSink) ToolEvent(context.Context, domain.ToolEvent)     {}
