// Package observability emits the router's structured event stream as
// slog records and Prometheus metrics.
package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
)

// Sink implements ports.EventSink. It owns its own Prometheus registry so
// multiple instances never fight over global collectors.
type Sink struct {
	logger   *slog.Logger
	registry *prometheus.Registry

	decisions      *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	toolRuns       *prometheus.CounterVec
	routerLatency  prometheus.Histogram
	toolLatency    *prometheus.HistogramVec
	gateViolations prometheus.Counter
}

// NewSink creates a Sink. A nil logger discards log output.
func NewSink(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Sink{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_decisions_total",
			Help: "Routing decisions by intent.",
		}, []string{"intent"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_resolutions_total",
			Help: "Argument resolutions by match method.",
		}, []string{"matched_by"}),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "concierge_tool_runs_total",
			Help: "Tool and sandbox executions by tool and status.",
		}, []string{"tool", "status"}),
		routerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "concierge_router_latency_seconds",
			Help:    "End-to-end message handling latency.",
			Buckets: prometheus.DefBuckets,
		}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "concierge_tool_latency_seconds",
			Help:    "Tool and sandbox execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		gateViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "concierge_gate_violations_total",
			Help: "Requests blocked by an unmet stage precondition.",
		}),
	}
	s.registry.MustRegister(s.decisions, s.resolutions, s.toolRuns,
		s.routerLatency, s.toolLatency, s.gateViolations)
	return s
}

// Handler serves the metrics endpoint for this sink's registry.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Sink) RouterEvent(ctx context.Context, ev domain.RouterEvent) {
	s.decisions.WithLabelValues(string(ev.Intent)).Inc()
	s.routerLatency.Observe(float64(ev.LatencyMS) / 1000)
	s.logger.Info("router_event",
		"session", ev.SessionID,
		"intent", ev.Intent,
		"confidence", ev.Confidence,
		"action", ev.Action,
		"gates", ev.Gates,
		"latency_ms", ev.LatencyMS,
	)
}

func (s *Sink) ChoiceEvent(ctx context.Context, ev domain.ChoiceEvent) {
	if ev.MatchedBy != "" {
		s.resolutions.WithLabelValues(string(ev.MatchedBy)).Inc()
	}
	s.logger.Info("choice_event",
		"session", ev.SessionID,
		"tool", ev.Tool,
		"args", ev.Args,
		"confidence", ev.Confidence,
		"matched_by", ev.MatchedBy,
		"user_text", ev.UserText,
	)
}

func (s *Sink) ToolEvent(ctx context.Context, ev domain.ToolEvent) {
	s.toolRuns.WithLabelValues(ev.Tool, ev.Status).Inc()
	if ev.Status == "gate_blocked" {
		s.gateViolations.Inc()
	} else {
		s.toolLatency.WithLabelValues(ev.Tool).Observe(float64(ev.LatencyMS) / 1000)
	}
	s.logger.Info("tool_event",
		"session", ev.SessionID,
		"tool", ev.Tool,
		"status", ev.Status,
		"latency_ms", ev.LatencyMS,
		"errors", ev.Errors,
	)
}
