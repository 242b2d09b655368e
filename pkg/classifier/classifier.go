// Package classifier turns a raw user message into a structured routing
// decision. The model-backed path is inherently non-deterministic; its
// output is advisory only, and every failure mode collapses into a single
// deterministic keyword fallback. What is done with the decision is decided
// entirely by the router.
package classifier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/registry"
)

// DefaultTimeout bounds the model call; on expiry the keyword fallback
// answers instead of hanging the request.
const DefaultTimeout = 4 * time.Second

// ModelClient is the subset of the model port the classifier needs.
type ModelClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Classifier produces routing decisions.
type Classifier struct {
	model    ModelClient
	registry *registry.Registry
	timeout  time.Duration
	disabled bool
	logger   *slog.Logger
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithTimeout bounds the model call.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDisabled forces the deterministic fallback for every message.
// This is the operational safety valve.
func WithDisabled(disabled bool) Option {
	return func(c *Classifier) {
		c.disabled = disabled
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// New creates a classifier. A nil model is equivalent to WithDisabled(true).
func New(model ModelClient, reg *registry.Registry, opts ...Option) *Classifier {
	c := &Classifier{
		model:    model,
		registry: reg,
		timeout:  DefaultTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// decisionPayload is the strict JSON contract expected from the model.
type decisionPayload struct {
	Intent          string            `mapstructure:"intent"`
	RequestedAction string            `mapstructure:"requested_action"`
	Entities        map[string]string `mapstructure:"entities"`
	Confidence      float64           `mapstructure:"confidence"`
	RequiredGates   []string          `mapstructure:"required_gates"`
}

// Classify returns a decision for the message. It never returns an error:
// classifier failure is absorbed into the fallback decision.
func (c *Classifier) Classify(ctx context.Context, text string, mem *domain.MemoryRecord, stage domain.Stage) domain.Decision {
	if c.disabled || c.model == nil {
		return c.Fallback(text, stage)
	}

	mctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.model.Complete(mctx, systemPrompt, c.buildPrompt(text, mem, stage))
	if err != nil {
		c.logger.Warn("classifier model call failed, using keyword fallback", "err", err)
		return c.Fallback(text, stage)
	}

	decision, err := c.parse(raw)
	if err != nil {
		c.logger.Warn("classifier returned malformed output, using keyword fallback", "err", err)
		return c.Fallback(text, stage)
	}
	return decision
}

func (c *Classifier) parse(raw string) (domain.Decision, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(stripFences(raw)), &generic); err != nil {
		return domain.Decision{}, domain.ErrClassification
	}

	var payload decisionPayload
	if err := mapstructure.WeakDecode(generic, &payload); err != nil {
		return domain.Decision{}, domain.ErrClassification
	}

	intent := domain.Intent(payload.Intent)
	switch intent {
	case domain.IntentRunTool, domain.IntentAnalyze, domain.IntentClarifyAnswer,
		domain.IntentHelp, domain.IntentSmallTalk, domain.IntentReset:
	default:
		return domain.Decision{}, domain.ErrClassification
	}

	if intent == domain.IntentRunTool || intent == domain.IntentAnalyze {
		if _, ok := c.registry.Get(payload.RequestedAction); !ok {
			return domain.Decision{}, domain.ErrClassification
		}
	}

	var gates []domain.Stage
	for _, g := range payload.RequiredGates {
		stage := domain.Stage(g)
		if stage.Known() {
			gates = append(gates, stage)
		}
	}

	return domain.Decision{
		Intent:        intent,
		RequestedTool: payload.RequestedAction,
		Entities:      payload.Entities,
		Confidence:    clamp01(payload.Confidence),
		RequiredGates: gates,
	}, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// stripFences removes a surrounding markdown code fence, which models add
// even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
