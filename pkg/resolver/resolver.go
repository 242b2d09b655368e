// Package resolver turns free text into schema-valid tool arguments, or a
// single bounded clarification question. The model path is primary; the
// deterministic ordinal/pattern/fuzzy fallbacks run only when the model is
// unavailable or returns invalid JSON, and never override a model result
// that already validated.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/registry"
	"github.com/atelierlabs/concierge/pkg/schema"
)

// Default confidence thresholds. Operational tuning parameters, not fixed
// contracts.
const (
	DefaultAcceptThreshold  = 0.7
	DefaultClarifyThreshold = 0.4
	DefaultTimeout          = 4 * time.Second
)

// maxAttempts bounds consecutive failures on the same slot before the
// resolver gives up and asks for a plain rephrase.
const maxAttempts = 2

// ModelClient is the subset of the model port the resolver needs.
type ModelClient interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Resolver fills tool arguments from free text.
type Resolver struct {
	model   ModelClient
	timeout time.Duration
	accept  float64
	clarify float64
	logger  *slog.Logger
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithThresholds overrides the accept/clarify confidence cut-offs.
func WithThresholds(accept, clarify float64) Option {
	return func(r *Resolver) {
		r.accept = accept
		r.clarify = clarify
	}
}

// WithTimeout bounds the model call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a resolver. A nil model routes everything through the
// deterministic fallbacks.
func New(model ModelClient, opts ...Option) *Resolver {
	r := &Resolver{
		model:   model,
		timeout: DefaultTimeout,
		accept:  DefaultAcceptThreshold,
		clarify: DefaultClarifyThreshold,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Request carries everything one resolution needs.
type Request struct {
	Tool     registry.ToolSpec
	UserText string
	// Columns are the active dataset's column names, used to ground
	// column-valued arguments.
	Columns []string
	Memory  *domain.MemoryRecord
	// Pending, when set, means UserText answers this outstanding
	// clarification instead of opening a new resolution.
	Pending *domain.Clarification
}

// Outcome is the resolver's result: exactly one of Resolution,
// Clarification or Rephrase is set.
type Outcome struct {
	Resolution    *domain.Resolution
	Clarification *domain.Clarification
	Rephrase      bool
}

// Resolve produces validated arguments for the request's tool.
func (r *Resolver) Resolve(ctx context.Context, req Request) Outcome {
	if req.Pending != nil {
		return r.resolveAnswer(req)
	}

	if !req.Tool.HasArgs() {
		return Outcome{Resolution: &domain.Resolution{
			ToolID:     req.Tool.ID,
			Args:       map[string]any{},
			Confidence: 1,
			MatchedBy:  domain.MatchPattern,
		}}
	}

	if r.model != nil {
		outcome, ok := r.resolveModel(ctx, req)
		if ok {
			return outcome
		}
		// Model unavailable or invalid JSON: fall through to the
		// deterministic safety net.
	}

	return r.resolveFallback(req, nil)
}

// extractionPayload is the strict JSON contract expected from the model.
type extractionPayload struct {
	Args       map[string]any `mapstructure:"args"`
	Confidence float64        `mapstructure:"confidence"`
}

// resolveModel runs the structured-extraction path. The second return is
// false only when the model could not produce parseable JSON at all, which
// is the one condition that admits the deterministic fallbacks.
func (r *Resolver) resolveModel(ctx context.Context, req Request) (Outcome, bool) {
	mctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.model.Complete(mctx, extractionSystemPrompt, buildExtractionPrompt(req))
	if err != nil {
		r.logger.Warn("resolver model call failed", "tool", req.Tool.ID, "err", err)
		return Outcome{}, false
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(stripFences(raw)), &generic); err != nil {
		r.logger.Warn("resolver model returned invalid JSON", "tool", req.Tool.ID)
		return Outcome{}, false
	}
	var payload extractionPayload
	if err := mapstructure.Decode(generic, &payload); err != nil {
		return Outcome{}, false
	}

	conf := clamp01(payload.Confidence)
	switch {
	case conf < r.clarify:
		return Outcome{Rephrase: true}, true
	case conf < r.accept:
		return Outcome{Clarification: r.clarificationFor(req, payload.Args)}, true
	}

	args := canonicalizeEnums(req.Tool.Args, payload.Args)
	args = req.Tool.Args.ApplyDefaults(args)
	if err := req.Tool.Args.Validate(args); err != nil {
		// A failing result is discarded whole, never partially applied.
		r.logger.Warn("resolver model result failed schema validation",
			"tool", req.Tool.ID, "err", err)
		return Outcome{Clarification: r.clarificationFor(req, payload.Args)}, true
	}

	return Outcome{Resolution: &domain.Resolution{
		ToolID:     req.Tool.ID,
		Args:       args,
		Confidence: conf,
		MatchedBy:  domain.MatchModel,
	}}, true
}

// resolveAnswer matches a one-turn disambiguation answer against the
// stored pending clarification.
func (r *Resolver) resolveAnswer(req Request) Outcome {
	pending := req.Pending
	value, method := r.answerValue(req, pending)
	if value == nil {
		return r.retryOrRephrase(req)
	}

	args := make(map[string]any, len(pending.Args)+1)
	for k, v := range pending.Args {
		args[k] = v
	}
	args[pending.Slot] = value
	args = req.Tool.Args.ApplyDefaults(args)

	if err := req.Tool.Args.Validate(args); err != nil {
		// The answer filled its slot; move on to the next open one.
		return Outcome{Clarification: r.clarificationFor(req, args)}
	}

	return Outcome{Resolution: &domain.Resolution{
		ToolID:     req.Tool.ID,
		Args:       args,
		Confidence: confidenceFor(method),
		MatchedBy:  method,
	}}
}

// answerValue interprets the answer for the pending slot. Slots with an
// enumerable option set match against it; everything else is read by the
// slot's schema type, so a free-text or numeric answer is taken at face
// value and left to validation.
func (r *Resolver) answerValue(req Request, pending *domain.Clarification) (any, domain.MatchMethod) {
	options := pending.Options
	if len(options) == 0 {
		if enum, ok := req.Tool.Args.Enum(pending.Slot); ok {
			options = enum
		} else if pending.Slot == "column" {
			options = req.Columns
		}
	}
	if len(options) > 0 {
		if value, method := matchOption(req.UserText, options); value != "" {
			return value, method
		}
		return nil, domain.MatchPattern
	}

	switch req.Tool.Args[pending.Slot].Type.(type) {
	case *schema.IntType:
		if n, ok := firstNumber(req.UserText); ok {
			return int(n), domain.MatchPattern
		}
	case *schema.RangeType, *schema.FloatType:
		if n, ok := firstNumber(req.UserText); ok {
			return n, domain.MatchPattern
		}
	case *schema.StringType:
		if text := strings.TrimSpace(req.UserText); text != "" {
			return text, domain.MatchPattern
		}
	}
	return nil, domain.MatchPattern
}

func (r *Resolver) retryOrRephrase(req Request) Outcome {
	next := *req.Pending
	next.Attempts++
	if next.Attempts >= maxAttempts {
		return Outcome{Rephrase: true}
	}
	return Outcome{Clarification: &next}
}

// clarificationFor builds the single-question prompt for the first open
// slot, keeping whatever already validated.
func (r *Resolver) clarificationFor(req Request, partial map[string]any) *domain.Clarification {
	kept := map[string]any{}
	for name, value := range canonicalizeEnums(req.Tool.Args, partial) {
		field, ok := req.Tool.Args[name]
		if !ok {
			continue
		}
		if field.Type.Validate(value) == nil {
			kept[name] = value
		}
	}

	slot := firstOpenSlot(req.Tool.Args, kept)
	options := optionsForSlot(req, slot)

	question := fmt.Sprintf("Which %s should I use for %s?", slot, req.Tool.ID)
	if len(options) > 0 {
		question = fmt.Sprintf("%s Options: %s.", question, strings.Join(options, ", "))
	}

	return &domain.Clarification{
		ToolID:   req.Tool.ID,
		Slot:     slot,
		Question: question,
		Options:  options,
		AskedAt:  time.Now().UTC(),
		Args:     kept,
	}
}

func firstOpenSlot(args schema.Args, kept map[string]any) string {
	for _, name := range args.Names() {
		if !args[name].Required {
			continue
		}
		if _, ok := kept[name]; !ok {
			return name
		}
	}
	// Everything required is present; re-ask the first required slot.
	for _, name := range args.Names() {
		if args[name].Required {
			return name
		}
	}
	return args.Names()[0]
}

// optionsForSlot returns selectable literals when the option set is small
// and enumerable.
func optionsForSlot(req Request, slot string) []string {
	if enum, ok := req.Tool.Args.Enum(slot); ok {
		return enum
	}
	if slot == "column" && len(req.Columns) > 0 && len(req.Columns) <= 8 {
		return req.Columns
	}
	return nil
}

// clamp01 bounds a model-reported confidence to [0, 1]. The payload is
// untrusted input; a value outside the unit interval is a model bug, not
// a stronger signal.
func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func confidenceFor(method domain.MatchMethod) float64 {
	switch method {
	case domain.MatchOrdinal:
		// Ordinal references are unambiguous against an enumerated list.
		return 1.0
	case domain.MatchPattern:
		return 0.9
	case domain.MatchFuzzy:
		return 0.75
	default:
		return 0
	}
}

// canonicalizeEnums maps case-insensitive enum matches to their declared
// casing so downstream tools see one spelling.
func canonicalizeEnums(specArgs schema.Args, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for name, value := range args {
		field, ok := specArgs[name]
		if !ok {
			out[name] = value
			continue
		}
		if enum, isEnum := field.Type.(*schema.EnumType); isEnum {
			if s, isStr := value.(string); isStr {
				if canonical, found := enum.Canonical(s); found {
					out[name] = canonical
					continue
				}
			}
		}
		out[name] = value
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
