// Package router is the deterministic policy layer and the only component
// permitted to cause side effects. Classifier output is advisory: the
// router alone checks gates, resolves arguments, executes tools and writes
// state through the store's compare-and-swap.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atelierlabs/concierge/internal/logging"
	"github.com/atelierlabs/concierge/pkg/classifier"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/memory"
	"github.com/atelierlabs/concierge/pkg/ports"
	"github.com/atelierlabs/concierge/pkg/registry"
	"github.com/atelierlabs/concierge/pkg/resolver"
)

// Analyzer runs a free-form analysis request in the sandbox. It is a pure
// function of the request and the dataset; it has no access to session
// state.
type Analyzer interface {
	Analyze(ctx context.Context, request string, data *domain.Dataset) ([]domain.Table, error)
}

// Router handles one user message end to end.
type Router struct {
	store    ports.StateStore
	reg      *registry.Registry
	cls      *classifier.Classifier
	res      *resolver.Resolver
	invoker  ports.ToolInvoker
	data     ports.DataLoader
	analyzer Analyzer
	mem      *memory.Manager
	sink     ports.EventSink
	logger   *slog.Logger
}

// Option configures the Router.
type Option func(*Router)

// WithInvoker wires the tool execution backend.
func WithInvoker(inv ports.ToolInvoker) Option {
	return func(r *Router) { r.invoker = inv }
}

// WithDataLoader wires the session data backend.
func WithDataLoader(dl ports.DataLoader) Option {
	return func(r *Router) { r.data = dl }
}

// WithAnalyzer wires the sandboxed analysis backend.
func WithAnalyzer(a Analyzer) Option {
	return func(r *Router) { r.analyzer = a }
}

// WithMemory wires the conversation memory manager.
func WithMemory(m *memory.Manager) Option {
	return func(r *Router) { r.mem = m }
}

// WithSink wires the observability event sink.
func WithSink(sink ports.EventSink) Option {
	return func(r *Router) { r.sink = sink }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// New creates a Router over the given state store, catalog, classifier and
// resolver.
func New(store ports.StateStore, reg *registry.Registry, cls *classifier.Classifier, res *resolver.Resolver, opts ...Option) *Router {
	r := &Router{
		store:  store,
		reg:    reg,
		cls:    cls,
		res:    res,
		sink:   ports.NopSink{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleMessage routes one user message. Every failure mode resolves to a
// structured Reply; the method never panics and never returns an error to
// crash the worker.
func (r *Router) HandleMessage(ctx context.Context, sessionID, text string) domain.Reply {
	start := time.Now()

	text, err := SanitizeInput(text)
	if err != nil {
		return domain.Reply{
			Kind: domain.ReplyNotice,
			Text: "I could not read that message. Please send plain text within the size limit.",
		}
	}

	state, notice := r.loadState(ctx, sessionID)
	if notice != nil {
		return *notice
	}

	mem := r.memoryContext(ctx, sessionID)
	decision := r.cls.Classify(ctx, text, mem, state.Stage)

	var reply domain.Reply
	if state.Pending != nil && decision.Intent != domain.IntentReset {
		reply = r.handleAnswer(ctx, sessionID, state, text)
	} else {
		switch decision.Intent {
		case domain.IntentReset:
			reply = r.handleReset(ctx, sessionID, state)
		case domain.IntentHelp:
			reply = r.helpReply(state)
		case domain.IntentSmallTalk:
			reply = domain.Reply{
				Kind:  domain.ReplyAnswer,
				Text:  "Hello! Upload a dataset and I can compute indicators, score risk and plan distributions. Ask for help to see what fits the current step.",
				Stage: state.Stage,
			}
		case domain.IntentAnalyze:
			reply = r.handleAnalyze(ctx, sessionID, state, decision, text)
		case domain.IntentRunTool:
			reply = r.handleTool(ctx, sessionID, state, decision, text, mem)
		default:
			reply = domain.Reply{
				Kind:  domain.ReplyNotice,
				Text:  "I was not sure what you meant. Could you rephrase, or ask for help?",
				Stage: state.Stage,
			}
		}
	}

	r.appendMemory(ctx, sessionID, text, reply.Text)

	gates := make([]string, 0, len(decision.RequiredGates))
	for _, g := range decision.RequiredGates {
		gates = append(gates, string(g))
	}
	r.sink.RouterEvent(ctx, domain.RouterEvent{
		SessionID:  sessionID,
		Intent:     decision.Intent,
		Confidence: decision.Confidence,
		Action:     decision.RequestedTool,
		Gates:      gates,
		LatencyMS:  time.Since(start).Milliseconds(),
	})
	return reply
}

// loadState reads the session state, creating a fresh one for unknown
// sessions. Corruption is the one unrecoverable failure: the session is
// reset to the first stage with an explicit notice, never silently
// repaired.
func (r *Router) loadState(ctx context.Context, sessionID string) (*domain.WorkflowState, *domain.Reply) {
	state, err := r.store.Load(ctx, sessionID)
	switch {
	case err == nil:
		if verr := state.Validate(); verr == nil {
			return state, nil
		}
		return nil, r.resetCorrupt(ctx, sessionID)
	case errors.Is(err, domain.ErrSessionNotFound):
		return domain.NewWorkflowState(), nil
	case errors.Is(err, domain.ErrStateCorrupt):
		return nil, r.resetCorrupt(ctx, sessionID)
	default:
		r.logger.Error("state load failed", "session", sessionID, "error", err)
		return nil, &domain.Reply{
			Kind: domain.ReplyNotice,
			Text: "The session store is temporarily unavailable. Please try again shortly.",
		}
	}
}

func (r *Router) resetCorrupt(ctx context.Context, sessionID string) *domain.Reply {
	r.logger.Error("session state corrupt, resetting", "session", sessionID)
	if err := r.store.Delete(ctx, sessionID); err != nil {
		r.logger.Error("corrupt state delete failed", "session", sessionID, "error", err)
	}
	fresh := domain.NewWorkflowState()
	fresh.Reset("state corruption detected")
	if err := r.store.Save(ctx, sessionID, fresh, 0); err != nil {
		r.logger.Error("corrupt state reset save failed", "session", sessionID, "error", err)
	}
	return &domain.Reply{
		Kind:  domain.ReplyNotice,
		Text:  "Your session state could not be read and has been reset to the beginning. Please upload your data again.",
		Stage: domain.StageNoData,
	}
}

func (r *Router) handleReset(ctx context.Context, sessionID string, state *domain.WorkflowState) domain.Reply {
	if reply := r.commit(ctx, sessionID, state, func(s *domain.WorkflowState) {
		s.Reset("user requested reset")
	}); reply != nil {
		return *reply
	}
	if r.mem != nil {
		if err := r.mem.Clear(ctx, sessionID); err != nil {
			r.logger.Warn("memory clear failed", "session", sessionID, "error", err)
		}
	}
	return domain.Reply{
		Kind:  domain.ReplyNotice,
		Text:  "The workflow has been reset. Upload a dataset to start again.",
		Stage: domain.StageNoData,
	}
}

func (r *Router) helpReply(state *domain.WorkflowState) domain.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "This session is at stage %s. Right now you can:\n", state.Stage)
	for _, spec := range r.reg.Eligible(state.Stage) {
		fmt.Fprintf(&b, "- %s: %s\n", spec.ID, spec.Description)
	}
	return domain.Reply{Kind: domain.ReplyAnswer, Text: b.String(), Stage: state.Stage}
}

// handleAnswer resolves the user's one-turn answer to the stored pending
// clarification.
func (r *Router) handleAnswer(ctx context.Context, sessionID string, state *domain.WorkflowState, text string) domain.Reply {
	pending := state.Pending
	tool, ok := r.reg.Get(pending.ToolID)
	if !ok {
		if reply := r.commit(ctx, sessionID, state, func(s *domain.WorkflowState) { s.Pending = nil }); reply != nil {
			return *reply
		}
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "That question is no longer relevant. What would you like to do?",
			Stage: state.Stage,
		}
	}

	out := r.res.Resolve(ctx, resolver.Request{
		Tool:     tool,
		UserText: text,
		Columns:  r.columns(ctx, sessionID),
		Pending:  pending,
	})
	r.emitChoice(ctx, sessionID, tool.ID, text, out)

	switch {
	case out.Resolution != nil:
		return r.execute(ctx, sessionID, state, tool, out.Resolution.Args)
	case out.Clarification != nil:
		if reply := r.storePending(ctx, sessionID, state, out.Clarification); reply != nil {
			return *reply
		}
		return clarificationReply(out.Clarification, state.Stage)
	default:
		if reply := r.commit(ctx, sessionID, state, func(s *domain.WorkflowState) { s.Pending = nil }); reply != nil {
			return *reply
		}
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  fmt.Sprintf("I still could not pin that down. Please rephrase the whole %s request in your own words.", tool.ID),
			Stage: state.Stage,
		}
	}
}

// handleTool runs the gate check, argument resolution and execution for a
// direct catalog action.
func (r *Router) handleTool(ctx context.Context, sessionID string, state *domain.WorkflowState, decision domain.Decision, text string, mem *domain.MemoryRecord) domain.Reply {
	tool, ok := r.reg.Get(decision.RequestedTool)
	if !ok {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "I do not know how to do that. Ask for help to see the available actions.",
			Stage: state.Stage,
		}
	}

	if state.Stage.Before(tool.Precondition) {
		return r.gateFork(ctx, sessionID, state, tool)
	}

	out := r.res.Resolve(ctx, resolver.Request{
		Tool:     tool,
		UserText: text,
		Columns:  r.columns(ctx, sessionID),
		Memory:   mem,
	})
	r.emitChoice(ctx, sessionID, tool.ID, text, out)

	switch {
	case out.Resolution != nil:
		return r.execute(ctx, sessionID, state, tool, out.Resolution.Args)
	case out.Clarification != nil:
		if reply := r.storePending(ctx, sessionID, state, out.Clarification); reply != nil {
			return *reply
		}
		return clarificationReply(out.Clarification, state.Stage)
	default:
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  fmt.Sprintf("I could not work out the details for %s. Could you state them explicitly?", tool.ID),
			Stage: state.Stage,
		}
	}
}

// handleAnalyze routes a free-form analysis request to the sandbox. The
// request text itself is the single argument; no model extraction runs.
func (r *Router) handleAnalyze(ctx context.Context, sessionID string, state *domain.WorkflowState, decision domain.Decision, text string) domain.Reply {
	tool, ok := r.sandboxTool(decision.RequestedTool)
	if !ok {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "Free-form analysis is not available in this deployment.",
			Stage: state.Stage,
		}
	}
	if state.Stage.Before(tool.Precondition) {
		return r.gateFork(ctx, sessionID, state, tool)
	}
	if r.analyzer == nil {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "Free-form analysis is not available in this deployment.",
			Stage: state.Stage,
		}
	}

	ds, err := r.loadData(ctx, sessionID)
	if err != nil {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "I could not find data for this session. Upload a dataset first.",
			Stage: state.Stage,
		}
	}

	t0 := time.Now()
	tables, err := r.analyzer.Analyze(ctx, text, ds)
	r.emitTool(ctx, sessionID, tool.ID, t0, err)
	if err != nil {
		return analysisErrorReply(err, state.Stage)
	}

	return domain.Reply{
		Kind:   domain.ReplyAnswer,
		Text:   "Here is what I found.",
		Tables: tables,
		Stage:  state.Stage,
	}
}

// gateFork returns the deterministic two-option fork for an unmet
// precondition. Nothing is executed and nothing is written: the session's
// version is unchanged.
func (r *Router) gateFork(ctx context.Context, sessionID string, state *domain.WorkflowState, tool registry.ToolSpec) domain.Reply {
	options := []string{
		fmt.Sprintf("Complete the missing prerequisite with defaults (reach %s)", tool.Precondition),
		fmt.Sprintf("Resume the workflow from your last checkpoint (%s)", state.Stage),
	}
	if prereq, ok := r.prereqTool(tool.Precondition); ok {
		options[0] = fmt.Sprintf("Run %s with defaults (reach %s)", prereq.ID, tool.Precondition)
	}

	r.sink.ToolEvent(ctx, domain.ToolEvent{
		SessionID: sessionID,
		Tool:      tool.ID,
		Status:    "gate_blocked",
	})

	return domain.Reply{
		Kind: domain.ReplyGateFork,
		Text: fmt.Sprintf("%s needs the workflow to reach %s, but this session is at %s. How would you like to proceed?",
			tool.ID, tool.Precondition, state.Stage),
		Options: options,
		Stage:   state.Stage,
	}
}

// execute runs the tool and, on success, applies its declared stage
// transition through the compare-and-swap write path.
func (r *Router) execute(ctx context.Context, sessionID string, state *domain.WorkflowState, tool registry.ToolSpec, args map[string]any) domain.Reply {
	if r.invoker == nil {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "Tool execution is not available in this deployment.",
			Stage: state.Stage,
		}
	}

	ds, err := r.loadData(ctx, sessionID)
	if err != nil && tool.Precondition != domain.StageNoData {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "I could not find data for this session. Upload a dataset first.",
			Stage: state.Stage,
		}
	}

	call := domain.ToolCall{ID: uuid.NewString(), Session: sessionID, Tool: tool.ID, Args: args}
	t0 := time.Now()
	result, err := r.invoker.Invoke(ctx, call, ds)
	r.emitTool(ctx, sessionID, tool.ID, t0, err)
	if err != nil {
		r.logger.Error("tool invocation failed", "session", sessionID, "tool", tool.ID, "error", err)
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  fmt.Sprintf("%s failed: %v", tool.ID, err),
			Stage: state.Stage,
		}
	}
	if result.IsError {
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  fmt.Sprintf("%s failed: %s", tool.ID, result.Error),
			Stage: state.Stage,
		}
	}

	reason := fmt.Sprintf("%s succeeded", tool.ID)
	if reply := r.commit(ctx, sessionID, state, func(s *domain.WorkflowState) {
		s.Pending = nil
		if tool.OnSuccess != "" {
			s.Advance(tool.OnSuccess, reason)
		}
	}); reply != nil {
		return *reply
	}

	text := ""
	if result.Result != nil {
		text = fmt.Sprintf("%v", result.Result)
	}
	return domain.Reply{
		Kind:   domain.ReplyAnswer,
		Text:   text,
		Tables: result.Tables,
		Stage:  state.Stage,
	}
}

// commit applies mutate to the state and saves it via compare-and-swap.
// On VersionConflict it re-reads once, re-applies mutate to the fresh
// state, and saves again; a second conflict is surfaced as a retry notice.
// The caller's state is updated to the committed one.
func (r *Router) commit(ctx context.Context, sessionID string, state *domain.WorkflowState, mutate func(*domain.WorkflowState)) *domain.Reply {
	mutate(state)
	err := r.store.Save(ctx, sessionID, state, state.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrVersionConflict) {
		r.logger.Error("state save failed", "session", sessionID, "error", err)
		return &domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "Your progress could not be saved. Please try again.",
			Stage: state.Stage,
		}
	}

	r.sink.ToolEvent(ctx, domain.ToolEvent{
		SessionID: sessionID,
		Tool:      "workflow_state",
		Status:    "version_conflict",
	})

	fresh, lerr := r.store.Load(ctx, sessionID)
	if lerr != nil {
		r.logger.Error("state re-read failed after conflict", "session", sessionID, "error", lerr)
		return &domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "Another request updated this session at the same time. Please try again.",
			Stage: state.Stage,
		}
	}

	beforeStage, beforePending := fresh.Stage, fresh.Pending
	beforeTransitions := len(fresh.Transitions)
	mutate(fresh)
	if fresh.Stage == beforeStage && fresh.Pending == beforePending &&
		len(fresh.Transitions) == beforeTransitions {
		// The concurrent writer already produced this outcome.
		*state = *fresh
		return nil
	}
	if serr := r.store.Save(ctx, sessionID, fresh, fresh.Version); serr != nil {
		r.logger.Warn("state save conflicted twice", "session", sessionID, "error", serr)
		return &domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "Another request updated this session at the same time. Please try again.",
			Stage: fresh.Stage,
		}
	}
	*state = *fresh
	return nil
}

func (r *Router) storePending(ctx context.Context, sessionID string, state *domain.WorkflowState, clar *domain.Clarification) *domain.Reply {
	return r.commit(ctx, sessionID, state, func(s *domain.WorkflowState) {
		s.Pending = clar
	})
}

func (r *Router) prereqTool(stage domain.Stage) (registry.ToolSpec, bool) {
	for _, spec := range r.reg.All() {
		if spec.OnSuccess == stage {
			return spec, true
		}
	}
	return registry.ToolSpec{}, false
}

// sandboxTool resolves the analysis tool: the classifier's pick when it is
// actually sandboxed, otherwise the first sandboxed entry in the catalog.
func (r *Router) sandboxTool(requested string) (registry.ToolSpec, bool) {
	if requested != "" {
		if spec, ok := r.reg.Get(requested); ok && spec.Sandboxed {
			return spec, true
		}
	}
	for _, spec := range r.reg.All() {
		if spec.Sandboxed {
			return spec, true
		}
	}
	return registry.ToolSpec{}, false
}

func (r *Router) loadData(ctx context.Context, sessionID string) (*domain.Dataset, error) {
	if r.data == nil {
		return nil, nil
	}
	ds, err := r.data.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, err
		}
		r.logger.Error("data load failed", "session", sessionID, "error", err)
		return nil, err
	}
	return ds, nil
}

func (r *Router) columns(ctx context.Context, sessionID string) []string {
	ds, err := r.loadData(ctx, sessionID)
	if err != nil || ds == nil {
		return nil
	}
	return ds.Columns
}

func (r *Router) memoryContext(ctx context.Context, sessionID string) *domain.MemoryRecord {
	if r.mem == nil {
		return nil
	}
	rec, err := r.mem.Context(ctx, sessionID)
	if err != nil {
		r.logger.Warn("memory read failed", "session", sessionID, "error", err)
		return nil
	}
	return rec
}

// appendMemory must complete before the reply is returned so the write is
// ordered ahead of the session's next request.
func (r *Router) appendMemory(ctx context.Context, sessionID, userText, replyText string) {
	if r.mem == nil {
		return
	}
	if err := r.mem.Append(ctx, sessionID, userText, replyText); err != nil {
		r.logger.Warn("memory append failed", "session", sessionID, "error", err)
	}
}

func (r *Router) emitChoice(ctx context.Context, sessionID, toolID, text string, out resolver.Outcome) {
	ev := domain.ChoiceEvent{
		SessionID: sessionID,
		Tool:      toolID,
		UserText:  text,
	}
	if out.Resolution != nil {
		ev.Args = out.Resolution.Args
		ev.Confidence = out.Resolution.Confidence
		ev.MatchedBy = out.Resolution.MatchedBy
	}
	r.sink.ChoiceEvent(ctx, ev)
}

func (r *Router) emitTool(ctx context.Context, sessionID, toolID string, start time.Time, err error) {
	ev := domain.ToolEvent{
		SessionID: sessionID,
		Tool:      toolID,
		Status:    "ok",
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Status = "error"
		if errors.Is(err, domain.ErrExecTimeout) {
			ev.Status = "timeout"
		}
		ev.Errors = []string{err.Error()}
	}
	r.sink.ToolEvent(ctx, ev)
}

func clarificationReply(clar *domain.Clarification, stage domain.Stage) domain.Reply {
	return domain.Reply{
		Kind:    domain.ReplyClarification,
		Text:    clar.Question,
		Options: clar.Options,
		Stage:   stage,
	}
}

func analysisErrorReply(err error, stage domain.Stage) domain.Reply {
	switch {
	case errors.Is(err, domain.ErrExecTimeout):
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "The analysis took too long and was stopped. Try a simpler request.",
			Stage: stage,
		}
	case errors.Is(err, domain.ErrPolicyViolation):
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "That analysis needs capabilities outside the sandbox. Try a plain data question.",
			Stage: stage,
		}
	case errors.Is(err, domain.ErrInvalidOutput):
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "The analysis did not produce usable output. Try rephrasing the request.",
			Stage: stage,
		}
	default:
		return domain.Reply{
			Kind:  domain.ReplyNotice,
			Text:  "The analysis failed. Try rephrasing the request.",
			Stage: stage,
		}
	}
}
