package domain

import "time"

// Source identifies which subsystem last owned the conversation.
type Source string

const (
	// SourceWorkflow marks guided workflow mode (gated tool execution).
	SourceWorkflow Source = "workflow"
	// SourceExploration marks free exploration mode (ad-hoc analysis).
	SourceExploration Source = "exploration"
)

// TransitionEntry is one record in the append-only stage audit log.
type TransitionEntry struct {
	At     time.Time `json:"at"`
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Reason string    `json:"reason"`
}

// Clarification records an outstanding low-confidence choice awaiting a
// one-turn disambiguation answer.
type Clarification struct {
	ToolID   string    `json:"tool_id"`
	Slot     string    `json:"slot"`
	Question string    `json:"question"`
	Options  []string  `json:"options,omitempty"`
	Attempts int       `json:"attempts"`
	AskedAt  time.Time `json:"asked_at"`

	// Args holds the already-resolved arguments, so answering the single
	// open slot completes the call.
	Args map[string]any `json:"args,omitempty"`
}

// WorkflowState is the single source of truth for a session's workflow
// progress. It is persisted exclusively through the StateStore's
// compare-and-swap write path; workers hold only request-scoped copies and
// must never cache it across requests.
type WorkflowState struct {
	// Version is the optimistic-concurrency token. Every accepted write
	// increments it by exactly one.
	Version int64 `json:"version"`

	Stage  Stage  `json:"stage"`
	Source Source `json:"source"`

	// Transitions is append-only and never truncated within a session.
	Transitions []TransitionEntry `json:"transitions"`

	// Pending is the outstanding clarification, if any.
	Pending *Clarification `json:"pending_clarification,omitempty"`
}

// NewWorkflowState returns a fresh state at the initial stage with version 0.
// The first accepted store write moves it to version 1.
func NewWorkflowState() *WorkflowState {
	return &WorkflowState{
		Stage:  StageNoData,
		Source: SourceWorkflow,
	}
}

// Advance moves the state to the given stage, appending one audit entry.
// It is a no-op if the session is already at or past the target stage.
func (s *WorkflowState) Advance(to Stage, reason string) bool {
	if !to.Known() || s.Stage.AtLeast(to) {
		return false
	}
	s.Transitions = append(s.Transitions, TransitionEntry{
		At:     time.Now().UTC(),
		From:   s.Stage,
		To:     to,
		Reason: reason,
	})
	s.Stage = to
	return true
}

// Reset returns the state to the initial stage, keeping the audit trail.
func (s *WorkflowState) Reset(reason string) {
	s.Transitions = append(s.Transitions, TransitionEntry{
		At:     time.Now().UTC(),
		From:   s.Stage,
		To:     StageNoData,
		Reason: reason,
	})
	s.Stage = StageNoData
	s.Source = SourceWorkflow
	s.Pending = nil
}

// Flags derives the completion booleans from the stage. They are never
// stored independently: a flag is true exactly when its stage has been
// reached.
func (s *WorkflowState) Flags() map[string]bool {
	return map[string]bool{
		"data_ready":       s.Stage.AtLeast(StageDataReady),
		"indicators_ready": s.Stage.AtLeast(StageIndicatorsReady),
		"risk_scored":      s.Stage.AtLeast(StageRiskScored),
	}
}

// Validate performs the structural check applied on every store read.
// A failure is StateCorruption: the session must be reset with notice.
func (s *WorkflowState) Validate() error {
	if s == nil {
		return ErrStateCorrupt
	}
	if !s.Stage.Known() {
		return ErrStateCorrupt
	}
	if s.Version < 0 {
		return ErrStateCorrupt
	}
	// The audit log must actually lead to the current stage.
	cur := StageNoData
	for _, t := range s.Transitions {
		if !t.From.Known() || !t.To.Known() {
			return ErrStateCorrupt
		}
		cur = t.To
	}
	if cur != s.Stage {
		return ErrStateCorrupt
	}
	return nil
}

// Clone returns a deep copy. Stores copy on read and write so no caller can
// mutate persisted state through a shared pointer.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	out := *s
	out.Transitions = make([]TransitionEntry, len(s.Transitions))
	copy(out.Transitions, s.Transitions)
	if s.Pending != nil {
		p := *s.Pending
		p.Options = append([]string(nil), s.Pending.Options...)
		if s.Pending.Args != nil {
			p.Args = make(map[string]any, len(s.Pending.Args))
			for k, v := range s.Pending.Args {
				p.Args[k] = v
			}
		}
		out.Pending = &p
	}
	return &out
}
