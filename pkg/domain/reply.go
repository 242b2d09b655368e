package domain

// ReplyKind categorizes the router's structured response.
type ReplyKind string

const (
	// ReplyAnswer carries a completed action's result.
	ReplyAnswer ReplyKind = "answer"
	// ReplyClarification asks exactly one disambiguation question.
	ReplyClarification ReplyKind = "clarification"
	// ReplyGateFork offers the two-option prerequisite fork.
	ReplyGateFork ReplyKind = "gate_fork"
	// ReplyNotice carries a recoverable error or reset notice.
	ReplyNotice ReplyKind = "notice"
)

// Reply is the router's response to one user message. Every failure mode
// resolves to a Reply; nothing in the core crashes the worker.
type Reply struct {
	Kind    ReplyKind `json:"kind"`
	Text    string    `json:"text"`
	Options []string  `json:"options,omitempty"`
	Tables  []Table   `json:"tables,omitempty"`
	Stage   Stage     `json:"stage"`
}
