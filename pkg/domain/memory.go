package domain

import "time"

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry in the conversation memory window.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// MemoryRecord is the bounded recent-turn window plus a rolling summary of
// the discarded tail. It is overwritten in place, never appended
// indefinitely.
type MemoryRecord struct {
	Turns   []Turn `json:"turns"`
	Summary string `json:"summary,omitempty"`

	// TurnCount counts every turn ever appended, including discarded ones.
	// Drives the summary recomputation cadence.
	TurnCount int `json:"turn_count"`
}
