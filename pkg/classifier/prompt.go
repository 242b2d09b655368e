package classifier

import (
	"fmt"
	"strings"

	"github.com/atelierlabs/concierge/pkg/domain"
)

const systemPrompt = `You route messages for a data-analysis assistant.

Classify the user's message into exactly one intent:
- run_tool: the user asks for one of the listed actions
- analyze: the user asks a free-form question about their data
- clarify_answer: the user answers a clarification question you asked
- help: the user asks what is possible right now
- small_talk: greeting or chat with no workflow effect
- reset: the user wants to start the workflow over

Rules:
- requested_action must be one of the listed action ids, or empty.
- confidence is your certainty in [0,1].
- required_gates lists the stage names the action depends on, if any.
- Output a single JSON object, nothing else.

JSON format:
{"intent": "...", "requested_action": "...", "entities": {"name": "value"}, "confidence": 0.0, "required_gates": ["..."]}`

func (c *Classifier) buildPrompt(text string, mem *domain.MemoryRecord, stage domain.Stage) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current workflow stage: %s\n\n", stage)
	fmt.Fprintf(&b, "Available actions:\n%s\n", c.registry.PromptView(stage))

	if mem != nil {
		if mem.Summary != "" {
			fmt.Fprintf(&b, "Conversation summary: %s\n", mem.Summary)
		}
		if len(mem.Turns) > 0 {
			b.WriteString("Recent turns:\n")
			for _, turn := range mem.Turns {
				fmt.Fprintf(&b, "  [%s] %s\n", turn.Role, turn.Text)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User message: %s", text)
	return b.String()
}
