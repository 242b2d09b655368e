package resolver

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = `You extract tool arguments from a user's message for a data-analysis assistant.

Rules:
- Fill only the listed arguments. Never invent argument names.
- Leave an argument out entirely when the message does not state it.
- Enum arguments must use one of the listed values.
- Column arguments must use one of the listed dataset columns.
- confidence is your certainty in [0,1] that the filled values are what the user meant.
- Output a single JSON object, nothing else.

JSON format:
{"args": {"name": "value"}, "confidence": 0.0}`

func buildExtractionPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tool: %s\n%s\n\n", req.Tool.ID, req.Tool.Description)

	b.WriteString("Arguments:\n")
	for _, name := range req.Tool.Args.Names() {
		field := req.Tool.Args[name]
		kind := "optional"
		if field.Required {
			kind = "required"
		}
		fmt.Fprintf(&b, "  %s (%s, %s)", name, field.Type.Name(), kind)
		if field.Description != "" {
			fmt.Fprintf(&b, ": %s", field.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(req.Columns) > 0 {
		fmt.Fprintf(&b, "Dataset columns: %s\n\n", strings.Join(req.Columns, ", "))
	}

	if req.Memory != nil && req.Memory.Summary != "" {
		fmt.Fprintf(&b, "Conversation summary: %s\n\n", req.Memory.Summary)
	}

	fmt.Fprintf(&b, "User message: %s", req.UserText)
	return b.String()
}
