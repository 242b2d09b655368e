package domain

// RouterEvent is emitted once per handled message.
type RouterEvent struct {
	SessionID  string   `json:"session_id"`
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Action     string   `json:"action,omitempty"`
	Gates      []string `json:"gates,omitempty"`
	LatencyMS  int64    `json:"latency_ms"`
}

// ChoiceEvent is emitted for every argument resolution attempt.
type ChoiceEvent struct {
	SessionID  string         `json:"session_id"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	Confidence float64        `json:"confidence"`
	MatchedBy  MatchMethod    `json:"matched_by"`
	UserText   string         `json:"user_text"`
}

// ToolEvent is emitted for every tool or sandbox execution.
type ToolEvent struct {
	SessionID string   `json:"session_id"`
	Tool      string   `json:"tool"`
	Status    string   `json:"status"`
	LatencyMS int64    `json:"latency_ms"`
	Errors    []string `json:"errors,omitempty"`
}
