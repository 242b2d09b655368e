package domain

// MatchMethod records which mechanism produced an argument resolution.
type MatchMethod string

const (
	MatchModel   MatchMethod = "model"
	MatchOrdinal MatchMethod = "ordinal"
	MatchPattern MatchMethod = "pattern"
	MatchFuzzy   MatchMethod = "fuzzy"
)

// Resolution is the ephemeral result of resolving free text into validated
// tool arguments. It is never persisted. Args must validate against the
// tool's schema before the resolution is accepted; a failing result is
// discarded whole, never partially applied.
type Resolution struct {
	ToolID     string         `json:"tool_id"`
	Args       map[string]any `json:"args"`
	Confidence float64        `json:"confidence"`
	MatchedBy  MatchMethod    `json:"matched_by"`
}
