package domain

// Intent is the coarse category the classifier assigns to a message.
type Intent string

const (
	// IntentRunTool asks for a specific catalog action.
	IntentRunTool Intent = "run_tool"
	// IntentAnalyze asks for free-form analysis of the session's data.
	IntentAnalyze Intent = "analyze"
	// IntentClarifyAnswer answers an outstanding clarification question.
	IntentClarifyAnswer Intent = "clarify_answer"
	// IntentHelp asks what the assistant can do right now.
	IntentHelp Intent = "help"
	// IntentSmallTalk is conversation with no workflow effect.
	IntentSmallTalk Intent = "small_talk"
	// IntentReset asks to start the workflow over.
	IntentReset Intent = "reset"
)

// Decision is the classifier's structured output. It is advisory: the
// router alone decides whether the requested action may execute.
type Decision struct {
	Intent        Intent            `json:"intent" mapstructure:"intent"`
	RequestedTool string            `json:"requested_action,omitempty" mapstructure:"requested_action"`
	Entities      map[string]string `json:"entities,omitempty" mapstructure:"entities"`
	Confidence    float64           `json:"confidence" mapstructure:"confidence"`
	RequiredGates []Stage           `json:"required_gates,omitempty" mapstructure:"required_gates"`

	// FallbackUsed marks a decision produced by the deterministic keyword
	// path rather than the model.
	FallbackUsed bool `json:"-" mapstructure:"-"`
}
