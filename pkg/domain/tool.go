package domain

// ToolCall is a request to execute one catalog action with validated
// arguments. The ID correlates call, result and emitted events.
type ToolCall struct {
	ID      string         `json:"id"`
	Session string         `json:"session"`
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of a tool invocation. Tools never mutate the
// workflow stage; only the router advances it, based on the tool's declared
// on-success transition.
type ToolResult struct {
	ID      string  `json:"id"`
	Result  any     `json:"result,omitempty"`
	Tables  []Table `json:"tables,omitempty"`
	IsError bool    `json:"is_error,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Table is a structured tabular result returned by tools and sandboxed
// executions.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}
