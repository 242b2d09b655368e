package domain

// Dataset is a handle to the session's tabular data, resolved by the data
// loader. When multiple derived datasets exist the most recently derived
// wins, falling back to the original upload.
type Dataset struct {
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Columns []string `json:"columns"`
	Derived bool     `json:"derived"`
}
