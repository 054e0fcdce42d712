package prompt

// ToolDefinition declares one callable function in provider-neutral form.
// Requests translate it into the vendor's tool shape; execution of tool
// calls is left to the caller.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
