package domain

import "context"

// ToolDescriptor is the public description of a registered tool.
// Parameters maps a parameter name to a type tag; it is informational only.
type ToolDescriptor struct {
	ID          string            `json:"tool_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// Tool is the interface every capability implements (code generation, shell, http probe, etc).
//
// Execute receives the effective context for the call and returns the context
// it wants folded back into the global store. A returned error is a fault: the
// dispatcher reports it as an internal failure and discards the context.
// Operational problems the tool can describe itself belong in a Reported result.
type Tool interface {
	Descriptor() ToolDescriptor
	Execute(ctx context.Context, params map[string]any, tc Context) (Result, error)
}

// Result is the outcome of a tool that returned without a fault.
type Result struct {
	Output   any
	Context  Context
	Reported bool // Output describes a failure the tool handled itself
}

// OK wraps an ordinary tool output.
func OK(output any, tc Context) Result {
	return Result{Output: output, Context: tc}
}

// Reported wraps a failure the tool detected and described on its own.
// It is still a protocol-level success.
func Reported(output any, tc Context) Result {
	return Result{Output: output, Context: tc, Reported: true}
}
