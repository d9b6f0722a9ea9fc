// Package tool defines the capabilities the agent can invoke by name.
//
// A Tool takes the raw action input the model produced and returns text that
// becomes the next observation. Tools are grouped in a Registry whose lookup
// is exact and case-sensitive.
package tool

import "context"

// Tool is a named capability callable by the agent.
type Tool interface {
	// Name is the identifier the model uses in its Action line.
	Name() string

	// Description is shown to the model in the tool catalog.
	Description() string

	// Call runs the tool with the action input and returns the observation.
	Call(ctx context.Context, input string) (string, error)
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	name        string
	description string
	fn          func(ctx context.Context, input string) (string, error)
}

// NewFunc creates a function-backed tool.
func NewFunc(name, description string, fn func(ctx context.Context, input string) (string, error)) *Func {
	return &Func{name: name, description: description, fn: fn}
}

// Name implements Tool.
func (f *Func) Name() string { return f.name }

// Description implements Tool.
func (f *Func) Description() string { return f.description }

// Call implements Tool.
func (f *Func) Call(ctx context.Context, input string) (string, error) {
	return f.fn(ctx, input)
}

var _ Tool = (*Func)(nil)
