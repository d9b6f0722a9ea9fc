// Package core wires configuration, providers, tools and the agent into a
// ready-to-use financial QA client.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoKnowledge indicates that no knowledge document was configured.
	ErrNoKnowledge = errors.New("no knowledge document configured")

	// ErrClosed indicates that the client was used after Close.
	ErrClosed = errors.New("client closed")
)

// AgentError wraps errors with operation context.
//
// Example:
//
//	err := &AgentError{
//	    Op:  "NewClient",
//	    Err: ErrInvalidConfig,
//	}
//	// Error() returns: "finqa: NewClient: invalid configuration"
type AgentError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "finqa: <Op>: <Err>"
func (e *AgentError) Error() string {
	return fmt.Sprintf("finqa: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates a new AgentError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewAgentError("Invoke", err)
//	}
func NewAgentError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AgentError{
		Op:  op,
		Err: err,
	}
}

// invalidConfig reports a configuration problem found by op.
func invalidConfig(op, format string, args ...interface{}) error {
	return NewAgentError(op, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
}
