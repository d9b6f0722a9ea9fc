package agent

import (
	"errors"
	"fmt"
)

// Failure classes. A finished run's error matches exactly one of them with
// errors.Is.
var (
	// ErrParse marks a model response that carried no usable action.
	ErrParse = errors.New("agent: unparseable model response")

	// ErrToolNotFound marks an action naming an unregistered tool.
	ErrToolNotFound = errors.New("agent: tool not found")

	// ErrToolFailed marks a tool call that returned an error.
	ErrToolFailed = errors.New("agent: tool failed")

	// ErrStepLimit marks a run stopped by the step limit.
	ErrStepLimit = errors.New("agent: step limit reached")

	// ErrLLM marks a failed model call.
	ErrLLM = errors.New("agent: llm call failed")

	// ErrCanceled marks a run stopped by its context.
	ErrCanceled = errors.New("agent: canceled")
)

// StepLimitError is returned when a run reaches MaxSteps reasoning turns
// without a final answer.
type StepLimitError struct {
	MaxSteps int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("agent: step limit of %d reached without a final answer", e.MaxSteps)
}

// Is reports whether target is ErrStepLimit.
func (e *StepLimitError) Is(target error) bool {
	return target == ErrStepLimit
}

// Error attaches a failure class to the underlying cause, so a caller can
// match both errors.Is(err, ErrToolFailed) and the tool's own error.
type Error struct {
	// Kind is one of the package's sentinel errors.
	Kind error

	// Op names what failed: a tool name, "reasoning", "plan".
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the failure class.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func canceled(op string, cause error) error {
	return &Error{Kind: ErrCanceled, Op: op, Err: cause}
}
