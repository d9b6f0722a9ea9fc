// Package planner builds the advisory step plan for a financial query.
//
// A plan is a fixed template of actions adjusted by the query's wording. It is
// fed to the model as a hint; the reasoning loop stays in charge of which
// tools actually run.
package planner

import (
	"errors"
	"fmt"
	"time"
)

// Action names a plan step.
type Action string

const (
	ActionQueryUnderstanding   Action = "query_understanding"
	ActionInformationRetrieval Action = "information_retrieval"
	ActionSQLGeneration        Action = "sql_generation"
	ActionDataAnalysis         Action = "data_analysis"
	ActionAnswerGeneration     Action = "answer_generation"
	ActionValidation           Action = "validation"
	ActionErrorHandling        Action = "error_handling"
)

// ActionDescriptions is the action vocabulary.
var ActionDescriptions = map[Action]string{
	ActionQueryUnderstanding:   "understand and parse the user query",
	ActionInformationRetrieval: "retrieve relevant information",
	ActionSQLGeneration:        "generate a SQL query",
	ActionDataAnalysis:         "analyze the data",
	ActionAnswerGeneration:     "generate the final answer",
	ActionValidation:           "validate the result",
	ActionErrorHandling:        "handle errors",
}

// StepStatus is the lifecycle state of a plan step.
type StepStatus int

const (
	StatusPending StepStatus = iota
	StatusExecuting
	StatusCompleted
	StatusFailed
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuting:
		return "executing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrInvalidTransition is returned for a status change that does not move
// forward.
var ErrInvalidTransition = errors.New("planner: invalid step transition")

// PlanStep is one step of a plan.
type PlanStep struct {
	StepID      int                    `json:"step_id"`
	Action      Action                 `json:"action"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
	Status      StepStatus             `json:"status"`
	Result      string                 `json:"result,omitempty"`
	StartTime   *time.Time             `json:"start_time,omitempty"`
	EndTime     *time.Time             `json:"end_time,omitempty"`
}

// Transition moves the step to status. Only pending→executing and
// executing→completed|failed are allowed. Entering executing stamps
// StartTime; leaving it stamps EndTime.
func (s *PlanStep) Transition(to StepStatus) error {
	ok := (s.Status == StatusPending && to == StatusExecuting) ||
		(s.Status == StatusExecuting && (to == StatusCompleted || to == StatusFailed))
	if !ok {
		return fmt.Errorf("%w: step %d %s -> %s", ErrInvalidTransition, s.StepID, s.Status, to)
	}

	now := time.Now()
	if to == StatusExecuting {
		s.StartTime = &now
	} else {
		s.EndTime = &now
	}
	s.Status = to
	return nil
}

// Clone returns a deep copy of the step.
func (s *PlanStep) Clone() *PlanStep {
	if s == nil {
		return nil
	}
	c := *s
	c.Parameters = cloneParams(s.Parameters)
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

// CloneSteps deep-copies a step slice.
func CloneSteps(steps []*PlanStep) []*PlanStep {
	if steps == nil {
		return nil
	}
	out := make([]*PlanStep, len(steps))
	for i, s := range steps {
		out[i] = s.Clone()
	}
	return out
}

func cloneParams(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}
