package agent

import (
	"strings"

	"github.com/finqa/finqa-agent-go/pkg/llm"
	"github.com/finqa/finqa-agent-go/pkg/planner"
)

// Phase is the state machine's current phase.
type Phase string

const (
	PhaseReasoning    Phase = "reasoning"
	PhaseToolDispatch Phase = "tool_dispatch"
	PhaseFinished     Phase = "finished"
)

// Action is a tool call staged by a reasoning turn.
type Action struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
}

// ToolResult records one completed tool call.
type ToolResult struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
	Step   int    `json:"step"`
}

// ExecutionState is the full state of one run. Nothing changes it once
// Finished is set, and CurrentStep never exceeds MaxSteps.
type ExecutionState struct {
	Query       string              `json:"query"`
	Phase       Phase               `json:"phase"`
	CurrentStep int                 `json:"current_step"`
	MaxSteps    int                 `json:"max_steps"`
	Scratchpad  []string            `json:"scratchpad"`
	ToolResults []ToolResult        `json:"tool_results"`
	Pending     *Action             `json:"pending,omitempty"`
	FinalAnswer string              `json:"final_answer,omitempty"`
	Err         error               `json:"-"`
	Finished    bool                `json:"finished"`
	Plan        []*planner.PlanStep `json:"plan,omitempty"`
	Usage       llm.Usage           `json:"usage"`

	// Knowledge is the schema context retrieved for the query.
	Knowledge string `json:"knowledge,omitempty"`

	planHint string
}

func newState(query string, maxSteps int) *ExecutionState {
	return &ExecutionState{
		Query:       query,
		Phase:       PhaseReasoning,
		MaxSteps:    maxSteps,
		Scratchpad:  []string{},
		ToolResults: []ToolResult{},
	}
}

// Clone returns a deep copy that shares nothing mutable with s.
func (s *ExecutionState) Clone() *ExecutionState {
	c := *s
	c.Scratchpad = append([]string{}, s.Scratchpad...)
	c.ToolResults = append([]ToolResult{}, s.ToolResults...)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	c.Plan = planner.CloneSteps(s.Plan)
	return &c
}

// Transcript joins the scratchpad into prompt text.
func (s *ExecutionState) Transcript() string {
	return strings.Join(s.Scratchpad, "\n")
}

// planStep returns the plan step paired with reasoning turn n, if any.
func (s *ExecutionState) planStep(n int) *planner.PlanStep {
	if n < 1 || n > len(s.Plan) {
		return nil
	}
	return s.Plan[n-1]
}

// Result is what Invoke returns. It is populated on failure too.
type Result struct {
	FinalAnswer string              `json:"final_answer"`
	Err         error               `json:"-"`
	Scratchpad  []string            `json:"scratchpad"`
	ToolResults []ToolResult        `json:"tool_results"`
	StepsTaken  int                 `json:"steps_taken"`
	Plan        []*planner.PlanStep `json:"plan,omitempty"`
	Usage       llm.Usage           `json:"usage"`
}

// Succeeded reports whether the run produced a final answer.
func (r *Result) Succeeded() bool {
	return r.Err == nil
}

// Result converts a finished state into a Result.
func (s *ExecutionState) Result() *Result {
	c := s.Clone()
	return &Result{
		FinalAnswer: c.FinalAnswer,
		Err:         c.Err,
		Scratchpad:  c.Scratchpad,
		ToolResults: c.ToolResults,
		StepsTaken:  c.CurrentStep,
		Plan:        c.Plan,
		Usage:       c.Usage,
	}
}
