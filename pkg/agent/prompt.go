package agent

import (
	"fmt"
	"strings"
)

// DefaultInstructions describe the response format the parser expects.
const DefaultInstructions = `You are a financial data assistant. Answer the question by interleaving Thought, Action and Observation steps.
Thought reasons about the current situation.
Action names one of the tools below, or finish[answer] once you know the final answer.
When a tool needs input, give it on an Action Input line.
Only write one Thought and one Action per response; the Observation will be provided to you.

Format:
Thought: ...
Action: ToolName
Action Input: ...`

// buildPrompt assembles instructions, the tool catalog, optional knowledge
// and plan hint, the scratchpad and the query.
func (a *Agent) buildPrompt(st *ExecutionState) string {
	var sb strings.Builder

	sb.WriteString(a.instructions)
	sb.WriteString("\n\nTools:\n")
	if catalog := a.tools.Describe(); catalog != "" {
		sb.WriteString(catalog)
		sb.WriteString("\n")
	}
	sb.WriteString("finish[answer]: returns the final answer and ends the task.\n")

	if st.Knowledge != "" {
		sb.WriteString("\nDatabase context:\n")
		sb.WriteString(st.Knowledge)
		if !strings.HasSuffix(st.Knowledge, "\n") {
			sb.WriteString("\n")
		}
	}

	if st.planHint != "" {
		sb.WriteString("\n")
		sb.WriteString(st.planHint)
	}

	fmt.Fprintf(&sb, "\nQuestion: %s\n", st.Query)
	if len(st.Scratchpad) > 0 {
		sb.WriteString(st.Transcript())
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Thought %d:", st.CurrentStep)
	return sb.String()
}
