package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// TurnKind classifies a parsed model response.
type TurnKind int

const (
	// TurnError is the zero value so an unclassified turn is never a success.
	TurnError TurnKind = iota
	TurnAction
	TurnFinish
)

// String returns the string representation of TurnKind.
func (k TurnKind) String() string {
	switch k {
	case TurnAction:
		return "action"
	case TurnFinish:
		return "finish"
	default:
		return "error"
	}
}

// Turn is the structured intent extracted from one model response.
type Turn struct {
	Kind        TurnKind
	Thought     string
	Action      string
	ActionInput string
	Answer      string
	Err         error

	// finalField is set when the answer came from a "Final Answer" line.
	finalField bool
}

// Transcript renders the turn for the scratchpad. Anything the model wrote
// after its action, such as an invented observation, is left out.
func (t *Turn) Transcript(step int) string {
	var lines []string
	if t.Thought != "" {
		lines = append(lines, fmt.Sprintf("Thought %d: %s", step, t.Thought))
	}
	switch t.Kind {
	case TurnAction:
		lines = append(lines, fmt.Sprintf("Action %d: %s", step, t.Action))
		if t.ActionInput != "" {
			lines = append(lines, fmt.Sprintf("Action Input %d: %s", step, t.ActionInput))
		}
	case TurnFinish:
		if t.finalField {
			lines = append(lines, "Final Answer: "+t.Answer)
		} else {
			lines = append(lines, fmt.Sprintf("Action %d: finish[%s]", step, t.Answer))
		}
	}
	return strings.Join(lines, "\n")
}

const (
	fieldThought     = "thought"
	fieldAction      = "action"
	fieldActionInput = "action input"
	fieldObservation = "observation"
	fieldFinalAnswer = "final answer"
)

// A field line: the name, an optional step number, then a colon or space.
var fieldPattern = regexp.MustCompile(`(?i)^\s*(thought|action\s+input|action|observation|final\s+answer)(?:\s*\d+)?\s*(?:[:：]|\s|$)(.*)$`)

// ParseResponse extracts the thought and the next action from model output.
//
// Recognized lines are Thought, Action, Action Input, Observation and Final
// Answer, each optionally numbered ("Action 2:") and with an optional colon.
// Thought, Action Input and Final Answer continue over following lines.
// Parsing stops at an Observation line or at the first repeated field, so a
// model that runs ahead and writes several steps only has its first one used.
//
// An Action starting with "finish" ends the run with the bracketed payload as
// the answer. Any other Action names a tool, either with a separate Action
// Input line or inline as Name[input].
func ParseResponse(text string) *Turn {
	if strings.TrimSpace(text) == "" {
		return parseError("empty response")
	}

	fields := make(map[string][]string)
	var order []string
	current := ""
	implicit := false

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if m := fieldPattern.FindStringSubmatch(line); m != nil {
			name := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
			if name == fieldObservation {
				break
			}
			if name == fieldThought && implicit {
				fields[fieldThought] = append(fields[fieldThought], strings.TrimSpace(m[2]))
				implicit = false
				current = fieldThought
				continue
			}
			if _, dup := fields[name]; dup {
				break
			}
			fields[name] = []string{strings.TrimSpace(m[2])}
			order = append(order, name)
			current = name
			continue
		}

		switch current {
		case "":
			// Text before any field is the thought; the prompt ends with "Thought N:".
			if strings.TrimSpace(line) != "" {
				fields[fieldThought] = []string{line}
				order = append(order, fieldThought)
				current = fieldThought
				implicit = true
			}
		case fieldThought, fieldActionInput, fieldFinalAnswer:
			fields[current] = append(fields[current], line)
		}
	}

	value := func(name string) string {
		return strings.TrimSpace(strings.Join(fields[name], "\n"))
	}
	_, hasAction := fields[fieldAction]
	_, hasFinal := fields[fieldFinalAnswer]
	_, hasInput := fields[fieldActionInput]

	turn := &Turn{Thought: value(fieldThought)}

	if hasAction && (!hasFinal || indexOf(order, fieldAction) < indexOf(order, fieldFinalAnswer)) {
		action := strings.Trim(value(fieldAction), "`* ")
		if action == "" {
			return withThought(parseError("empty action"), turn.Thought)
		}

		if strings.HasPrefix(strings.ToLower(action), "finish") {
			answer := action
			if payload, ok := bracketed(action); ok {
				answer = payload
			} else if hasInput && value(fieldActionInput) != "" {
				answer = value(fieldActionInput)
			}
			answer = strings.TrimSpace(answer)
			if answer == "" {
				return withThought(parseError("empty final answer"), turn.Thought)
			}
			turn.Kind = TurnFinish
			turn.Answer = answer
			return turn
		}

		name, inline := splitAction(action)
		if name == "" {
			return withThought(parseError("empty tool name"), turn.Thought)
		}
		turn.Kind = TurnAction
		turn.Action = name
		turn.ActionInput = inline
		if hasInput {
			turn.ActionInput = value(fieldActionInput)
		}
		return turn
	}

	if hasFinal {
		answer := value(fieldFinalAnswer)
		if answer == "" {
			return withThought(parseError("empty final answer"), turn.Thought)
		}
		turn.Kind = TurnFinish
		turn.Answer = answer
		turn.finalField = true
		return turn
	}

	return withThought(parseError("missing Action field"), turn.Thought)
}

func parseError(reason string) *Turn {
	return &Turn{Kind: TurnError, Err: fmt.Errorf("%w: %s", ErrParse, reason)}
}

func withThought(t *Turn, thought string) *Turn {
	t.Thought = thought
	return t
}

// bracketed returns the text between the first '[' and the last ']'.
func bracketed(s string) (string, bool) {
	i := strings.Index(s, "[")
	j := strings.LastIndex(s, "]")
	if i < 0 || j <= i {
		return "", false
	}
	return s[i+1 : j], true
}

// splitAction turns "[Name]", "Name" or "Name[input]" into the tool name and
// the inline input.
func splitAction(action string) (string, string) {
	if strings.HasPrefix(action, "[") && strings.HasSuffix(action, "]") {
		return strings.TrimSpace(action[1 : len(action)-1]), ""
	}
	if i := strings.Index(action, "["); i > 0 && strings.HasSuffix(action, "]") {
		return strings.TrimSpace(action[:i]), strings.TrimSpace(action[i+1 : len(action)-1])
	}
	return action, ""
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
