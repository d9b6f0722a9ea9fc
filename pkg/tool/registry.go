package tool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateTool is returned when two tools share a name.
	ErrDuplicateTool = errors.New("tool: duplicate tool name")

	// ErrEmptyName is returned when a tool has no name.
	ErrEmptyName = errors.New("tool: empty tool name")
)

// Registry holds the tools available to an agent, in registration order.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return ErrEmptyName
	}
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get looks a tool up by exact name. "querydb" does not match "QueryDB".
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Describe renders the tool catalog for the system prompt.
func (r *Registry) Describe() string {
	if r.Len() == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.order))
	for i, name := range r.order {
		lines = append(lines, fmt.Sprintf("(%d) %s: %s", i+1, name, r.tools[name].Description()))
	}
	return strings.Join(lines, "\n")
}
