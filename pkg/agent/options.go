package agent

import (
	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/llm"
	"github.com/finqa/finqa-agent-go/pkg/memory"
	"github.com/finqa/finqa-agent-go/pkg/planner"
)

// DefaultMaxSteps bounds the reasoning turns of one run.
const DefaultMaxSteps = 5

// DefaultKnowledgeTopK is the number of schema chunks put into the prompt.
const DefaultKnowledgeTopK = 5

// Option configures an Agent.
type Option func(*Agent)

// WithMaxSteps sets the reasoning turn limit. Values below 1 are ignored.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithMemoryStore records every transition in store.
func WithMemoryStore(store memory.Store) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithPlanner builds an advisory plan before the first reasoning turn.
func WithPlanner(b *planner.Builder) Option {
	return func(a *Agent) {
		a.planner = b
	}
}

// WithKnowledge retrieves schema context for the query once per run.
func WithKnowledge(r knowledge.Retriever, topK int) Option {
	return func(a *Agent) {
		a.retriever = r
		if topK > 0 {
			a.knowledgeTopK = topK
		}
	}
}

// WithInstructions replaces DefaultInstructions.
func WithInstructions(instructions string) Option {
	return func(a *Agent) {
		a.instructions = instructions
	}
}

// WithGenerateOptions appends generation options for every reasoning call.
func WithGenerateOptions(opts ...llm.GenerateOption) Option {
	return func(a *Agent) {
		a.genOpts = append(a.genOpts, opts...)
	}
}

// WithTokenHandler receives model output as it is produced. It takes effect
// when the provider implements llm.Streamer.
func WithTokenHandler(fn func(step int, delta string)) Option {
	return func(a *Agent) {
		a.onToken = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}
