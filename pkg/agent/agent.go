// Package agent runs the bounded reasoning and tool-call loop that answers a
// financial question.
//
// Each run alternates between a reasoning phase, where the model is prompted
// with the tool catalog and the scratchpad and its response is parsed, and a
// tool dispatch phase, where the chosen tool is called and its output is
// appended as an observation. The run ends with a final answer or with an
// error that matches one of ErrParse, ErrToolNotFound, ErrToolFailed,
// ErrStepLimit, ErrLLM or ErrCanceled. The partial transcript is returned
// either way.
//
// Example:
//
//	a := agent.New(provider, registry, agent.WithMaxSteps(5))
//	res, err := a.Invoke(ctx, "What was the closing price of 600519 on 20210105?")
//	if err != nil {
//	    log.Printf("failed after %d steps: %v", res.StepsTaken, err)
//	}
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/knowledge"
	"github.com/finqa/finqa-agent-go/pkg/llm"
	"github.com/finqa/finqa-agent-go/pkg/memory"
	"github.com/finqa/finqa-agent-go/pkg/planner"
	"github.com/finqa/finqa-agent-go/pkg/tool"
)

// Agent is the execution state machine. It is safe for concurrent use as
// long as its collaborators are; each run has its own state.
type Agent struct {
	llm           llm.Provider
	tools         *tool.Registry
	store         memory.Store
	recorder      *memory.Recorder
	planner       *planner.Builder
	retriever     knowledge.Retriever
	knowledgeTopK int
	maxSteps      int
	instructions  string
	genOpts       []llm.GenerateOption
	onToken       func(step int, delta string)
	logger        *zap.Logger
}

// New creates an agent. tools may be nil for a model-only agent.
func New(provider llm.Provider, tools *tool.Registry, opts ...Option) *Agent {
	a := &Agent{
		llm:           provider,
		tools:         tools,
		knowledgeTopK: DefaultKnowledgeTopK,
		maxSteps:      DefaultMaxSteps,
		instructions:  DefaultInstructions,
		genOpts:       []llm.GenerateOption{llm.WithStop("\nObservation")},
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.recorder = memory.NewRecorder(a.store, a.logger)
	return a
}

// MaxSteps returns the reasoning turn limit.
func (a *Agent) MaxSteps() int {
	return a.maxSteps
}

// Invoke runs the loop to completion. The Result is always non-nil and the
// returned error equals Result.Err.
func (a *Agent) Invoke(ctx context.Context, query string) (*Result, error) {
	st := a.run(ctx, query, nil)
	res := st.Result()
	return res, res.Err
}

// Stream runs the loop in a goroutine and sends a copy of the state after
// every transition. The last state sent has Finished set; the channel is then
// closed. The caller must drain the channel.
//
// Example:
//
//	for st := range a.Stream(ctx, query) {
//	    fmt.Println(st.Phase, st.CurrentStep)
//	    if st.Finished && st.Err != nil {
//	        log.Println(st.Err)
//	    }
//	}
func (a *Agent) Stream(ctx context.Context, query string) <-chan *ExecutionState {
	out := make(chan *ExecutionState, 1)

	go func() {
		defer close(out)
		a.run(ctx, query, func(st *ExecutionState) {
			out <- st.Clone()
		})
	}()

	return out
}

func (a *Agent) run(ctx context.Context, query string, emit func(*ExecutionState)) *ExecutionState {
	st := newState(query, a.maxSteps)
	a.logger.Info("invoke started", zap.String("query", query), zap.Int("max_steps", a.maxSteps))
	a.recorder.Record(ctx, "invoke started for query: "+query, memory.KindAction,
		map[string]interface{}{"max_steps": a.maxSteps})

	if err := a.prepare(ctx, st); err != nil {
		a.fail(ctx, st, err)
	}

	emitted := false
	for !st.Finished {
		switch st.Phase {
		case PhaseReasoning:
			a.reason(ctx, st)
		case PhaseToolDispatch:
			a.dispatch(ctx, st)
		}
		if emit != nil {
			emit(st)
			emitted = true
		}
	}
	if emit != nil && !emitted {
		// failed while preparing
		emit(st)
	}

	if st.Err != nil {
		a.logger.Warn("invoke failed", zap.Int("steps", st.CurrentStep), zap.Error(st.Err))
	} else {
		a.logger.Info("invoke finished", zap.Int("steps", st.CurrentStep))
	}
	return st
}

// prepare builds the plan and retrieves knowledge before the first turn.
func (a *Agent) prepare(ctx context.Context, st *ExecutionState) error {
	if a.planner != nil {
		plan, err := a.planner.CreatePlan(ctx, st.Query, nil)
		if err != nil {
			return canceled("plan", err)
		}
		st.Plan = plan.Steps
		st.planHint = plan.Hint()
	}

	if a.retriever != nil {
		hits, err := a.retriever.Retrieve(ctx, st.Query, a.knowledgeTopK)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return canceled("knowledge", ctxErr)
			}
			// Schema context is advisory; run without it.
			a.logger.Warn("knowledge retrieval failed", zap.Error(err))
		} else {
			st.Knowledge = knowledge.FormatHits(hits)
			a.recorder.Record(ctx, fmt.Sprintf("retrieved %d schema chunks for query: %s", len(hits), st.Query),
				memory.KindContext, map[string]interface{}{"hits": len(hits)})
		}
	}
	return nil
}

func (a *Agent) reason(ctx context.Context, st *ExecutionState) {
	if err := ctx.Err(); err != nil {
		a.fail(ctx, st, canceled("reasoning", err))
		return
	}
	if st.CurrentStep >= st.MaxSteps {
		a.fail(ctx, st, &StepLimitError{MaxSteps: st.MaxSteps})
		return
	}

	st.CurrentStep++
	step := st.CurrentStep
	if ps := st.planStep(step); ps != nil {
		a.transitionPlan(ps, planner.StatusExecuting, "")
	}
	a.recorder.Record(ctx, fmt.Sprintf("reasoning step %d for query: %s", step, st.Query),
		memory.KindAction, map[string]interface{}{"step": step})

	text, usage, err := a.generate(ctx, a.buildPrompt(st), step)
	st.Usage = st.Usage.Add(usage)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// output produced under a canceled ctx may be cut short
		a.fail(ctx, st, canceled("reasoning", ctxErr))
		return
	}
	if err != nil {
		a.fail(ctx, st, &Error{Kind: ErrLLM, Op: "reasoning", Err: err})
		return
	}

	turn := ParseResponse(text)
	a.logger.Debug("parsed response",
		zap.Int("step", step),
		zap.String("kind", turn.Kind.String()),
		zap.String("action", turn.Action),
	)

	switch turn.Kind {
	case TurnFinish:
		st.Scratchpad = append(st.Scratchpad, turn.Transcript(step))
		a.recorder.Record(ctx, fmt.Sprintf("step %d produced the final answer", step),
			memory.KindResult, map[string]interface{}{"step": step})
		if ps := st.planStep(step); ps != nil {
			a.transitionPlan(ps, planner.StatusCompleted, turn.Answer)
		}
		a.succeed(ctx, st, turn.Answer)

	case TurnAction:
		st.Scratchpad = append(st.Scratchpad, turn.Transcript(step))
		a.recorder.Record(ctx, fmt.Sprintf("step %d selected tool %s", step, turn.Action),
			memory.KindResult, map[string]interface{}{"step": step, "tool": turn.Action})

		if st.CurrentStep >= st.MaxSteps {
			a.fail(ctx, st, &StepLimitError{MaxSteps: st.MaxSteps})
			return
		}
		st.Pending = &Action{Tool: turn.Action, Input: turn.ActionInput}
		st.Phase = PhaseToolDispatch

	default:
		a.fail(ctx, st, turn.Err)
	}
}

func (a *Agent) dispatch(ctx context.Context, st *ExecutionState) {
	if err := ctx.Err(); err != nil {
		a.fail(ctx, st, canceled("tool_dispatch", err))
		return
	}

	act := st.Pending
	t, ok := a.tools.Get(act.Tool)
	if !ok {
		a.fail(ctx, st, fmt.Errorf("%w: %q", ErrToolNotFound, act.Tool))
		return
	}

	step := st.CurrentStep
	a.recorder.Record(ctx, fmt.Sprintf("step %d calling tool %s with input: %s", step, act.Tool, act.Input),
		memory.KindAction, map[string]interface{}{"step": step, "tool": act.Tool})

	output, err := t.Call(ctx, act.Input)
	if err != nil {
		a.fail(ctx, st, &Error{Kind: ErrToolFailed, Op: act.Tool, Err: err})
		return
	}

	st.ToolResults = append(st.ToolResults, ToolResult{Tool: act.Tool, Input: act.Input, Output: output, Step: step})
	st.Scratchpad = append(st.Scratchpad, "Observation: "+output)
	st.Pending = nil
	st.Phase = PhaseReasoning

	a.recorder.Record(ctx, fmt.Sprintf("step %d tool %s returned: %s", step, act.Tool, output),
		memory.KindResult, map[string]interface{}{"step": step, "tool": act.Tool})
	if ps := st.planStep(step); ps != nil {
		a.transitionPlan(ps, planner.StatusCompleted, output)
	}
	a.logger.Debug("tool completed", zap.Int("step", step), zap.String("tool", act.Tool))
}

// generate calls the model, incrementally when a token handler is set and
// the provider can stream.
func (a *Agent) generate(ctx context.Context, prompt string, step int) (string, llm.Usage, error) {
	if streamer, ok := a.llm.(llm.Streamer); ok && a.onToken != nil {
		stream, err := streamer.GenerateStream(ctx, prompt, a.genOpts...)
		if err != nil {
			return "", llm.Usage{}, err
		}
		return llm.Collect(stream, func(delta string) { a.onToken(step, delta) })
	}

	if r, ok := a.llm.(llm.UsageReporter); ok {
		return r.GenerateWithUsage(ctx, prompt, a.genOpts...)
	}
	text, err := a.llm.Generate(ctx, prompt, a.genOpts...)
	return text, llm.Usage{}, err
}

func (a *Agent) succeed(ctx context.Context, st *ExecutionState, answer string) {
	st.FinalAnswer = answer
	st.Phase = PhaseFinished
	st.Finished = true
	a.recorder.Record(ctx, "final answer: "+answer, memory.KindResult,
		map[string]interface{}{"steps": st.CurrentStep})
}

func (a *Agent) fail(ctx context.Context, st *ExecutionState, err error) {
	if ps := st.planStep(st.CurrentStep); ps != nil && ps.Status == planner.StatusExecuting {
		a.transitionPlan(ps, planner.StatusFailed, err.Error())
	}
	st.Err = err
	st.Pending = nil
	st.Phase = PhaseFinished
	st.Finished = true

	if ctx.Err() != nil {
		// keep the failure in the trail even when the run was canceled
		ctx = context.Background()
	}
	a.recorder.Record(ctx, fmt.Sprintf("step %d failed: %v", st.CurrentStep, err), memory.KindResult,
		map[string]interface{}{"step": st.CurrentStep, "error": true})
}

func (a *Agent) transitionPlan(ps *planner.PlanStep, to planner.StepStatus, result string) {
	if err := ps.Transition(to); err != nil {
		a.logger.Debug("plan step not advanced", zap.Error(err))
		return
	}
	ps.Result = result
}
