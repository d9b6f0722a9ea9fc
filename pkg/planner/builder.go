package planner

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/finqa/finqa-agent-go/pkg/memory"
)

// DefaultTriggerKeywords insert the sql_generation step when found in the
// lower-cased query. Keywords written in ASCII must match a whole word (a
// trailing plural "s" is allowed), so "update" does not trigger on "date";
// other keywords match anywhere, since CJK text has no word breaks.
var DefaultTriggerKeywords = []string{
	"查询", "数据", "股票", "价格", "日期",
	"query", "data", "stock", "price", "date",
}

// Memories retrieved per kind while planning.
const memoryLookup = 3

type templateStep struct {
	action      Action
	description string
}

var baseTemplate = []templateStep{
	{ActionQueryUnderstanding, "parse the user query and extract the key information"},
	{ActionInformationRetrieval, "retrieve the relevant financial data and information"},
	{ActionDataAnalysis, "analyze the data and perform the necessary calculations"},
	{ActionAnswerGeneration, "generate the answer from the analysis"},
	{ActionValidation, "validate the accuracy and completeness of the answer"},
}

var sqlStep = templateStep{ActionSQLGeneration, "generate the SQL query"}

// Plan is the output of CreatePlan.
type Plan struct {
	Query string      `json:"query"`
	Steps []*PlanStep `json:"steps"`

	// StrategyMemories and ContextMemories were retrieved while planning.
	// They are carried for the prompt and never change Steps.
	StrategyMemories []*memory.Record `json:"strategy_memories"`
	ContextMemories  []*memory.Record `json:"context_memories"`
}

// Hint renders the plan as prompt text.
func (p *Plan) Hint() string {
	if p == nil || len(p.Steps) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Suggested plan:\n")
	for _, s := range p.Steps {
		fmt.Fprintf(&sb, "%d. %s: %s\n", s.StepID, s.Action, s.Description)
	}
	if len(p.StrategyMemories) > 0 {
		sb.WriteString("Strategies that worked before:\n")
		for _, m := range p.StrategyMemories {
			fmt.Fprintf(&sb, "- %s\n", m.Content)
		}
	}
	if len(p.ContextMemories) > 0 {
		sb.WriteString("Related context:\n")
		for _, m := range p.ContextMemories {
			fmt.Fprintf(&sb, "- %s\n", m.Content)
		}
	}
	return sb.String()
}

// Builder creates plans and records planning activity in memory.
type Builder struct {
	recorder *memory.Recorder
	keywords []string
	logger   *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithTriggerKeywords replaces the keywords that add the sql_generation step.
func WithTriggerKeywords(keywords ...string) Option {
	return func(b *Builder) {
		b.keywords = keywords
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a Builder. recorder may be nil, in which case nothing is
// retrieved or recorded.
func NewBuilder(recorder *memory.Recorder, opts ...Option) *Builder {
	b := &Builder{
		recorder: recorder,
		keywords: DefaultTriggerKeywords,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreatePlan builds the step plan for query. Extra context is merged into
// every step's parameters.
func (b *Builder) CreatePlan(ctx context.Context, query string, extra map[string]interface{}) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := &Plan{
		Query:            query,
		StrategyMemories: b.recorder.Retrieve(ctx, query, memoryLookup, memory.KindStrategy),
		ContextMemories:  b.recorder.Retrieve(ctx, query, memoryLookup, memory.KindContext),
	}
	if len(plan.StrategyMemories) > 0 {
		b.logger.Info("found relevant strategy memories", zap.Int("count", len(plan.StrategyMemories)))
	}

	ctxMeta := extra
	if ctxMeta == nil {
		ctxMeta = map[string]interface{}{}
	}
	b.recorder.Record(ctx, "plan started for query: "+query, memory.KindAction,
		map[string]interface{}{"context": ctxMeta})

	plan.Steps = b.steps(query, extra)

	b.recorder.Record(ctx,
		fmt.Sprintf("generated %d-step plan for query: %s", len(plan.Steps), truncate(query, 50)),
		memory.KindStrategy,
		map[string]interface{}{"plan_steps": len(plan.Steps)},
	)
	b.logger.Debug("created plan", zap.String("query", query), zap.Int("steps", len(plan.Steps)))
	return plan, nil
}

func (b *Builder) steps(query string, extra map[string]interface{}) []*PlanStep {
	template := make([]templateStep, 0, len(baseTemplate)+1)
	template = append(template, baseTemplate...)

	if b.triggersSQL(query) {
		template = append(template[:2], sqlStep)
		template = append(template, baseTemplate[2:]...)
	}

	steps := make([]*PlanStep, len(template))
	for i, t := range template {
		steps[i] = &PlanStep{
			StepID:      i + 1,
			Action:      t.action,
			Description: t.description,
			Parameters:  stepParameters(t.action, query, extra),
			Status:      StatusPending,
		}
	}
	return steps
}

func (b *Builder) triggersSQL(query string) bool {
	lower := strings.ToLower(query)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	}) {
		words[w] = true
	}

	for _, k := range b.keywords {
		k = strings.ToLower(k)
		switch {
		case k == "":
		case isASCII(k):
			if words[k] || words[k+"s"] {
				return true
			}
		case strings.Contains(lower, k):
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func stepParameters(action Action, query string, extra map[string]interface{}) map[string]interface{} {
	params := map[string]interface{}{"query": query}
	for k, v := range extra {
		params[k] = v
	}

	switch action {
	case ActionSQLGeneration:
		params["database_schema"] = "financial_data"
		params["table_hints"] = []string{"stock_data", "company_info", "market_data"}
	case ActionInformationRetrieval:
		params["search_domains"] = []string{"financial", "market", "company"}
		params["max_results"] = 10
	}
	return params
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
