package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// LLMDelegate plans by prompting an OpenAI-compatible chat model.
type LLMDelegate struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
	log         *logging.Logger
}

// NewLLMDelegate creates a delegate from planner configuration.
func NewLLMDelegate(cfg config.PlannerConfig, log *logging.Logger) (*LLMDelegate, error) {
	token := cfg.APIKey.Value()
	if token == "" {
		// The client constructor requires a token even for local
		// OpenAI-compatible endpoints that ignore it.
		token = "unset"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return &LLMDelegate{
		llm:         llm,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		log:         log.Named("planner"),
	}, nil
}

var _ StreamingDelegate = (*LLMDelegate)(nil)

// Plan requests a plan without streaming reasoning chunks.
func (d *LLMDelegate) Plan(ctx context.Context, snapshot Snapshot, task string) (*Plan, error) {
	return d.PlanStream(ctx, snapshot, task, nil)
}

// PlanStream requests a plan, forwarding each reasoning chunk to
// onChunk as it arrives. The terminal output must parse as a plan.
func (d *LLMDelegate) PlanStream(ctx context.Context, snapshot Snapshot, task string, onChunk func(string)) (*Plan, error) {
	prompt, err := buildPrompt(snapshot, task)
	if err != nil {
		return nil, err
	}

	opts := []llms.CallOption{
		llms.WithMaxTokens(d.maxTokens),
		llms.WithTemperature(d.temperature),
	}
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onChunk(string(chunk))
			return nil
		}))
	}

	completion, err := llms.GenerateFromSinglePrompt(ctx, d.llm, prompt, opts...)
	if err != nil {
		return nil, fmt.Errorf("planning delegate call: %w", err)
	}

	plan, err := ParsePlan(completion)
	if err != nil {
		d.log.Warn(ctx, "delegate output did not parse as a plan",
			zap.Int("output_len", len(completion)),
			zap.Error(err),
		)
		return nil, err
	}
	d.log.Info(ctx, "plan ready",
		zap.String("strategy", plan.Strategy),
		zap.Int("steps", len(plan.Steps)),
	)
	return plan, nil
}

// buildPrompt embeds the snapshot as JSON and demands a strict JSON
// reply in the wire plan shape.
func buildPrompt(snapshot Snapshot, task string) (string, error) {
	resources, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are the coordinator of a multi-agent system. A user submitted a task; ")
	b.WriteString("analyze it and decide how to execute it using only the resources below.\n\n")
	b.WriteString("Available system resources:\n")
	b.Write(resources)
	b.WriteString("\n\nUser task:\n")
	b.WriteString(task)
	b.WriteString("\n\nReply with a single JSON object and nothing else, in exactly this shape:\n")
	b.WriteString(`{
  "analysis": "how you understand the task",
  "execution_strategy": "single_agent|multi_agent|tool_only|hybrid",
  "execution_plan": [
    {
      "step": 1,
      "action": "agent_call|tool_use",
      "target": "agent id or tool name",
      "task": "concrete instruction for this step",
      "parameters": {},
      "dependencies": []
    }
  ]
}`)
	b.WriteString("\n\nRules: target every step at an agent id or tool name that exists in the ")
	b.WriteString("resources above; dependencies list the step numbers whose output this step ")
	b.WriteString("needs, and may only reference earlier steps.")
	return b.String(), nil
}
