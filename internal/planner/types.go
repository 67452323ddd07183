// Package planner turns a system snapshot plus a task description into
// an execution plan by delegating the decision to an LLM behind an
// OpenAI-compatible API. The package never synthesizes a fallback plan:
// if the delegate's terminal output is not a well-formed plan, planning
// fails.
package planner

import "context"

// Execution strategies a plan may declare.
const (
	StrategySingleAgent = "single_agent"
	StrategyMultiAgent  = "multi_agent"
	StrategyToolOnly    = "tool_only"
	StrategyHybrid      = "hybrid"
)

// StepKind says what a plan step targets.
type StepKind string

const (
	StepAgent StepKind = "agent"
	StepTool  StepKind = "tool"
)

// AgentInfo is the planner-visible view of a discovered agent.
type AgentInfo struct {
	ID           string   `json:"id"`
	Endpoint     string   `json:"endpoint"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities"`
	Protocol     string   `json:"protocol"`
}

// ToolInfo is the planner-visible view of a discovered tool.
type ToolInfo struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Snapshot is the system state handed to the delegate: who is reachable
// and what they can do. The delegate must plan only against this.
type Snapshot struct {
	Agents []AgentInfo `json:"agents"`
	Tools  []ToolInfo  `json:"tools"`
}

// Step is one unit of a plan. DependsOn holds zero-based slot indices
// of steps that must succeed before this one runs.
type Step struct {
	Kind      StepKind       `json:"kind"`
	Target    string         `json:"target"`
	Task      string         `json:"task"`
	Params    map[string]any `json:"params,omitempty"`
	DependsOn []int          `json:"depends_on,omitempty"`
}

// Plan is the delegate's decision.
type Plan struct {
	Strategy string `json:"strategy"`
	Analysis string `json:"analysis,omitempty"`
	Steps    []Step `json:"steps"`
}

// Delegate produces a plan for a task.
type Delegate interface {
	Plan(ctx context.Context, snapshot Snapshot, task string) (*Plan, error)
}

// StreamingDelegate additionally surfaces incremental reasoning chunks
// before the terminal plan.
type StreamingDelegate interface {
	Delegate
	PlanStream(ctx context.Context, snapshot Snapshot, task string, onChunk func(string)) (*Plan, error)
}
