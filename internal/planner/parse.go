package planner

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// wirePlan is the JSON shape the delegate is instructed to produce.
type wirePlan struct {
	Analysis          string     `json:"analysis"`
	ExecutionStrategy string     `json:"execution_strategy"`
	ExecutionPlan     []wireStep `json:"execution_plan"`
}

type wireStep struct {
	Step         int            `json:"step"`
	Action       string         `json:"action"`
	Target       string         `json:"target"`
	Task         string         `json:"task"`
	Parameters   map[string]any `json:"parameters"`
	Dependencies []any          `json:"dependencies"`
}

// ParsePlan extracts and validates a plan from raw delegate output.
// Models wrap JSON in prose or code fences; extraction tolerates both.
func ParsePlan(raw string) (*Plan, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in delegate output", ErrMalformedPlan)
	}

	var wire wirePlan
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}

	strategy, err := normalizeStrategy(wire.ExecutionStrategy)
	if err != nil {
		return nil, err
	}
	if len(wire.ExecutionPlan) == 0 {
		return nil, fmt.Errorf("%w: empty execution plan", ErrMalformedPlan)
	}

	steps := make([]Step, 0, len(wire.ExecutionPlan))
	for slot, ws := range wire.ExecutionPlan {
		step, err := parseStep(slot, ws)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return &Plan{
		Strategy: strategy,
		Analysis: wire.Analysis,
		Steps:    steps,
	}, nil
}

func parseStep(slot int, ws wireStep) (Step, error) {
	var kind StepKind
	switch ws.Action {
	case "agent_call":
		kind = StepAgent
	case "tool_use":
		kind = StepTool
	default:
		return Step{}, fmt.Errorf("%w: step %d has unknown action %q", ErrMalformedPlan, slot+1, ws.Action)
	}
	if ws.Target == "" {
		return Step{}, fmt.Errorf("%w: step %d has no target", ErrMalformedPlan, slot+1)
	}

	deps, err := parseDependencies(slot, ws.Dependencies)
	if err != nil {
		return Step{}, err
	}

	return Step{
		Kind:      kind,
		Target:    ws.Target,
		Task:      ws.Task,
		Params:    ws.Parameters,
		DependsOn: deps,
	}, nil
}

// parseDependencies converts one-based step numbers (numeric or string)
// into zero-based slot indices. A dependency must point at an earlier
// step, which keeps every well-formed plan acyclic.
func parseDependencies(slot int, raw []any) ([]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	deps := make([]int, 0, len(raw))
	for _, entry := range raw {
		var n int
		switch v := entry.(type) {
		case float64:
			n = int(v)
		case string:
			parsed, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%w: step %d has non-numeric dependency %q", ErrMalformedPlan, slot+1, v)
			}
			n = parsed
		default:
			return nil, fmt.Errorf("%w: step %d has dependency of type %T", ErrMalformedPlan, slot+1, entry)
		}
		if n < 1 || n > slot {
			return nil, fmt.Errorf("%w: step %d depends on step %d, which is not an earlier step", ErrMalformedPlan, slot+1, n)
		}
		deps = append(deps, n-1)
	}
	return deps, nil
}

func normalizeStrategy(strategy string) (string, error) {
	switch strategy {
	case StrategySingleAgent, StrategyMultiAgent, StrategyToolOnly, StrategyHybrid:
		return strategy, nil
	case "mcp_tools":
		// Older delegates name the tool-only strategy after the tool
		// protocol.
		return StrategyToolOnly, nil
	case "":
		return "", fmt.Errorf("%w: missing execution_strategy", ErrMalformedPlan)
	default:
		return "", fmt.Errorf("%w: unknown execution_strategy %q", ErrMalformedPlan, strategy)
	}
}

// extractJSON locates the outermost JSON object in model output,
// stripping code fences first.
func extractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
