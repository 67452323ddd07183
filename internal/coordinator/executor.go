package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/a2a"
	"github.com/fyrsmithlabs/orchestrd/internal/discovery"
	"github.com/fyrsmithlabs/orchestrd/internal/mcp"
	"github.com/fyrsmithlabs/orchestrd/internal/planner"
)

// stepOutcome is one finished step execution.
type stepOutcome struct {
	slot     int
	output   any
	err      error
	duration time.Duration
}

// executePlan dispatches steps as their dependencies resolve, any
// number of them concurrently. Returns true when the task-level
// deadline expired before every step finished.
func (c *Coordinator) executePlan(ctx context.Context, run *TaskRun, emitter *EventEmitter) bool {
	plan := run.Snapshot().Plan
	outcomes := make(chan stepOutcome, len(plan.Steps))
	running := 0

	for {
		// Dispatch every pending step whose dependencies are settled.
		// Failure cascades without dispatching, so loop to a fixed point.
		for progress := true; progress; {
			progress = false
			for slot, step := range plan.Steps {
				if run.stepStatus(slot) != StepPending {
					continue
				}
				ready, failErr := c.dependencyState(run, plan, step)
				if failErr != nil {
					run.markFailed(slot, failErr, 0)
					result := run.stepResult(slot)
					c.emit(emitter, Event{Type: EventStepCompleted, TaskID: run.id, Step: &result})
					progress = true
					continue
				}
				if !ready {
					continue
				}

				run.markRunning(slot)
				result := run.stepResult(slot)
				c.emit(emitter, Event{Type: EventStepDispatched, TaskID: run.id, Step: &result})
				running++
				go func(slot int, step planner.Step) {
					start := time.Now()
					output, err := c.executeStep(ctx, run, slot, step)
					outcomes <- stepOutcome{slot: slot, output: output, err: err, duration: time.Since(start)}
				}(slot, step)
			}
		}

		if running == 0 {
			// Nothing in flight and nothing dispatchable. Steps still
			// pending at this point wait on dependencies that can never
			// settle (a cycle from a custom delegate); fail them rather
			// than leaving them pending in the aggregate.
			c.markResidualUnresolved(run, plan, emitter)
			return false
		}

		select {
		case o := <-outcomes:
			running--
			if o.err != nil {
				run.markFailed(o.slot, o.err, o.duration)
			} else {
				run.markSucceeded(o.slot, o.output, o.duration)
			}
			result := run.stepResult(o.slot)
			c.emit(emitter, Event{Type: EventStepCompleted, TaskID: run.id, Step: &result})
		case <-ctx.Done():
			c.markResidualTimedOut(run, plan, emitter)
			return true
		}
	}
}

// dependencyState reports whether a step is dispatchable. A non-nil
// failErr means the step can never run: a dependency failed, or its
// declared index falls outside the plan. The parser rejects the latter
// for LLM plans, but any Delegate implementation can hand the
// coordinator a plan, so the check cannot live in the parser alone.
func (c *Coordinator) dependencyState(run *TaskRun, plan *planner.Plan, step planner.Step) (ready bool, failErr error) {
	for _, dep := range step.DependsOn {
		if dep < 0 || dep >= len(plan.Steps) {
			return false, fmt.Errorf("%w: step depends on slot %d outside the plan", ErrDependencyUnresolved, dep+1)
		}
		switch run.stepStatus(dep) {
		case StepFailed:
			return false, fmt.Errorf("%w: step %d failed", ErrDependencyUnresolved, dep+1)
		case StepSucceeded:
		default:
			return false, nil
		}
	}
	return true, nil
}

// markResidualUnresolved fails steps whose dependencies can never
// settle once nothing is running or dispatchable.
func (c *Coordinator) markResidualUnresolved(run *TaskRun, plan *planner.Plan, emitter *EventEmitter) {
	for slot := range plan.Steps {
		if run.stepStatus(slot) != StepPending {
			continue
		}
		run.markFailed(slot, fmt.Errorf("%w: dependency cycle", ErrDependencyUnresolved), 0)
		result := run.stepResult(slot)
		c.emit(emitter, Event{Type: EventStepCompleted, TaskID: run.id, Step: &result})
	}
}

// markResidualTimedOut fails every step the deadline caught mid-flight
// or still waiting.
func (c *Coordinator) markResidualTimedOut(run *TaskRun, plan *planner.Plan, emitter *EventEmitter) {
	for slot := range plan.Steps {
		status := run.stepStatus(slot)
		if status != StepPending && status != StepRunning {
			continue
		}
		run.markFailed(slot, ErrTaskTimeout, 0)
		result := run.stepResult(slot)
		c.emit(emitter, Event{Type: EventStepCompleted, TaskID: run.id, Step: &result})
	}
}

// executeStep runs one step against its agent or tool target.
func (c *Coordinator) executeStep(ctx context.Context, run *TaskRun, slot int, step planner.Step) (any, error) {
	deps := make(map[string]any, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		deps[fmt.Sprintf("step_%d", dep+1)] = run.stepOutput(dep)
	}

	switch step.Kind {
	case planner.StepAgent:
		return c.callAgent(ctx, run.id, slot, step, deps)
	case planner.StepTool:
		return c.callTool(ctx, step)
	default:
		return nil, fmt.Errorf("unsupported step kind %q", step.Kind)
	}
}

func (c *Coordinator) callAgent(ctx context.Context, taskID string, slot int, step planner.Step, deps map[string]any) (any, error) {
	agent, ok := c.agents.Get(step.Target)
	if !ok {
		return nil, fmt.Errorf("%w: agent %q is not discovered", a2a.ErrAgentUnreachable, step.Target)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeouts.AgentCommunication.Duration())
	defer cancel()

	if agent.Protocol == discovery.ProtocolA2A {
		data := make(map[string]any, len(step.Params)+1)
		for k, v := range step.Params {
			data[k] = v
		}
		if len(deps) > 0 {
			data["dependency_outputs"] = deps
		}

		raw, err := c.caller.SendTask(callCtx, agent.Endpoint, a2a.SendTaskRequest{
			TaskID:    fmt.Sprintf("%s-%d", taskID, slot+1),
			SessionID: taskID,
			Text:      step.Task,
			Data:      data,
		})
		if err != nil {
			return nil, err
		}
		return decodeOutput(raw), nil
	}

	// Legacy and capability-unknown agents get the plain-POST dialect.
	capability := step.Task
	if v, ok := step.Params["capability"].(string); ok && v != "" {
		capability = v
	}
	resp, err := c.caller.CallCapability(callCtx, agent.Endpoint, a2a.CapabilityRequest{
		Capability: capability,
		Parameters: step.Params,
		Context: map[string]any{
			"task_id":            taskID,
			"dependency_outputs": deps,
		},
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error == "" {
			return nil, fmt.Errorf("agent %q rejected the step", step.Target)
		}
		return nil, errors.New(resp.Error)
	}
	return decodeOutput(resp.Result), nil
}

func (c *Coordinator) callTool(ctx context.Context, step planner.Step) (any, error) {
	provider, tool, err := c.resolveTool(step.Target)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeouts.ToolCall.Duration())
	defer cancel()

	result, err := c.tools.CallTool(callCtx, provider, tool, step.Params)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		if result.Error == "" {
			return nil, fmt.Errorf("tool %q reported failure", step.Target)
		}
		return nil, errors.New(result.Error)
	}
	return decodeOutput(result.Content), nil
}

// resolveTool maps a plan target to a provider and tool name. Targets
// may be qualified ("provider:tool") or bare, in which case the cached
// tool set is searched.
func (c *Coordinator) resolveTool(target string) (provider, tool string, err error) {
	if p, t, ok := strings.Cut(target, ":"); ok {
		return p, t, nil
	}
	for _, desc := range c.tools.Tools() {
		if desc.Name == target {
			return desc.Provider, desc.Name, nil
		}
	}
	c.log.Debug(context.Background(), "tool target unresolved", zap.String("target", target))
	return "", "", fmt.Errorf("%w: no provider exposes tool %q", mcp.ErrUnknownTool, target)
}

// decodeOutput keeps structured step outputs structured in the
// aggregate instead of as raw JSON bytes.
func decodeOutput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}
