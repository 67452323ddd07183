// Package coordinator runs tasks end to end: snapshot the system, ask
// the planning delegate for a plan, execute the plan's steps against
// agents and tools with dependency-aware concurrency, and aggregate the
// outcome while streaming lifecycle events.
package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/a2a"
	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/discovery"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
	"github.com/fyrsmithlabs/orchestrd/internal/mcp"
	"github.com/fyrsmithlabs/orchestrd/internal/planner"
)

// AgentSource provides the discovered agent set.
type AgentSource interface {
	Agents() []discovery.Agent
	Get(id string) (discovery.Agent, bool)
}

// AgentCaller dispatches a step to a remote agent.
type AgentCaller interface {
	SendTask(ctx context.Context, endpoint string, req a2a.SendTaskRequest) (json.RawMessage, error)
	CallCapability(ctx context.Context, endpoint string, req a2a.CapabilityRequest) (*a2a.CapabilityResponse, error)
}

// ToolCaller invokes discovered tools.
type ToolCaller interface {
	Tools() []mcp.ToolDescriptor
	CallTool(ctx context.Context, provider, tool string, args map[string]any) (*mcp.ToolResult, error)
}

// Coordinator owns the task lifecycle.
type Coordinator struct {
	agents   AgentSource
	caller   AgentCaller
	tools    ToolCaller
	delegate planner.StreamingDelegate
	timeouts config.TimeoutConfig
	log      *logging.Logger

	mu   sync.RWMutex
	runs map[string]*TaskRun
}

// New creates a Coordinator.
func New(agents AgentSource, caller AgentCaller, tools ToolCaller, delegate planner.StreamingDelegate, timeouts config.TimeoutConfig, log *logging.Logger) *Coordinator {
	return &Coordinator{
		agents:   agents,
		caller:   caller,
		tools:    tools,
		delegate: delegate,
		timeouts: timeouts,
		log:      log.Named("coordinator"),
		runs:     make(map[string]*TaskRun),
	}
}

// Get returns a snapshot of an in-flight run. Runs leave the registry
// once their terminal state has been delivered.
func (c *Coordinator) Get(id string) (RunSnapshot, bool) {
	c.mu.RLock()
	run, ok := c.runs[id]
	c.mu.RUnlock()
	if !ok {
		return RunSnapshot{}, false
	}
	return run.Snapshot(), true
}

// Running returns snapshots of all in-flight runs.
func (c *Coordinator) Running() []RunSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RunSnapshot, 0, len(c.runs))
	for _, run := range c.runs {
		out = append(out, run.Snapshot())
	}
	return out
}

// Process runs one task to a terminal state. emitter may be nil for
// callers that only want the returned run. The returned error is nil
// when the task reached a terminal state through plan execution, even
// a failed one; it is non-nil when planning failed or the task-level
// deadline expired.
func (c *Coordinator) Process(ctx context.Context, description string, emitter *EventEmitter) (*TaskRun, error) {
	run := newTaskRun(uuid.NewString(), description)
	ctx = logging.WithTaskID(ctx, run.id)

	c.mu.Lock()
	c.runs[run.id] = run
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.runs, run.id)
		c.mu.Unlock()
	}()

	c.log.Info(ctx, "task accepted", zap.String("description", description))
	c.emit(emitter, Event{Type: EventTaskAccepted, TaskID: run.id})

	run.setStatus(StatusAnalyzing)
	c.emit(emitter, Event{Type: EventPlanningStarted, TaskID: run.id})

	plan, err := c.delegate.PlanStream(ctx, c.systemSnapshot(), description, func(chunk string) {
		c.emit(emitter, Event{Type: EventPlanningProgress, TaskID: run.id, Chunk: chunk})
	})
	if err != nil {
		c.log.Warn(ctx, "planning failed", zap.Error(err))
		run.setStatus(StatusFailed)
		c.emit(emitter, Event{Type: EventTaskFailed, TaskID: run.id, Error: err.Error()})
		return run, err
	}

	run.setPlan(plan)
	run.setStatus(StatusPlanned)
	c.emit(emitter, Event{Type: EventPlanReady, TaskID: run.id, Plan: plan})

	run.setStatus(StatusExecuting)
	execCtx, cancel := context.WithTimeout(ctx, c.timeouts.TaskProcessing.Duration())
	timedOut := c.executePlan(execCtx, run, emitter)
	cancel()

	run.setStatus(StatusAggregating)
	agg := c.aggregate(run, timedOut)
	run.setAggregate(agg)

	if agg.Success {
		run.setStatus(StatusCompleted)
		c.log.Info(ctx, "task completed", zap.Int("steps", len(agg.Steps)))
		c.emit(emitter, Event{Type: EventTaskCompleted, TaskID: run.id, Aggregate: agg})
		return run, nil
	}

	run.setStatus(StatusFailed)
	c.log.Warn(ctx, "task failed", zap.String("reason", agg.Error))
	c.emit(emitter, Event{Type: EventTaskFailed, TaskID: run.id, Aggregate: agg, Error: agg.Error})
	if timedOut {
		return run, ErrTaskTimeout
	}
	return run, nil
}

// systemSnapshot assembles the planner-visible view of the system.
func (c *Coordinator) systemSnapshot() planner.Snapshot {
	agents := c.agents.Agents()
	infos := make([]planner.AgentInfo, 0, len(agents))
	for _, agent := range agents {
		infos = append(infos, planner.AgentInfo{
			ID:           agent.ID,
			Endpoint:     agent.Endpoint,
			Description:  agent.Description,
			Capabilities: agent.Capabilities,
			Protocol:     agent.Protocol,
		})
	}

	tools := c.tools.Tools()
	toolInfos := make([]planner.ToolInfo, 0, len(tools))
	for _, tool := range tools {
		toolInfos = append(toolInfos, planner.ToolInfo{
			Provider:    tool.Provider,
			Name:        tool.Name,
			Description: tool.Description,
		})
	}

	return planner.Snapshot{Agents: infos, Tools: toolInfos}
}

// aggregate builds the final document in plan order.
func (c *Coordinator) aggregate(run *TaskRun, timedOut bool) *Aggregate {
	snap := run.Snapshot()

	agg := &Aggregate{
		TaskID:   run.id,
		Strategy: snap.Plan.Strategy,
		Success:  true,
		Steps:    snap.Steps,
	}
	for _, step := range snap.Steps {
		if step.Status != StepSucceeded {
			agg.Success = false
			break
		}
	}
	if timedOut {
		agg.Error = ErrTaskTimeout.Error()
	} else if !agg.Success {
		agg.Error = "one or more steps failed"
	}
	return agg
}

func (c *Coordinator) emit(emitter *EventEmitter, event Event) {
	if emitter == nil {
		return
	}
	event.Timestamp = time.Now()
	emitter.Emit(event)
}
