package coordinator

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/orchestrd/internal/planner"
)

// Status is the lifecycle state of a task run.
type Status string

const (
	StatusAccepted    Status = "accepted"
	StatusAnalyzing   Status = "analyzing"
	StatusPlanned     Status = "planned"
	StatusExecuting   Status = "executing"
	StatusAggregating Status = "aggregating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// StepStatus is the state of one plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepResult is the slot-ordered outcome record of one plan step. Slot
// is the step's position in the plan, stable regardless of completion
// order.
type StepResult struct {
	Slot     int              `json:"slot"`
	Kind     planner.StepKind `json:"kind"`
	Target   string           `json:"target"`
	Task     string           `json:"task,omitempty"`
	Status   StepStatus       `json:"status"`
	Output   any              `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration_ns,omitempty"`
}

// Aggregate is the final task document: every step in plan order, with
// failures marked rather than omitted.
type Aggregate struct {
	TaskID   string       `json:"task_id"`
	Strategy string       `json:"strategy"`
	Success  bool         `json:"success"`
	Steps    []StepResult `json:"steps"`
	Error    string       `json:"error,omitempty"`
}

// TaskRun is the in-memory record of one task. Mutations happen under
// the mutex; readers take Snapshot copies.
type TaskRun struct {
	mu sync.RWMutex

	id          string
	description string
	status      Status
	plan        *planner.Plan
	steps       []StepResult
	aggregate   *Aggregate
	createdAt   time.Time
	completedAt time.Time
}

func newTaskRun(id, description string) *TaskRun {
	return &TaskRun{
		id:          id,
		description: description,
		status:      StatusAccepted,
		createdAt:   time.Now(),
	}
}

// ID returns the task identifier.
func (r *TaskRun) ID() string { return r.id }

// Status returns the current lifecycle state.
func (r *TaskRun) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Aggregate returns the final document, nil before aggregation.
func (r *TaskRun) Aggregate() *Aggregate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aggregate
}

// RunSnapshot is a copy of a run's externally visible state.
type RunSnapshot struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Plan        *planner.Plan `json:"plan,omitempty"`
	Steps       []StepResult  `json:"steps,omitempty"`
	Aggregate   *Aggregate    `json:"aggregate,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Snapshot copies the run state for external readers.
func (r *TaskRun) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := RunSnapshot{
		ID:          r.id,
		Description: r.description,
		Status:      r.status,
		Plan:        r.plan,
		Steps:       append([]StepResult(nil), r.steps...),
		Aggregate:   r.aggregate,
		CreatedAt:   r.createdAt,
	}
	if !r.completedAt.IsZero() {
		t := r.completedAt
		snap.CompletedAt = &t
	}
	return snap
}

func (r *TaskRun) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
	if s == StatusCompleted || s == StatusFailed {
		r.completedAt = time.Now()
	}
}

func (r *TaskRun) setPlan(plan *planner.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plan = plan
	r.steps = make([]StepResult, len(plan.Steps))
	for slot, step := range plan.Steps {
		r.steps[slot] = StepResult{
			Slot:   slot,
			Kind:   step.Kind,
			Target: step.Target,
			Task:   step.Task,
			Status: StepPending,
		}
	}
}

func (r *TaskRun) setAggregate(agg *Aggregate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregate = agg
}

// stepResult copies one step record.
func (r *TaskRun) stepResult(slot int) StepResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.steps[slot]
}

func (r *TaskRun) stepStatus(slot int) StepStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.steps[slot].Status
}

func (r *TaskRun) markRunning(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[slot].Status = StepRunning
}

func (r *TaskRun) markSucceeded(slot int, output any, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[slot].Status = StepSucceeded
	r.steps[slot].Output = output
	r.steps[slot].Duration = d
}

func (r *TaskRun) markFailed(slot int, err error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[slot].Status = StepFailed
	r.steps[slot].Error = err.Error()
	r.steps[slot].Duration = d
}

// stepOutput returns a succeeded step's output.
func (r *TaskRun) stepOutput(slot int) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.steps[slot].Output
}
