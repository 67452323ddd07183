package coordinator

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/logging"
	"github.com/fyrsmithlabs/orchestrd/internal/planner"
)

// EventType identifies a task lifecycle event.
type EventType string

const (
	EventTaskAccepted     EventType = "task_accepted"
	EventPlanningStarted  EventType = "planning_started"
	EventPlanningProgress EventType = "planning_progress"
	EventPlanReady        EventType = "plan_ready"
	EventStepDispatched   EventType = "step_dispatched"
	EventStepCompleted    EventType = "step_completed"
	EventTaskCompleted    EventType = "task_completed"
	EventTaskFailed       EventType = "task_failed"
)

// Event is one task lifecycle notification. Step events carry the step
// snapshot; planning progress carries the reasoning chunk; terminal
// events carry the aggregate.
type Event struct {
	Type      EventType     `json:"type"`
	TaskID    string        `json:"task_id"`
	Timestamp time.Time     `json:"timestamp"`
	Chunk     string        `json:"chunk,omitempty"`
	Plan      *planner.Plan `json:"plan,omitempty"`
	Step      *StepResult   `json:"step,omitempty"`
	Aggregate *Aggregate    `json:"aggregate,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventTaskCompleted || e.Type == EventTaskFailed
}

// EventEmitter delivers events to one subscriber over a buffered
// channel. A slow subscriber gets a grace window; after that the event
// is dropped rather than stalling task execution.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	log          *logging.Logger
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int, log *logging.Logger) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		log:    log.Named("events"),
	}
}

// Emit sends an event, waiting briefly if the buffer is full before
// dropping it.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.log.Warn(context.Background(), "event channel full, dropping",
				zap.String("event_type", string(event.Type)),
				zap.Uint64("total_dropped", count),
			)
		}
	}
}

// DroppedCount returns how many events have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the subscriber side of the channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the channel. Call only after the producing task reached
// a terminal state.
func (e *EventEmitter) Close() {
	close(e.events)
}
