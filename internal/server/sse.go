package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/coordinator"
)

const (
	// eventBufferSize bounds how far execution may run ahead of a slow
	// SSE consumer before events get dropped.
	eventBufferSize = 256

	heartbeatInterval = 30 * time.Second
)

// handleTaskStream runs a task and streams its lifecycle via
// Server-Sent Events.
//
// Each coordinator event becomes one SSE frame with the event type in
// the "event:" field and the JSON-encoded event in "data:". The
// connection closes after the terminal event (task_completed or
// task_failed) or when the client disconnects; disconnecting does not
// cancel the task, which runs to its own deadline.
//
// Example:
//
//	POST /api/v1/tasks/stream
//	{"task":"research the market and write a summary"}
//
//	event: task_accepted
//	data: {"type":"task_accepted","task_id":"..."}
//
//	event: step_completed
//	data: {"type":"step_completed","task_id":"...","step":{...}}
//
//	event: task_completed
//	data: {"type":"task_completed","task_id":"...","aggregate":{...}}
func (s *Server) handleTaskStream(c echo.Context) error {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task field is required")
	}

	ctx := c.Request().Context()

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	emitter := coordinator.NewEventEmitter(eventBufferSize, s.logger)
	go func() {
		// Detached from the request context so a dropped SSE client
		// does not abort the task mid-flight.
		runCtx := context.WithoutCancel(ctx)
		if _, err := s.coord.Process(runCtx, req.Task, emitter); err != nil {
			s.logger.Warn(runCtx, "streamed task ended with error", zap.Error(err))
		}
		emitter.Close()
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-emitter.Events():
			if !ok {
				return nil
			}
			if err := writeSSE(c, event); err != nil {
				return nil
			}
			if event.Terminal() {
				return nil
			}

		case <-ticker.C:
			// Keep proxies from timing out idle stretches.
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-ctx.Done():
			return nil
		}
	}
}

func writeSSE(c echo.Context, event coordinator.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
