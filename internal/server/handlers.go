package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/coordinator"
	"github.com/fyrsmithlabs/orchestrd/internal/discovery"
	"github.com/fyrsmithlabs/orchestrd/internal/mcp"
)

// TaskRequest is the request body for POST /api/v1/tasks.
type TaskRequest struct {
	Task string `json:"task"`
}

// TaskResponse is the response body for POST /api/v1/tasks.
type TaskResponse struct {
	TaskID    string                 `json:"task_id"`
	Status    coordinator.Status     `json:"status"`
	Aggregate *coordinator.Aggregate `json:"aggregate,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// AgentsResponse is the response body for GET /api/v1/agents.
type AgentsResponse struct {
	Agents []discovery.Agent `json:"agents"`
	Count  int               `json:"count"`
}

// ToolsResponse is the response body for GET /api/v1/tools.
type ToolsResponse struct {
	Tools []mcp.ToolDescriptor `json:"tools"`
	Count int                  `json:"count"`
}

// RefreshResponse is the response body for POST /api/v1/discovery/refresh.
type RefreshResponse struct {
	Discovered int `json:"discovered"`
}

func (s *Server) handleAgents(c echo.Context) error {
	agents := []discovery.Agent{}
	if s.agents != nil {
		agents = s.agents.Agents()
	}
	return c.JSON(http.StatusOK, AgentsResponse{Agents: agents, Count: len(agents)})
}

func (s *Server) handleTools(c echo.Context) error {
	tools := []mcp.ToolDescriptor{}
	if s.tools != nil {
		tools = s.tools.Tools()
	}
	return c.JSON(http.StatusOK, ToolsResponse{Tools: tools, Count: len(tools)})
}

func (s *Server) handleRefresh(c echo.Context) error {
	if s.agents == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "discovery is not configured")
	}
	n := s.agents.Refresh(c.Request().Context())
	return c.JSON(http.StatusOK, RefreshResponse{Discovered: n})
}

// handleTask runs a task synchronously and returns its aggregate. The
// connection stays open for the full run; clients that want progress
// use the streaming endpoint instead.
func (s *Server) handleTask(c echo.Context) error {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid task request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Task == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task field is required")
	}

	run, err := s.coord.Process(c.Request().Context(), req.Task, nil)

	resp := TaskResponse{
		TaskID:    run.ID(),
		Status:    run.Status(),
		Aggregate: run.Aggregate(),
	}
	if err != nil {
		resp.Error = err.Error()
		// Planning failures and timeouts still produced a run record,
		// so the body carries the task id either way.
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// RunningTasksResponse is the response body for GET /api/v1/tasks.
type RunningTasksResponse struct {
	Tasks []coordinator.RunSnapshot `json:"tasks"`
	Count int                       `json:"count"`
}

func (s *Server) handleRunningTasks(c echo.Context) error {
	runs := s.coord.Running()
	if runs == nil {
		runs = []coordinator.RunSnapshot{}
	}
	return c.JSON(http.StatusOK, RunningTasksResponse{Tasks: runs, Count: len(runs)})
}

func (s *Server) handleTaskStatus(c echo.Context) error {
	snap, ok := s.coord.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found or already finished")
	}
	return c.JSON(http.StatusOK, snap)
}
