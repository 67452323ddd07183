// Package server provides the HTTP API for orchestrd: task submission
// (synchronous and SSE-streamed), run inspection, and read access to
// the discovered agent and tool catalogs.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/coordinator"
	"github.com/fyrsmithlabs/orchestrd/internal/discovery"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
	"github.com/fyrsmithlabs/orchestrd/internal/mcp"
)

// TaskProcessor runs tasks and exposes in-flight runs.
type TaskProcessor interface {
	Process(ctx context.Context, description string, emitter *coordinator.EventEmitter) (*coordinator.TaskRun, error)
	Get(id string) (coordinator.RunSnapshot, bool)
	Running() []coordinator.RunSnapshot
}

// AgentCatalog exposes the discovered agent set and re-discovery.
// Discovery absorbs individual probe failures, so a refresh reports
// only how many agents it found.
type AgentCatalog interface {
	Agents() []discovery.Agent
	Refresh(ctx context.Context) int
}

// ToolCatalog exposes the discovered tool set.
type ToolCatalog interface {
	Tools() []mcp.ToolDescriptor
}

// Server provides HTTP endpoints for orchestrd.
type Server struct {
	echo   *echo.Echo
	coord  TaskProcessor
	agents AgentCatalog
	tools  ToolCatalog
	logger *logging.Logger
	config config.ServerConfig
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(coord TaskProcessor, agents AgentCatalog, tools ToolCatalog, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if coord == nil {
		return nil, fmt.Errorf("task processor is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger.Underlying()).Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		coord:  coord,
		agents: agents,
		tools:  tools,
		logger: logger.Named("http"),
		config: cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/agents", s.handleAgents)
	v1.GET("/tools", s.handleTools)
	v1.POST("/discovery/refresh", s.handleRefresh)
	v1.POST("/tasks", s.handleTask)
	v1.POST("/tasks/stream", s.handleTaskStream)
	v1.GET("/tasks", s.handleRunningTasks)
	v1.GET("/tasks/:id", s.handleTaskStatus)
}

// Echo exposes the underlying router for additional route registration.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
	Tools  int    `json:"tools"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.agents != nil {
		resp.Agents = len(s.agents.Agents())
	}
	if s.tools != nil {
		resp.Tools = len(s.tools.Tools())
	}
	return c.JSON(http.StatusOK, resp)
}
