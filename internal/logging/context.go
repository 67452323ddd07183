// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type taskCtxKey struct{}
type providerCtxKey struct{}
type agentCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if taskID := TaskIDFromContext(ctx); taskID != "" {
		fields = append(fields, zap.String("task_id", taskID))
	}
	if provider := ProviderFromContext(ctx); provider != "" {
		fields = append(fields, zap.String("provider", provider))
	}
	if agentID := AgentIDFromContext(ctx); agentID != "" {
		fields = append(fields, zap.String("agent_id", agentID))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	return fields
}

// WithTaskID adds the task identifier to context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, taskCtxKey{}, taskID)
}

// TaskIDFromContext extracts the task identifier from context.
func TaskIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(taskCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithProvider adds the tool provider name to context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, providerCtxKey{}, provider)
}

// ProviderFromContext extracts the tool provider name from context.
func ProviderFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(providerCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithAgentID adds the agent identifier to context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentCtxKey{}, agentID)
}

// AgentIDFromContext extracts the agent identifier from context.
func AgentIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(agentCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds the HTTP request identifier to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts the HTTP request identifier from context.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
