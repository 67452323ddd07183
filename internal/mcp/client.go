package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// Client speaks the tool protocol on top of a ProcessManager: handshake,
// tool discovery with a per-provider cache, and guarded invocation.
type Client struct {
	mgr     *ProcessManager
	log     *logging.Logger
	metrics *Metrics

	mu    sync.RWMutex
	tools map[string]map[string]ToolDescriptor
	order map[string][]ToolDescriptor
}

// NewClient creates a protocol client. metrics may be nil.
func NewClient(mgr *ProcessManager, log *logging.Logger, metrics *Metrics) *Client {
	return &Client{
		mgr:     mgr,
		log:     log.Named("mcp"),
		metrics: metrics,
		tools:   make(map[string]map[string]ToolDescriptor),
		order:   make(map[string][]ToolDescriptor),
	}
}

// Initialize spawns the provider if needed and runs the handshake.
// Idempotent per process incarnation; a respawned provider is handshaken
// again on its next use.
func (c *Client) Initialize(ctx context.Context, provider string) (*HandshakeInfo, error) {
	proc, err := c.mgr.Acquire(ctx, provider)
	if err != nil {
		return nil, err
	}
	return c.ensureInitialized(ctx, proc)
}

func (c *Client) ensureInitialized(ctx context.Context, proc *process) (*HandshakeInfo, error) {
	proc.initMu.Lock()
	defer proc.initMu.Unlock()

	if proc.handshake != nil {
		return proc.handshake, nil
	}

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]string{
			"name":    "orchestrd",
			"version": "1.0.0",
		},
		"capabilities": map[string]any{},
	}
	raw, err := proc.call(ctx, "initialize", params)
	if err != nil {
		return nil, c.wireError(proc.provider, "initialize", err)
	}

	var result handshakeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding initialize result: %v", ErrProtocolFailure, err)
	}
	if err := proc.notify("notifications/initialized", nil); err != nil {
		return nil, fmt.Errorf("%w: sending initialized notification: %v", ErrProviderCrashed, err)
	}

	proc.handshake = &HandshakeInfo{
		ProtocolVersion: result.ProtocolVersion,
		ServerName:      result.ServerInfo.Name,
		ServerVersion:   result.ServerInfo.Version,
		Capabilities:    result.Capabilities,
	}
	c.log.Info(ctx, "provider initialized",
		zap.String("provider", proc.provider),
		zap.String("server", result.ServerInfo.Name),
		zap.String("protocol_version", result.ProtocolVersion),
	)
	return proc.handshake, nil
}

// DiscoverTools lists a provider's tools, serving from the cache after
// the first call. Use RefreshTools to force a wire round trip.
func (c *Client) DiscoverTools(ctx context.Context, provider string) ([]ToolDescriptor, error) {
	c.mu.RLock()
	cached, ok := c.order[provider]
	c.mu.RUnlock()
	if ok {
		return append([]ToolDescriptor(nil), cached...), nil
	}
	return c.RefreshTools(ctx, provider)
}

// RefreshTools lists a provider's tools over the wire and replaces the
// cache entry.
func (c *Client) RefreshTools(ctx context.Context, provider string) ([]ToolDescriptor, error) {
	proc, err := c.mgr.Acquire(ctx, provider)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureInitialized(ctx, proc); err != nil {
		return nil, err
	}

	raw, err := proc.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, c.wireError(provider, "tools/list", err)
	}

	var result toolListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: decoding tools/list result: %v", ErrProtocolFailure, err)
	}

	list := make([]ToolDescriptor, 0, len(result.Tools))
	byName := make(map[string]ToolDescriptor, len(result.Tools))
	for _, t := range result.Tools {
		desc := ToolDescriptor{
			Provider:    provider,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		list = append(list, desc)
		byName[t.Name] = desc
	}

	c.mu.Lock()
	c.tools[provider] = byName
	c.order[provider] = list
	c.mu.Unlock()

	c.log.Debug(ctx, "tools discovered",
		zap.String("provider", provider),
		zap.Int("count", len(list)),
	)
	return append([]ToolDescriptor(nil), list...), nil
}

// Tools returns a snapshot of every cached tool across providers.
func (c *Client) Tools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []ToolDescriptor
	for _, name := range c.mgr.Providers() {
		all = append(all, c.order[name]...)
	}
	return all
}

// CallTool invokes a discovered tool. An undiscovered tool name fails
// with ErrUnknownTool before any wire request. A provider-level error
// reply comes back as a failed ToolResult, not a Go error. A transport
// break triggers one respawn-and-retry; a second break surfaces.
func (c *Client) CallTool(ctx context.Context, provider, tool string, args map[string]any) (*ToolResult, error) {
	c.mu.RLock()
	byName, discovered := c.tools[provider]
	c.mu.RUnlock()
	if !discovered {
		if _, err := c.DiscoverTools(ctx, provider); err != nil {
			return nil, err
		}
		c.mu.RLock()
		byName = c.tools[provider]
		c.mu.RUnlock()
	}
	if _, ok := byName[tool]; !ok {
		return nil, fmt.Errorf("%w: provider %q has no tool %q", ErrUnknownTool, provider, tool)
	}

	if c.metrics != nil {
		c.metrics.CallStarted(ctx, provider, tool)
		defer c.metrics.CallFinished(ctx, provider, tool)
	}

	start := time.Now()
	result, err := c.callOnce(ctx, provider, tool, args)
	if err != nil && isTransportFailure(err) && ctx.Err() == nil {
		c.log.Warn(ctx, "tool call lost transport, retrying once",
			zap.String("provider", provider),
			zap.String("tool", tool),
			zap.Error(err),
		)
		result, err = c.callOnce(ctx, provider, tool, args)
	}

	if c.metrics != nil {
		c.metrics.CallCompleted(ctx, provider, tool, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) callOnce(ctx context.Context, provider, tool string, args map[string]any) (*ToolResult, error) {
	proc, err := c.mgr.Acquire(ctx, provider)
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureInitialized(ctx, proc); err != nil {
		return nil, err
	}

	params := map[string]any{"name": tool}
	if len(args) > 0 {
		params["arguments"] = args
	}
	raw, err := proc.call(ctx, "tools/call", params)
	if err != nil {
		var perr *providerError
		if errors.As(err, &perr) {
			return &ToolResult{Success: false, Error: perr.message}, nil
		}
		return nil, c.wireError(provider, "tools/call", err)
	}

	var result struct {
		IsError bool `json:"isError"`
	}
	// Result shapes vary per provider; only isError is interpreted.
	_ = json.Unmarshal(raw, &result)
	if result.IsError {
		return &ToolResult{Success: false, Content: raw, Error: "tool reported an error"}, nil
	}
	return &ToolResult{Success: true, Content: raw}, nil
}

// wireError normalizes a transport failure into the package taxonomy.
func (c *Client) wireError(provider, method string, err error) error {
	if errors.Is(err, ErrProviderCrashed) || errors.Is(err, ErrProtocolFailure) || errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s on %q: %v", ErrProtocolFailure, method, provider, err)
}

func isTransportFailure(err error) bool {
	return errors.Is(err, ErrProviderCrashed) || errors.Is(err, ErrProtocolFailure)
}
