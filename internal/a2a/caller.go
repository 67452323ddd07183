package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

const (
	rpcPath    = "/a2a"
	legacyPath = "/task"
)

// Caller dispatches tasks to discovered agents in either dialect.
type Caller struct {
	http *http.Client
	log  *logging.Logger
	id   atomic.Uint64
}

// Option configures a Caller.
type Option func(*Caller)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Caller) { cl.http = c }
}

// NewCaller creates a Caller. timeout bounds each agent call end to end;
// callers usually also pass a per-call context deadline.
func NewCaller(timeout time.Duration, log *logging.Logger, opts ...Option) *Caller {
	c := &Caller{
		http: &http.Client{Timeout: timeout},
		log:  log.Named("a2a"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RemoteError    `json:"error"`
}

// SendTask invokes tasks/send on a standardized agent. endpoint is the
// agent's base URL. A transport failure maps to ErrAgentUnreachable; a
// JSON-RPC error reply comes back as *RemoteError.
func (c *Caller) SendTask(ctx context.Context, endpoint string, req SendTaskRequest) (json.RawMessage, error) {
	endpoint = normalizeEndpoint(endpoint)
	parts := []MessagePart{{Type: "text", Text: req.Text}}
	if len(req.Data) > 0 {
		parts = append(parts, MessagePart{Type: "data", Data: req.Data})
	}
	modes := req.AcceptedOutputModes
	if len(modes) == 0 {
		modes = []string{"application/json"}
	}

	params := map[string]any{
		"id":                  req.TaskID,
		"sessionId":           req.SessionID,
		"message":             TaskMessage{Role: "user", Parts: parts},
		"acceptedOutputModes": modes,
	}
	rpcReq := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.id.Add(1),
		Method:  "tasks/send",
		Params:  params,
	}

	var rpcResp rpcResponse
	if err := c.post(ctx, endpoint+rpcPath, rpcReq, &rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	c.log.Debug(ctx, "task sent",
		zap.String("endpoint", endpoint),
		zap.String("remote_task_id", req.TaskID),
	)
	return rpcResp.Result, nil
}

// CallCapability invokes a legacy agent: a bare POST to /task with the
// capability name, parameters, and context.
func (c *Caller) CallCapability(ctx context.Context, endpoint string, req CapabilityRequest) (*CapabilityResponse, error) {
	var resp CapabilityResponse
	if err := c.post(ctx, normalizeEndpoint(endpoint)+legacyPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchCard retrieves an agent's capability manifest from path, one of
// the well-known manifest locations.
func (c *Caller) FetchCard(ctx context.Context, endpoint, path string) (*AgentCard, error) {
	endpoint = normalizeEndpoint(endpoint)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAgentUnreachable, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s%s returned status %d", ErrAgentUnreachable, endpoint, path, resp.StatusCode)
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decoding agent card from %s%s: %w", endpoint, path, err)
	}
	return &card, nil
}

func (c *Caller) post(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrAgentUnreachable, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrAgentUnreachable, url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

// normalizeEndpoint trims a trailing slash so path joins stay clean.
func normalizeEndpoint(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}
