package mcp

import "encoding/json"

const protocolVersion = "2024-11-05"

// rpcRequest is a single JSON-RPC 2.0 frame. Notifications carry no id.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a reply frame matched to a request by id.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcError is a provider-level error reply.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HandshakeInfo is what the provider declared during initialize.
type HandshakeInfo struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ServerName      string          `json:"serverName"`
	ServerVersion   string          `json:"serverVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
}

// handshakeResult is the raw initialize reply shape.
type handshakeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
	Capabilities json.RawMessage `json:"capabilities"`
}

// ToolDescriptor describes one tool a provider exposes.
type ToolDescriptor struct {
	Provider    string          `json:"provider"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// toolListResult is the raw tools/list reply shape.
type toolListResult struct {
	Tools []struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	} `json:"tools"`
}

// ToolResult is the outcome of a tool call. A provider-level error reply
// produces Success=false with Error set; it is not a Go error.
type ToolResult struct {
	Success bool            `json:"success"`
	Content json.RawMessage `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}
