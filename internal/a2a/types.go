// Package a2a implements the agent call contract: JSON-RPC task
// submission for standardized agents and the plain-POST dialect legacy
// agents expose.
package a2a

import "encoding/json"

// TaskMessage is the message envelope of a tasks/send call.
type TaskMessage struct {
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

// MessagePart is one part of a task message. Type is "text" or "data".
type MessagePart struct {
	Type string         `json:"type"`
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// AgentCard is the capability manifest a standardized agent serves.
type AgentCard struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	URL          string          `json:"url,omitempty"`
	Version      string          `json:"version,omitempty"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
	Skills       []Skill         `json:"skills,omitempty"`
}

// Skill is one advertised capability in an agent card.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// SendTaskRequest describes one task dispatch to a standardized agent.
type SendTaskRequest struct {
	// TaskID identifies the task on the remote side.
	TaskID string
	// SessionID groups related dispatches.
	SessionID string
	// Text is the capability or instruction, sent as a text part.
	Text string
	// Data carries structured parameters and upstream step outputs,
	// sent as a data part when non-empty.
	Data map[string]any
	// AcceptedOutputModes defaults to application/json.
	AcceptedOutputModes []string
}

// CapabilityRequest is a dispatch in the legacy dialect.
type CapabilityRequest struct {
	Capability string         `json:"capability"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// CapabilityResponse is the legacy dialect reply.
type CapabilityResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}
