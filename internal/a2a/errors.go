package a2a

import (
	"errors"
	"fmt"
)

// ErrAgentUnreachable indicates the agent endpoint could not be reached
// or did not answer with a usable HTTP response.
var ErrAgentUnreachable = errors.New("agent unreachable")

// RemoteError is a JSON-RPC error the agent itself returned. The agent
// was reachable; the task was refused.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("agent error %d: %s", e.Code, e.Message)
}
