package mcp

import "errors"

var (
	// ErrProviderUnavailable indicates a provider could not be spawned or
	// is not configured.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderCrashed indicates the provider process exited while
	// requests were outstanding.
	ErrProviderCrashed = errors.New("provider crashed")

	// ErrProtocolFailure indicates the provider violated the wire dialect,
	// for example by emitting a frame that is not a JSON object.
	ErrProtocolFailure = errors.New("protocol failure")

	// ErrUnknownTool indicates a tool name absent from the provider's
	// discovered tool list. No wire request is made.
	ErrUnknownTool = errors.New("unknown tool")
)
