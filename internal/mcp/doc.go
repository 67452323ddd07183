// Package mcp manages tool provider child processes and speaks the
// newline-delimited JSON-RPC 2.0 dialect they expose over stdio.
//
// A ProcessManager supervises one child process per configured provider
// and respawns crashed ones on demand. The Client layers the protocol on
// top: the initialize handshake, tool discovery with a per-provider
// cache, and guarded tool invocation with a single respawn-and-retry on
// transport failure.
package mcp
