package mcp

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// inboundReq is a decoded frame as the fake provider sees it.
type inboundReq struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// frameWriter serializes frames onto the fake provider's stdout.
type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (f *frameWriter) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = f.w.Write(append(data, '\n'))
}

func (f *frameWriter) raw(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = f.w.Write([]byte(line + "\n"))
}

func (f *frameWriter) result(id int64, result any) {
	f.send(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (f *frameWriter) rpcError(id int64, code int, message string) {
	f.send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
}

// toolCallReq is the decoded params of a tools/call request.
type toolCallReq struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// fakeProvider serves the wire dialect from in-memory pipes. Each
// Acquire-triggered spawn gets its own serve goroutine and incarnation
// number.
type fakeProvider struct {
	mu       sync.Mutex
	launches int
	methods  []string

	// onToolCall overrides tools/call handling. Returning false closes
	// the transport without replying, simulating a crash. A nil handler
	// echoes the "marker" argument.
	onToolCall func(w *frameWriter, launch int, id int64, req toolCallReq) bool
}

func (f *fakeProvider) launcher() launchFunc {
	return func(name, command string, args, env []string) (*procIO, error) {
		f.mu.Lock()
		f.launches++
		launch := f.launches
		f.mu.Unlock()

		stdinR, stdinW := io.Pipe()
		stdoutR, stdoutW := io.Pipe()
		ctl := &fakeControl{stdinR: stdinR, stdoutW: stdoutW, done: make(chan struct{})}
		go f.serve(launch, stdinR, stdoutW, ctl)

		return &procIO{stdin: stdinW, stdout: stdoutR, control: ctl}, nil
	}
}

func (f *fakeProvider) serve(launch int, stdin io.Reader, stdout io.Writer, ctl *fakeControl) {
	defer ctl.exit()
	w := &frameWriter{w: stdout}
	scanner := bufio.NewScanner(stdin)

	for scanner.Scan() {
		var req inboundReq
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.methods = append(f.methods, req.Method)
		f.mu.Unlock()

		switch req.Method {
		case "initialize":
			w.result(*req.ID, map[string]any{
				"protocolVersion": protocolVersion,
				"serverInfo":      map[string]any{"name": "fake-provider", "version": "0.1.0"},
				"capabilities":    map[string]any{"tools": map[string]any{}},
			})
		case "notifications/initialized":
			// Notification, no reply.
		case "tools/list":
			w.result(*req.ID, map[string]any{
				"tools": []map[string]any{
					{
						"name":        "echo",
						"description": "Echo the marker argument back",
						"inputSchema": map[string]any{"type": "object"},
					},
				},
			})
		case "tools/call":
			var call toolCallReq
			_ = json.Unmarshal(req.Params, &call)
			if f.onToolCall != nil {
				if !f.onToolCall(w, launch, *req.ID, call) {
					return
				}
				continue
			}
			marker, _ := call.Arguments["marker"].(string)
			w.result(*req.ID, map[string]any{
				"content": []map[string]any{{"type": "text", "text": marker}},
				"isError": false,
			})
		}
	}
}

func (f *fakeProvider) seenMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeProvider) countMethod(method string) int {
	n := 0
	for _, m := range f.seenMethods() {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeProvider) launchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// fakeControl stands in for a child process handle.
type fakeControl struct {
	stdinR  *io.PipeReader
	stdoutW *io.PipeWriter
	done    chan struct{}
	once    sync.Once
}

func (c *fakeControl) exit() {
	c.once.Do(func() {
		_ = c.stdinR.Close()
		_ = c.stdoutW.Close()
		close(c.done)
	})
}

func (c *fakeControl) Signal() error { c.exit(); return nil }

func (c *fakeControl) Kill() error { c.exit(); return nil }

func (c *fakeControl) Done() <-chan struct{} { return c.done }

// newTestClient wires a manager and client around a fake provider named
// "filesystem".
func newTestClient(t *testing.T, fake *fakeProvider) (*Client, *ProcessManager) {
	t.Helper()
	providers := map[string]config.ProviderConfig{
		"filesystem": {Command: "fake-fs", Description: "Filesystem tools"},
	}
	mgr := NewProcessManager(providers, time.Second, logging.Nop(), WithLauncher(fake.launcher()))
	t.Cleanup(func() { mgr.ReleaseAll(t.Context()) })
	client := NewClient(mgr, logging.Nop(), nil)
	require.NotNil(t, client)
	return client, mgr
}
