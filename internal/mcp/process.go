package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// maxFrameSize bounds a single wire frame. Tool results can carry large
// payloads, so this is generous.
const maxFrameSize = 16 * 1024 * 1024

// callResult is what a pending call wakes up with: a reply frame or the
// transport failure that killed the incarnation.
type callResult struct {
	resp rpcResponse
	err  error
}

// process is one live incarnation of a provider child. A respawn creates
// a fresh process; request ids, the pending table, and the handshake
// cache never survive an incarnation.
type process struct {
	provider string
	stdin    io.WriteCloser
	control  procControl
	log      *logging.Logger

	nextID  atomic.Int64
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[int64]chan callResult
	failure   error // set once, before done closes
	done      chan struct{}

	initMu    sync.Mutex
	handshake *HandshakeInfo
}

// procControl is the lifecycle handle for a spawned child.
type procControl interface {
	// Signal delivers a termination request (SIGTERM on a real child).
	Signal() error
	// Kill forcibly ends the child.
	Kill() error
	// Done is closed once the child has exited.
	Done() <-chan struct{}
}

func newProcess(provider string, stdin io.WriteCloser, stdout io.Reader, control procControl, log *logging.Logger) *process {
	p := &process{
		provider: provider,
		stdin:    stdin,
		control:  control,
		log:      log,
		pending:  make(map[int64]chan callResult),
		done:     make(chan struct{}),
	}
	go p.readLoop(stdout)
	return p
}

// readLoop owns stdout. It correlates reply frames to pending calls by
// id; responses may arrive in any order. The loop exits on EOF (child
// died) or on a malformed frame, failing every pending call either way.
func (p *process) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			p.log.Warn(context.Background(), "malformed frame from provider",
				zap.String("provider", p.provider),
				zap.Error(err),
			)
			p.fail(fmt.Errorf("%w: undecodable frame: %v", ErrProtocolFailure, err))
			return
		}

		p.pendingMu.Lock()
		ch, ok := p.pending[resp.ID]
		if ok {
			delete(p.pending, resp.ID)
		}
		p.pendingMu.Unlock()

		if !ok {
			// Server-initiated notification or a reply to a request we
			// already gave up on.
			p.log.Trace(context.Background(), "unmatched frame dropped",
				zap.String("provider", p.provider),
				zap.Int64("id", resp.ID),
			)
			continue
		}
		ch <- callResult{resp: resp}
	}

	if err := scanner.Err(); err != nil {
		p.fail(fmt.Errorf("%w: reading stdout: %v", ErrProviderCrashed, err))
		return
	}
	p.fail(fmt.Errorf("%w: stdout closed", ErrProviderCrashed))
}

// fail records the transport failure, wakes every pending call, and
// marks the incarnation dead. Idempotent; only the first cause sticks.
func (p *process) fail(cause error) {
	p.pendingMu.Lock()
	if p.failure == nil {
		p.failure = cause
		close(p.done)
	}
	cause = p.failure
	for id, ch := range p.pending {
		delete(p.pending, id)
		ch <- callResult{err: cause}
	}
	p.pendingMu.Unlock()
}

// alive reports whether the incarnation can still take requests.
func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// failureCause returns the recorded transport failure, if any.
func (p *process) failureCause() error {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.failure
}

// call sends one request frame and blocks for the matching reply.
func (p *process) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := p.nextID.Add(1)
	ch := make(chan callResult, 1)

	p.pendingMu.Lock()
	if p.failure != nil {
		err := p.failure
		p.pendingMu.Unlock()
		return nil, err
	}
	p.pending[id] = ch
	p.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := p.write(req); err != nil {
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
		return nil, fmt.Errorf("%w: writing %s: %v", ErrProviderCrashed, method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Error != nil {
			return nil, &providerError{method: method, code: res.resp.Error.Code, message: res.resp.Error.Message}
		}
		return res.resp.Result, nil
	case <-ctx.Done():
		p.pendingMu.Lock()
		delete(p.pending, id)
		p.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// notify sends a fire-and-forget frame with no id.
func (p *process) notify(method string, params any) error {
	return p.write(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
}

// write serializes one frame and appends the newline delimiter. The
// mutex keeps concurrent frames from interleaving on the pipe.
func (p *process) write(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	data = append(data, '\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err = p.stdin.Write(data)
	return err
}

// providerError is a provider-level JSON-RPC error reply. It is distinct
// from transport failure; CallTool turns it into a failed ToolResult.
type providerError struct {
	method  string
	code    int
	message string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider error on %s (code %d): %s", e.method, e.code, e.message)
}
