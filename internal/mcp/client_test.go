package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoText extracts the text of the first content block of a tool result.
func echoText(t *testing.T, result *ToolResult) string {
	t.Helper()
	var parsed struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(result.Content, &parsed))
	require.NotEmpty(t, parsed.Content)
	return parsed.Content[0].Text
}

func TestInitializeHandshake(t *testing.T) {
	fake := &fakeProvider{}
	client, _ := newTestClient(t, fake)

	info, err := client.Initialize(t.Context(), "filesystem")
	require.NoError(t, err)
	assert.Equal(t, "fake-provider", info.ServerName)
	assert.Equal(t, "0.1.0", info.ServerVersion)
	assert.Equal(t, protocolVersion, info.ProtocolVersion)

	// Idempotent per incarnation.
	_, err = client.Initialize(t.Context(), "filesystem")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.countMethod("initialize"))
	// The initialized notification is fire-and-forget: the write returns
	// before the provider's serve loop records it.
	require.Eventually(t, func() bool {
		return fake.countMethod("notifications/initialized") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestInitializeUnknownProvider(t *testing.T) {
	client, _ := newTestClient(t, &fakeProvider{})

	_, err := client.Initialize(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestDiscoverToolsCached(t *testing.T) {
	fake := &fakeProvider{}
	client, _ := newTestClient(t, fake)

	first, err := client.DiscoverTools(t.Context(), "filesystem")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "echo", first[0].Name)
	assert.Equal(t, "filesystem", first[0].Provider)

	second, err := client.DiscoverTools(t.Context(), "filesystem")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.countMethod("tools/list"))

	_, err = client.RefreshTools(t.Context(), "filesystem")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.countMethod("tools/list"))
}

func TestCallToolEcho(t *testing.T) {
	fake := &fakeProvider{}
	client, _ := newTestClient(t, fake)

	result, err := client.CallTool(t.Context(), "filesystem", "echo", map[string]any{"marker": "hello"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello", echoText(t, result))

	// The call path discovered lazily before invoking.
	assert.Equal(t, 1, fake.countMethod("tools/list"))
	assert.Equal(t, 1, fake.countMethod("tools/call"))
}

func TestCallToolUnknownSendsNothing(t *testing.T) {
	fake := &fakeProvider{}
	client, _ := newTestClient(t, fake)

	_, err := client.DiscoverTools(t.Context(), "filesystem")
	require.NoError(t, err)

	_, err = client.CallTool(t.Context(), "filesystem", "delete_everything", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, 0, fake.countMethod("tools/call"))
}

func TestCallToolProviderErrorReply(t *testing.T) {
	fake := &fakeProvider{}
	fake.onToolCall = func(w *frameWriter, launch int, id int64, req toolCallReq) bool {
		w.rpcError(id, -32000, "disk offline")
		return true
	}
	client, _ := newTestClient(t, fake)

	result, err := client.CallTool(t.Context(), "filesystem", "echo", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "disk offline", result.Error)
}

func TestCallToolOutOfOrderResponses(t *testing.T) {
	fake := &fakeProvider{}

	type heldCall struct {
		id     int64
		marker string
	}
	var (
		mu   sync.Mutex
		held []heldCall
	)
	fake.onToolCall = func(w *frameWriter, launch int, id int64, req toolCallReq) bool {
		marker, _ := req.Arguments["marker"].(string)
		mu.Lock()
		held = append(held, heldCall{id: id, marker: marker})
		if len(held) < 2 {
			mu.Unlock()
			return true
		}
		// Reply in reverse arrival order.
		for i := len(held) - 1; i >= 0; i-- {
			w.result(held[i].id, map[string]any{
				"content": []map[string]any{{"type": "text", "text": held[i].marker}},
			})
		}
		mu.Unlock()
		return true
	}
	client, _ := newTestClient(t, fake)
	_, err := client.DiscoverTools(t.Context(), "filesystem")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]string, 2)
	errs := make([]error, 2)
	for i, marker := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := client.CallTool(t.Context(), "filesystem", "echo", map[string]any{"marker": marker})
			errs[i] = err
			if err == nil {
				results[i] = echoText(t, result)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "first", results[0])
	assert.Equal(t, "second", results[1])
}

func TestCallToolRespawnsAfterCrash(t *testing.T) {
	fake := &fakeProvider{}
	fake.onToolCall = func(w *frameWriter, launch int, id int64, req toolCallReq) bool {
		if launch == 1 {
			return false // die without replying
		}
		marker, _ := req.Arguments["marker"].(string)
		w.result(id, map[string]any{
			"content": []map[string]any{{"type": "text", "text": marker}},
		})
		return true
	}
	client, _ := newTestClient(t, fake)

	result, err := client.CallTool(t.Context(), "filesystem", "echo", map[string]any{"marker": "again"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "again", echoText(t, result))

	// One respawn, and the new incarnation was handshaken afresh.
	assert.Equal(t, 2, fake.launchCount())
	assert.Equal(t, 2, fake.countMethod("initialize"))
}

func TestCallToolProtocolFailureAfterRetry(t *testing.T) {
	fake := &fakeProvider{}
	fake.onToolCall = func(w *frameWriter, launch int, id int64, req toolCallReq) bool {
		w.raw("this is not a frame")
		return true
	}
	client, _ := newTestClient(t, fake)

	_, err := client.CallTool(t.Context(), "filesystem", "echo", nil)
	assert.ErrorIs(t, err, ErrProtocolFailure)
	assert.Equal(t, 2, fake.launchCount())
}

func TestCallToolContextTimeout(t *testing.T) {
	fake := &fakeProvider{}
	fake.onToolCall = func(w *frameWriter, launch int, id int64, req toolCallReq) bool {
		return true // never reply
	}
	client, _ := newTestClient(t, fake)
	_, err := client.DiscoverTools(t.Context(), "filesystem")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = client.CallTool(ctx, "filesystem", "echo", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// No respawn on caller timeout.
	assert.Equal(t, 1, fake.launchCount())
}

func TestToolsSnapshot(t *testing.T) {
	fake := &fakeProvider{}
	client, _ := newTestClient(t, fake)

	assert.Empty(t, client.Tools())

	_, err := client.DiscoverTools(t.Context(), "filesystem")
	require.NoError(t, err)

	all := client.Tools()
	require.Len(t, all, 1)
	assert.Equal(t, "echo", all[0].Name)
}

func TestCallToolErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(errWrap(ErrProviderCrashed), ErrProviderCrashed))
	assert.True(t, isTransportFailure(errWrap(ErrProtocolFailure)))
	assert.False(t, isTransportFailure(errWrap(ErrUnknownTool)))
}

func errWrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
