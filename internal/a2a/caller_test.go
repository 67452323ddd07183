package a2a

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

func newTestCaller(t *testing.T) *Caller {
	t.Helper()
	return NewCaller(5*time.Second, logging.Nop())
}

func TestSendTask(t *testing.T) {
	var captured struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  struct {
			ID                  string      `json:"id"`
			SessionID           string      `json:"sessionId"`
			Message             TaskMessage `json:"message"`
			AcceptedOutputModes []string    `json:"acceptedOutputModes"`
		} `json:"params"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/a2a", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"response": "done"},
		})
	}))
	defer srv.Close()

	result, err := newTestCaller(t).SendTask(t.Context(), srv.URL+"/", SendTaskRequest{
		TaskID:    "task-1",
		SessionID: "session-1",
		Text:      "market_research",
		Data:      map[string]any{"topic": "robotics", "step_0": "prior output"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"done"}`, string(result))

	assert.Equal(t, "2.0", captured.JSONRPC)
	assert.Equal(t, "tasks/send", captured.Method)
	assert.Equal(t, "task-1", captured.Params.ID)
	assert.Equal(t, "session-1", captured.Params.SessionID)
	assert.Equal(t, []string{"application/json"}, captured.Params.AcceptedOutputModes)

	require.Len(t, captured.Params.Message.Parts, 2)
	assert.Equal(t, "user", captured.Params.Message.Role)
	assert.Equal(t, "text", captured.Params.Message.Parts[0].Type)
	assert.Equal(t, "market_research", captured.Params.Message.Parts[0].Text)
	assert.Equal(t, "data", captured.Params.Message.Parts[1].Type)
	assert.Equal(t, "robotics", captured.Params.Message.Parts[1].Data["topic"])
}

func TestSendTaskTextOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := struct {
			Params struct {
				Message TaskMessage `json:"message"`
			} `json:"params"`
		}{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Len(t, body.Params.Message.Parts, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": map[string]any{}})
	}))
	defer srv.Close()

	_, err := newTestCaller(t).SendTask(t.Context(), srv.URL, SendTaskRequest{TaskID: "t", Text: "ping"})
	require.NoError(t, err)
}

func TestSendTaskRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"error":   map[string]any{"code": -32001, "message": "skill not found"},
		})
	}))
	defer srv.Close()

	_, err := newTestCaller(t).SendTask(t.Context(), srv.URL, SendTaskRequest{TaskID: "t", Text: "nope"})
	require.Error(t, err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, -32001, remote.Code)
	assert.Equal(t, "skill not found", remote.Message)
	assert.NotErrorIs(t, err, ErrAgentUnreachable)
}

func TestSendTaskUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(nil))
	srv.Close() // refuse connections

	_, err := newTestCaller(t).SendTask(t.Context(), srv.URL, SendTaskRequest{TaskID: "t", Text: "ping"})
	assert.ErrorIs(t, err, ErrAgentUnreachable)
}

func TestSendTaskHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestCaller(t).SendTask(t.Context(), srv.URL, SendTaskRequest{TaskID: "t", Text: "ping"})
	assert.ErrorIs(t, err, ErrAgentUnreachable)
}

func TestCallCapability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/task", r.URL.Path)

		var req CapabilityRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "summarize", req.Capability)
		assert.Equal(t, "short", req.Parameters["style"])

		_ = json.NewEncoder(w).Encode(CapabilityResponse{
			Success: true,
			Result:  json.RawMessage(`"a summary"`),
		})
	}))
	defer srv.Close()

	resp, err := newTestCaller(t).CallCapability(t.Context(), srv.URL, CapabilityRequest{
		Capability: "summarize",
		Parameters: map[string]any{"style": "short"},
		Context:    map[string]any{"task_id": "task-1"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, `"a summary"`, string(resp.Result))
}

func TestCallCapabilityFailureReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CapabilityResponse{Success: false, Error: "capability offline"})
	}))
	defer srv.Close()

	resp, err := newTestCaller(t).CallCapability(t.Context(), srv.URL, CapabilityRequest{Capability: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "capability offline", resp.Error)
}

func TestFetchCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/agent.json", r.URL.Path)
		_ = json.NewEncoder(w).Encode(AgentCard{
			Name:        "research-agent",
			Description: "Market research specialist",
			Skills: []Skill{
				{ID: "market_research", Name: "Market research"},
			},
		})
	}))
	defer srv.Close()

	card, err := newTestCaller(t).FetchCard(t.Context(), srv.URL, "/.well-known/agent.json")
	require.NoError(t, err)
	assert.Equal(t, "research-agent", card.Name)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "market_research", card.Skills[0].ID)
}

func TestFetchCardNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestCaller(t).FetchCard(t.Context(), srv.URL, "/a2a/agent.json")
	assert.ErrorIs(t, err, ErrAgentUnreachable)
}
