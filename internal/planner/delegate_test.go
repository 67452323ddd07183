package planner

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestrd/internal/config"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Agents: []AgentInfo{
			{ID: "research_agent", Endpoint: "http://localhost:8001", Capabilities: []string{"market_research"}, Protocol: "a2a"},
		},
		Tools: []ToolInfo{
			{Provider: "filesystem", Name: "write_file", Description: "Write a file"},
		},
	}
}

// chatServer fakes an OpenAI-compatible /chat/completions endpoint.
func chatServer(t *testing.T, content string, stream bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))

		// The client posts message content as an array of typed parts,
		// so keep it raw instead of decoding into a string.
		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, stream, req.Stream)
		require.NotEmpty(t, req.Messages)

		if !stream {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"model":  req.Model,
				"choices": []map[string]any{
					{
						"index":         0,
						"message":       map[string]any{"role": "assistant", "content": content},
						"finish_reason": "stop",
					},
				},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		// Stream in two chunks to exercise reassembly.
		half := len(content) / 2
		for _, chunk := range []string{content[:half], content[half:]} {
			payload, _ := json.Marshal(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion.chunk",
				"choices": []map[string]any{
					{"index": 0, "delta": map[string]any{"content": chunk}},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestDelegate(t *testing.T, baseURL string) *LLMDelegate {
	t.Helper()
	d, err := NewLLMDelegate(config.PlannerConfig{
		BaseURL:     baseURL,
		Model:       "test-model",
		MaxTokens:   512,
		Temperature: 0.2,
	}, logging.Nop())
	require.NoError(t, err)
	return d
}

func TestLLMDelegatePlan(t *testing.T) {
	srv := chatServer(t, validPlanJSON, false)
	d := newTestDelegate(t, srv.URL)

	plan, err := d.Plan(t.Context(), testSnapshot(), "research the robotics market and save a report")
	require.NoError(t, err)
	assert.Equal(t, StrategyMultiAgent, plan.Strategy)
	assert.Len(t, plan.Steps, 2)
}

func TestLLMDelegatePlanStream(t *testing.T) {
	srv := chatServer(t, validPlanJSON, true)
	d := newTestDelegate(t, srv.URL)

	var chunks []string
	plan, err := d.PlanStream(t.Context(), testSnapshot(), "research", func(chunk string) {
		chunks = append(chunks, chunk)
	})
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)

	require.NotEmpty(t, chunks)
	assert.Equal(t, validPlanJSON, strings.Join(chunks, ""))
}

func TestLLMDelegateMalformedOutput(t *testing.T) {
	srv := chatServer(t, "I am sorry, I cannot produce a plan today.", false)
	d := newTestDelegate(t, srv.URL)

	_, err := d.Plan(t.Context(), testSnapshot(), "research")
	assert.ErrorIs(t, err, ErrMalformedPlan)
}

func TestLLMDelegateServerDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close()
	d := newTestDelegate(t, srv.URL)

	_, err := d.Plan(t.Context(), testSnapshot(), "research")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedPlan)
}

func TestBuildPromptEmbedsSnapshot(t *testing.T) {
	prompt, err := buildPrompt(testSnapshot(), "do the thing")
	require.NoError(t, err)
	assert.Contains(t, prompt, "research_agent")
	assert.Contains(t, prompt, "write_file")
	assert.Contains(t, prompt, "do the thing")
	assert.Contains(t, prompt, "execution_strategy")
}
