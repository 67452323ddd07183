package discovery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/orchestrd/internal/a2a"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

func newTestProber(t *testing.T) *Prober {
	t.Helper()
	caller := a2a.NewCaller(2*time.Second, logging.Nop())
	return NewProber(caller, 200, 500*time.Millisecond, 500*time.Millisecond, logging.Nop())
}

// agentServer serves the subset of probe paths a fake agent supports.
func agentServer(t *testing.T, handlers map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverManifestWins(t *testing.T) {
	srv := agentServer(t, map[string]any{
		"/a2a/agent.json": a2a.AgentCard{
			Name:        "Research Agent",
			Description: "Market research specialist",
			Skills: []a2a.Skill{
				{ID: "market_research", Name: "Market research"},
				{ID: "trend_analysis", Name: "Trend analysis"},
			},
		},
		"/capabilities": map[string]any{"agent_name": "should not be used"},
	})

	found := newTestProber(t).Discover(t.Context(), []string{srv.URL})
	require.Len(t, found, 1)

	agent, ok := found["research_agent"]
	require.True(t, ok)
	assert.Equal(t, "Research Agent", agent.Name)
	assert.Equal(t, srv.URL, agent.Endpoint)
	assert.Equal(t, ProtocolA2A, agent.Protocol)
	assert.Equal(t, MethodAgentCard, agent.Method)
	assert.Equal(t, []string{"market_research", "trend_analysis"}, agent.Capabilities)
}

func TestDiscoverStandardManifestFallback(t *testing.T) {
	srv := agentServer(t, map[string]any{
		"/.well-known/agent.json": a2a.AgentCard{
			Name:   "Analysis Agent",
			Skills: []a2a.Skill{{ID: "data_analysis"}},
		},
	})

	found := newTestProber(t).Discover(t.Context(), []string{srv.URL})
	require.Len(t, found, 1)

	agent := found["analysis_agent"]
	assert.Equal(t, ProtocolA2A, agent.Protocol)
	assert.Equal(t, MethodAgentCardStandard, agent.Method)
}

func TestDiscoverLegacyCapabilities(t *testing.T) {
	srv := agentServer(t, map[string]any{
		"/capabilities": map[string]any{
			"agent_name":   "Report Agent",
			"description":  "Generates reports",
			"capabilities": []string{"report_generation"},
		},
	})

	found := newTestProber(t).Discover(t.Context(), []string{srv.URL})
	require.Len(t, found, 1)

	agent := found["report_agent"]
	assert.Equal(t, ProtocolLegacy, agent.Protocol)
	assert.Equal(t, MethodCapabilities, agent.Method)
	assert.Equal(t, []string{"report_generation"}, agent.Capabilities)
	assert.Equal(t, "Generates reports", agent.Description)
}

func TestDiscoverHealthOnly(t *testing.T) {
	srv := agentServer(t, map[string]any{
		"/health": map[string]any{"agent": "Mystery Agent", "status": "ok"},
	})

	found := newTestProber(t).Discover(t.Context(), []string{srv.URL})
	require.Len(t, found, 1)

	agent := found["mystery_agent"]
	assert.Equal(t, ProtocolUnknown, agent.Protocol)
	assert.Equal(t, MethodHealthCheck, agent.Method)
	assert.Empty(t, agent.Capabilities)
	assert.NotNil(t, agent.Capabilities)
}

func TestDiscoverUnreachableOmitted(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	live := agentServer(t, map[string]any{
		"/health": map[string]any{"agent": "Survivor"},
	})

	found := newTestProber(t).Discover(t.Context(), []string{dead.URL, live.URL})
	require.Len(t, found, 1)
	assert.Contains(t, found, "survivor")
}

func TestDiscoverSlowEndpointAbsorbed(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(slow.Close)
	live := agentServer(t, map[string]any{
		"/health": map[string]any{"agent": "Punctual"},
	})

	caller := a2a.NewCaller(5*time.Second, logging.Nop())
	prober := NewProber(caller, 200, 50*time.Millisecond, 50*time.Millisecond, logging.Nop())

	found := prober.Discover(t.Context(), []string{slow.URL, live.URL})
	require.Len(t, found, 1)
	assert.Contains(t, found, "punctual")
}

func TestServiceRefresh(t *testing.T) {
	srv := agentServer(t, map[string]any{
		"/health": map[string]any{"agent": "Pinger"},
	})

	svc := NewService(newTestProber(t), NewRegistry(), []string{srv.URL}, logging.Nop())
	n := svc.Refresh(t.Context())
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, svc.Registry().Len())

	_, ok := svc.Registry().Get("pinger")
	assert.True(t, ok)
}
