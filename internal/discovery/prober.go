package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/orchestrd/internal/a2a"
	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// Prober probes endpoints for agents. All endpoint probes of one
// Discover call run concurrently; the limiter bounds how fast probe
// requests are issued across them.
type Prober struct {
	caller        *a2a.Caller
	http          *http.Client
	limiter       *rate.Limiter
	probeTimeout  time.Duration
	healthTimeout time.Duration
	log           *logging.Logger
	now           func() time.Time
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeHTTPClient overrides the client used for listing and health
// probes.
func WithProbeHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.http = c }
}

// NewProber creates a Prober. probeTimeout bounds each manifest or
// capability probe, healthTimeout each health probe.
func NewProber(caller *a2a.Caller, probesPerSecond float64, probeTimeout, healthTimeout time.Duration, log *logging.Logger, opts ...ProberOption) *Prober {
	p := &Prober{
		caller:        caller,
		http:          &http.Client{},
		limiter:       rate.NewLimiter(rate.Limit(probesPerSecond), int(probesPerSecond)+1),
		probeTimeout:  probeTimeout,
		healthTimeout: healthTimeout,
		log:           log.Named("discovery"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover probes every endpoint concurrently and returns the agents
// found, keyed by agent id. Endpoints that answer no probe are omitted;
// discovery degrades, it does not fail.
func (p *Prober) Discover(ctx context.Context, endpoints []string) map[string]Agent {
	var (
		mu    sync.Mutex
		found = make(map[string]Agent)
		wg    sync.WaitGroup
	)

	for _, endpoint := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent, ok := p.probeEndpoint(ctx, normalize(endpoint))
			if !ok {
				return
			}
			mu.Lock()
			found[agent.ID] = agent
			mu.Unlock()
		}()
	}
	wg.Wait()

	p.log.Info(ctx, "discovery round complete",
		zap.Int("endpoints", len(endpoints)),
		zap.Int("agents", len(found)),
	)
	return found
}

// probeEndpoint runs the cascade for one endpoint, first hit wins.
func (p *Prober) probeEndpoint(ctx context.Context, endpoint string) (Agent, bool) {
	if agent, ok := p.probeManifest(ctx, endpoint, manifestPath, MethodAgentCard); ok {
		return agent, true
	}
	if agent, ok := p.probeManifest(ctx, endpoint, standardManifestPath, MethodAgentCardStandard); ok {
		return agent, true
	}
	if agent, ok := p.probeCapabilities(ctx, endpoint); ok {
		return agent, true
	}
	if agent, ok := p.probeHealth(ctx, endpoint); ok {
		return agent, true
	}
	p.log.Debug(ctx, "endpoint offered nothing", zap.String("endpoint", endpoint))
	return Agent{}, false
}

func (p *Prober) probeManifest(ctx context.Context, endpoint, path, method string) (Agent, bool) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Agent{}, false
	}
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()

	card, err := p.caller.FetchCard(probeCtx, endpoint, path)
	if err != nil {
		p.log.Trace(ctx, "manifest probe missed",
			zap.String("endpoint", endpoint),
			zap.String("path", path),
			zap.Error(err),
		)
		return Agent{}, false
	}

	capabilities := make([]string, 0, len(card.Skills))
	for _, skill := range card.Skills {
		if skill.ID != "" {
			capabilities = append(capabilities, skill.ID)
			continue
		}
		capabilities = append(capabilities, agentID(skill.Name))
	}

	return Agent{
		ID:           agentID(card.Name),
		Name:         card.Name,
		Endpoint:     endpoint,
		Description:  card.Description,
		Capabilities: capabilities,
		Protocol:     ProtocolA2A,
		Method:       method,
		DiscoveredAt: p.now(),
	}, true
}

func (p *Prober) probeCapabilities(ctx context.Context, endpoint string) (Agent, bool) {
	var listing struct {
		AgentName    string   `json:"agent_name"`
		Description  string   `json:"description"`
		Capabilities []string `json:"capabilities"`
	}
	if !p.get(ctx, endpoint+capabilitiesPath, p.probeTimeout, &listing) {
		return Agent{}, false
	}

	return Agent{
		ID:           agentID(listing.AgentName),
		Name:         listing.AgentName,
		Endpoint:     endpoint,
		Description:  listing.Description,
		Capabilities: listing.Capabilities,
		Protocol:     ProtocolLegacy,
		Method:       MethodCapabilities,
		DiscoveredAt: p.now(),
	}, true
}

func (p *Prober) probeHealth(ctx context.Context, endpoint string) (Agent, bool) {
	var health struct {
		Agent string `json:"agent"`
	}
	if !p.get(ctx, endpoint+healthPath, p.healthTimeout, &health) {
		return Agent{}, false
	}

	// Presence without capability detail.
	return Agent{
		ID:           agentID(health.Agent),
		Name:         health.Agent,
		Endpoint:     endpoint,
		Capabilities: []string{},
		Protocol:     ProtocolUnknown,
		Method:       MethodHealthCheck,
		DiscoveredAt: p.now(),
	}, true
}

// get fetches and decodes a probe URL. Any failure is absorbed.
func (p *Prober) get(ctx context.Context, url string, timeout time.Duration, out any) bool {
	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		p.log.Trace(ctx, "probe missed", zap.String("url", url), zap.Error(err))
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		p.log.Trace(ctx, "probe body undecodable", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}
