package discovery

import (
	"strings"
	"time"
)

// Probe cascade paths, in priority order.
const (
	manifestPath         = "/a2a/agent.json"
	standardManifestPath = "/.well-known/agent.json"
	capabilitiesPath     = "/capabilities"
	healthPath           = "/health"
)

// Protocol tags for discovered agents.
const (
	ProtocolA2A     = "a2a"
	ProtocolLegacy  = "legacy"
	ProtocolUnknown = "unknown"
)

// Discovery method tags, recording which probe succeeded.
const (
	MethodAgentCard         = "agent_card"
	MethodAgentCardStandard = "agent_card_standard"
	MethodCapabilities      = "capabilities_endpoint"
	MethodHealthCheck       = "health_check"
)

// Agent is one discovered specialist agent.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint"`
	Description  string    `json:"description,omitempty"`
	Capabilities []string  `json:"capabilities"`
	Protocol     string    `json:"protocol"`
	Method       string    `json:"discovery_method"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// normalize trims a trailing slash so endpoint comparisons are stable.
func normalize(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

// agentID derives a stable identifier from an advertised agent name.
func agentID(name string) string {
	if name == "" {
		name = "unknown"
	}
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
