package discovery

import (
	"sort"
	"sync"
)

// Registry holds the discovered agent set. Re-discovery is incremental:
// applying a round replaces every entry whose endpoint was probed in
// that round and leaves agents at other endpoints untouched.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Apply merges one discovery round. probed lists the endpoints the round
// covered; stale entries at those endpoints are dropped before the found
// agents are inserted.
func (r *Registry) Apply(probed []string, found map[string]Agent) {
	probedSet := make(map[string]struct{}, len(probed))
	for _, ep := range probed {
		probedSet[normalize(ep)] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, agent := range r.agents {
		if _, ok := probedSet[agent.Endpoint]; ok {
			delete(r.agents, id)
		}
	}
	for id, agent := range found {
		r.agents[id] = agent
	}
}

// Get returns one agent by id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// Agents returns a snapshot of all agents, sorted by id.
func (r *Registry) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of known agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
