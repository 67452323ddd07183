package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/orchestrd/internal/logging"
)

// Service ties a Prober to a Registry and runs the periodic refresh
// loop over the configured seed endpoints.
type Service struct {
	prober    *Prober
	registry  *Registry
	endpoints []string
	log       *logging.Logger
}

// NewService creates a discovery service over the seed endpoints.
func NewService(prober *Prober, registry *Registry, endpoints []string, log *logging.Logger) *Service {
	return &Service{
		prober:    prober,
		registry:  registry,
		endpoints: endpoints,
		log:       log.Named("discovery"),
	}
}

// Registry returns the backing registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Agents returns the currently known agent set.
func (s *Service) Agents() []Agent {
	return s.registry.Agents()
}

// Get looks up one agent by id.
func (s *Service) Get(id string) (Agent, bool) {
	return s.registry.Get(id)
}

// Refresh runs one discovery round over the seed endpoints and applies
// it to the registry. Returns the number of agents found in this round.
func (s *Service) Refresh(ctx context.Context) int {
	found := s.prober.Discover(ctx, s.endpoints)
	s.registry.Apply(s.endpoints, found)
	return len(found)
}

// Run refreshes periodically until the context is canceled. A zero or
// negative interval disables the loop after the initial refresh.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := s.Refresh(ctx)
			s.log.Debug(ctx, "periodic re-discovery", zap.Int("agents", n))
		}
	}
}
