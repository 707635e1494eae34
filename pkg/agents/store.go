// Package agents owns agent definitions: a backing store, a TTL-cached
// registry, and keyword/domain lookup for routing.
package agents

import (
	"context"
	"sort"
	"sync"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// Store is the persistence boundary for agent definitions. Implementations
// must return copies; the registry treats results as owned.
type Store interface {
	// List returns every agent, active or not, sorted by name.
	List(ctx context.Context) ([]models.Agent, error)
	// Get returns an agent by id.
	Get(ctx context.Context, id string) (*models.Agent, error)
	// Upsert inserts or replaces an agent by id.
	Upsert(ctx context.Context, agent models.Agent) error
}

// MemoryStore is the in-process Store used for tests and single-node runs.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]models.Agent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]models.Agent)}
}

func (s *MemoryStore) List(_ context.Context) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[id]
	if !ok {
		return nil, models.NewKindError(models.ErrKindNotFound, "agent not found: "+id)
	}
	return &agent, nil
}

func (s *MemoryStore) Upsert(_ context.Context, agent models.Agent) error {
	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()
	return nil
}
