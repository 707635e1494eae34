package agents

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// defaultCacheTTL bounds how stale the registry's view of the store can get.
const defaultCacheTTL = 5 * time.Minute

// Ranked is one keyword-lookup result.
type Ranked struct {
	Agent models.Agent
	Rank  float64
}

// Registry serves agent lookups from a TTL cache over a Store. Reads refresh
// lazily when the cache expires; writes refresh eagerly. Deactivated agents
// are excluded from routing lookups but stay resolvable by id so historical
// metrics keep their attribution.
type Registry struct {
	store Store
	clock ids.Clock
	ttl   time.Duration

	mu       sync.RWMutex
	byID     map[string]models.Agent
	ordered  []models.Agent // store order (by name)
	loadedAt time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

func WithClock(clock ids.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// NewRegistry creates a registry over the store. The first read populates
// the cache.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		clock: ids.NewMonotonicClock(),
		ttl:   defaultCacheTTL,
		byID:  make(map[string]models.Agent),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh reloads the cache from the store unconditionally.
func (r *Registry) Refresh(ctx context.Context) error {
	agents, err := r.store.List(ctx)
	if err != nil {
		return err
	}

	byID := make(map[string]models.Agent, len(agents))
	for _, agent := range agents {
		byID[agent.ID] = agent
	}

	r.mu.Lock()
	r.byID = byID
	r.ordered = agents
	r.loadedAt = r.clock.Now()
	r.mu.Unlock()

	slog.Debug("Agent registry refreshed", "agents", len(agents))
	return nil
}

// ensureFresh refreshes lazily when the cache epoch has expired. A refresh
// failure keeps serving the stale cache if one exists.
func (r *Registry) ensureFresh(ctx context.Context) error {
	r.mu.RLock()
	fresh := !r.loadedAt.IsZero() && r.clock.Now().Sub(r.loadedAt) < r.ttl
	hasCache := !r.loadedAt.IsZero()
	r.mu.RUnlock()

	if fresh {
		return nil
	}
	if err := r.Refresh(ctx); err != nil {
		if hasCache {
			slog.Warn("Agent registry refresh failed, serving stale cache", "error", err)
			return nil
		}
		return err
	}
	return nil
}

// Create validates and persists a new agent. The id is generated when empty.
func (r *Registry) Create(ctx context.Context, agent models.Agent) (*models.Agent, error) {
	if strings.TrimSpace(agent.Name) == "" {
		return nil, models.NewKindError(models.ErrKindInvalidInput, "agent name is required")
	}
	if err := r.ensureFresh(ctx); err != nil {
		return nil, err
	}
	if existing := r.activeByName(agent.Name); existing != nil && existing.ID != agent.ID {
		return nil, models.NewKindError(models.ErrKindInvalidInput,
			"agent name already in use: "+agent.Name)
	}

	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	agent.Normalize()
	now := r.clock.Now()
	agent.CreatedAt = now
	agent.UpdatedAt = now
	agent.IsActive = true

	if err := r.store.Upsert(ctx, agent); err != nil {
		return nil, err
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Update replaces an existing agent's definition, preserving CreatedAt.
func (r *Registry) Update(ctx context.Context, agent models.Agent) (*models.Agent, error) {
	current, err := r.ByID(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(agent.Name) == "" {
		return nil, models.NewKindError(models.ErrKindInvalidInput, "agent name is required")
	}
	if existing := r.activeByName(agent.Name); existing != nil && existing.ID != agent.ID {
		return nil, models.NewKindError(models.ErrKindInvalidInput,
			"agent name already in use: "+agent.Name)
	}

	agent.Normalize()
	agent.CreatedAt = current.CreatedAt
	agent.UpdatedAt = r.clock.Now()

	if err := r.store.Upsert(ctx, agent); err != nil {
		return nil, err
	}
	if err := r.Refresh(ctx); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Deactivate soft-deletes an agent: it disappears from routing but remains
// resolvable by id.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	agent, err := r.ByID(ctx, id)
	if err != nil {
		return err
	}
	agent.IsActive = false
	agent.UpdatedAt = r.clock.Now()
	if err := r.store.Upsert(ctx, *agent); err != nil {
		return err
	}
	return r.Refresh(ctx)
}

// ByID resolves any agent, active or not.
func (r *Registry) ByID(ctx context.Context, id string) (*models.Agent, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.byID[id]
	if !ok {
		return nil, models.NewKindError(models.ErrKindNotFound, "agent not found: "+id)
	}
	return &agent, nil
}

// ByName resolves an active agent by exact name.
func (r *Registry) ByName(ctx context.Context, name string) (*models.Agent, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return nil, err
	}
	if agent := r.activeByName(name); agent != nil {
		return agent, nil
	}
	return nil, models.NewKindError(models.ErrKindNotFound, "agent not found: "+name)
}

func (r *Registry) activeByName(name string) *models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, agent := range r.ordered {
		if agent.IsActive && agent.Name == name {
			found := agent
			return &found
		}
	}
	return nil
}

// Active returns all active agents in name order.
func (r *Registry) Active(ctx context.Context) ([]models.Agent, error) {
	if err := r.ensureFresh(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Agent, 0, len(r.ordered))
	for _, agent := range r.ordered {
		if agent.IsActive {
			out = append(out, agent)
		}
	}
	return out, nil
}

// ActiveCount returns the number of active agents.
func (r *Registry) ActiveCount(ctx context.Context) (int, error) {
	active, err := r.Active(ctx)
	if err != nil {
		return 0, err
	}
	return len(active), nil
}

// ByDomain returns active agents tagged with the domain.
func (r *Registry) ByDomain(ctx context.Context, domain string) ([]models.Agent, error) {
	active, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}
	out := active[:0]
	for _, agent := range active {
		if agent.Domain == domain {
			out = append(out, agent)
		}
	}
	return out, nil
}

// ByKeywords ranks active agents by keyword overlap:
// rank = matching keyword count + 0.5 × specialization score.
// Agents with no matches are omitted.
func (r *Registry) ByKeywords(ctx context.Context, keywords []string) ([]Ranked, error) {
	active, err := r.Active(ctx)
	if err != nil {
		return nil, err
	}

	query := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		query[strings.ToLower(kw)] = true
	}

	ranked := make([]Ranked, 0, len(active))
	for _, agent := range active {
		matches := 0
		for _, kw := range agent.Keywords {
			if query[strings.ToLower(kw)] {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		ranked = append(ranked, Ranked{
			Agent: agent,
			Rank:  float64(matches) + 0.5*agent.SpecializationScore,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Rank > ranked[j].Rank })
	return ranked, nil
}
