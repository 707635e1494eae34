// Package storage implements the Postgres-backed persistence layer: the
// durable agent store and the metrics sink.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ensembleworks/ensemble/pkg/agents"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// PostgresAgentStore persists agents in the agents table.
type PostgresAgentStore struct {
	pool *pgxpool.Pool
}

var _ agents.Store = (*PostgresAgentStore)(nil)

// NewPostgresAgentStore creates a store over the shared pool.
func NewPostgresAgentStore(pool *pgxpool.Pool) *PostgresAgentStore {
	return &PostgresAgentStore{pool: pool}
}

const agentColumns = `id, name, role, goal, backstory, keywords, domain,
	preferred_tier, tools, specialization_score, collaboration_score,
	is_active, avatar, color, performance, created_at, updated_at`

// List returns every agent, active or not, sorted by name.
func (s *PostgresAgentStore) List(ctx context.Context) ([]models.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var out []models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

// Get returns an agent by id.
func (s *PostgresAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewKindError(models.ErrKindNotFound, "agent not found: "+id)
	}
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// Upsert inserts or replaces an agent by id.
func (s *PostgresAgentStore) Upsert(ctx context.Context, agent models.Agent) error {
	performance, err := json.Marshal(agent.Performance)
	if err != nil {
		return fmt.Errorf("encoding agent performance: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			goal = EXCLUDED.goal,
			backstory = EXCLUDED.backstory,
			keywords = EXCLUDED.keywords,
			domain = EXCLUDED.domain,
			preferred_tier = EXCLUDED.preferred_tier,
			tools = EXCLUDED.tools,
			specialization_score = EXCLUDED.specialization_score,
			collaboration_score = EXCLUDED.collaboration_score,
			is_active = EXCLUDED.is_active,
			avatar = EXCLUDED.avatar,
			color = EXCLUDED.color,
			performance = EXCLUDED.performance,
			updated_at = EXCLUDED.updated_at`,
		agent.ID, agent.Name, agent.Role, agent.Goal, agent.Backstory,
		agent.Keywords, agent.Domain, string(agent.PreferredTier), agent.Tools,
		agent.SpecializationScore, agent.CollaborationScore, agent.IsActive,
		agent.Avatar, agent.Color, performance, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting agent %s: %w", agent.ID, err)
	}
	return nil
}

// scanAgent maps one row onto a models.Agent.
func scanAgent(row pgx.Row) (models.Agent, error) {
	var (
		agent       models.Agent
		tier        string
		performance []byte
	)
	err := row.Scan(
		&agent.ID, &agent.Name, &agent.Role, &agent.Goal, &agent.Backstory,
		&agent.Keywords, &agent.Domain, &tier, &agent.Tools,
		&agent.SpecializationScore, &agent.CollaborationScore, &agent.IsActive,
		&agent.Avatar, &agent.Color, &performance, &agent.CreatedAt, &agent.UpdatedAt)
	if err != nil {
		return models.Agent{}, err
	}
	agent.PreferredTier = models.CapabilityTier(tier)
	if len(performance) > 0 {
		if err := json.Unmarshal(performance, &agent.Performance); err != nil {
			return models.Agent{}, fmt.Errorf("decoding agent performance: %w", err)
		}
	}
	return agent, nil
}
