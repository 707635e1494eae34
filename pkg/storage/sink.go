package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ensembleworks/ensemble/pkg/metrics"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// PostgresSink persists the metrics journal stream: interaction records,
// learning insights, and skill updates. Appends are idempotent on id so the
// journal's retry path cannot duplicate rows.
type PostgresSink struct {
	pool *pgxpool.Pool
}

var _ metrics.Sink = (*PostgresSink)(nil)

// NewPostgresSink creates a sink over the shared pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// AppendInteraction writes one interaction record.
func (s *PostgresSink) AppendInteraction(ctx context.Context, rec models.InteractionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO interactions
			(id, session_id, agent_id, capability, query_hash, quality,
			 latency_ms, tokens_used, cost, success, error_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.SessionID, rec.AgentID, string(rec.Capability), rec.QueryHash,
		rec.Quality, rec.LatencyMs, rec.TokensUsed, rec.Cost, rec.Success,
		string(rec.ErrorKind), rec.Timestamp)
	if err != nil {
		return fmt.Errorf("appending interaction %s: %w", rec.ID, err)
	}
	return nil
}

// AppendInsight writes one learning insight, updating status on conflict so
// insight lifecycle changes flow through the same path.
func (s *PostgresSink) AppendInsight(ctx context.Context, ins models.LearningInsight) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO learning_insights
			(id, type, title, description, confidence, data_points,
			 recommended_actions, status, created_at, implemented_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			implemented_at = EXCLUDED.implemented_at`,
		ins.ID, ins.Type, ins.Title, ins.Description, ins.Confidence,
		ins.DataPoints, ins.RecommendedActions, string(ins.Status),
		ins.CreatedAt, ins.ImplementedAt)
	if err != nil {
		return fmt.Errorf("appending insight %s: %w", ins.ID, err)
	}
	return nil
}

// AppendSkill upserts one (agent, skill) proficiency row.
func (s *PostgresSink) AppendSkill(ctx context.Context, skill models.AgentSkill) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_skills
			(agent_id, skill_name, proficiency, usage_count, trend, last_used)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id, skill_name) DO UPDATE SET
			proficiency = EXCLUDED.proficiency,
			usage_count = EXCLUDED.usage_count,
			trend = EXCLUDED.trend,
			last_used = EXCLUDED.last_used`,
		skill.AgentID, skill.SkillName, skill.Proficiency, skill.UsageCount,
		skill.Trend, skill.LastUsed)
	if err != nil {
		return fmt.Errorf("appending skill %s/%s: %w", skill.AgentID, skill.SkillName, err)
	}
	return nil
}
