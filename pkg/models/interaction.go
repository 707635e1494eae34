package models

import "time"

// InteractionRecord is the canonical per-call metric record, appended on
// every agent invocation. Append-only — records are never mutated.
type InteractionRecord struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	AgentID    string         `json:"agent_id"`
	Capability CapabilityTier `json:"capability"`
	QueryHash  string         `json:"query_hash"`
	Quality    float64        `json:"quality"`
	LatencyMs  int64          `json:"latency_ms"`
	TokensUsed int            `json:"tokens_used"`
	Cost       float64        `json:"cost"`
	Success    bool           `json:"success"`
	ErrorKind  ErrorKind      `json:"error_kind,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// AgentSkill tracks per-agent proficiency for a named skill.
// Proficiency moves by bounded deltas; usage count is monotonic.
type AgentSkill struct {
	AgentID     string    `json:"agent_id"`
	SkillName   string    `json:"skill_name"`
	Proficiency float64   `json:"proficiency"`
	UsageCount  int       `json:"usage_count"`
	Trend       float64   `json:"trend"`
	LastUsed    time.Time `json:"last_used"`
}

// InsightStatus is the lifecycle state of a learning insight.
type InsightStatus string

const (
	InsightPending   InsightStatus = "pending"
	InsightApplied   InsightStatus = "applied"
	InsightDismissed InsightStatus = "dismissed"
)

// Insight type tags.
const (
	InsightLowSatisfaction  = "low_satisfaction"
	InsightHighSatisfaction = "high_satisfaction"
	InsightRoutingDrift     = "routing_drift"
	InsightMetricsShedding  = "metrics_shedding"
)

// LearningInsight is a learning signal derived from metrics and feedback.
// Pending insights may be applied to adjust router and pool weights.
type LearningInsight struct {
	ID                 string        `json:"id"`
	Type               string        `json:"type"`
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	Confidence         float64       `json:"confidence"`
	DataPoints         int           `json:"data_points"`
	RecommendedActions []string      `json:"recommended_actions"`
	Status             InsightStatus `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	ImplementedAt      *time.Time    `json:"implemented_at,omitempty"`
}

// MetricsSummary is the aggregate shape shared by per-agent and
// system-wide rollups.
type MetricsSummary struct {
	Interactions int     `json:"interactions"`
	AvgQuality   float64 `json:"avg_quality"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	AvgCost      float64 `json:"avg_cost"`
	AvgRating    float64 `json:"avg_rating"`
}
