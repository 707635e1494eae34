// Package models contains the shared data model for the orchestration core.
// Entities are owned by exactly one component; everything here is a plain
// value passed across component boundaries by id or by copy.
package models

import "time"

// CapabilityTier is the logical LLM tier an agent prefers.
type CapabilityTier string

const (
	TierFast      CapabilityTier = "fast"
	TierBalanced  CapabilityTier = "balanced"
	TierPowerful  CapabilityTier = "powerful"
	TierReasoning CapabilityTier = "reasoning"
	TierCreative  CapabilityTier = "creative"
	TierLocal     CapabilityTier = "local"
)

// ValidTier reports whether t is one of the known capability tiers.
func ValidTier(t CapabilityTier) bool {
	switch t {
	case TierFast, TierBalanced, TierPowerful, TierReasoning, TierCreative, TierLocal:
		return true
	}
	return false
}

// Agent is a specialist identity with routing keywords, prompt material,
// and a preferred LLM tier. Owned by the AgentRegistry.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Goal      string `json:"goal"`
	Backstory string `json:"backstory,omitempty"`

	// Routing features
	Keywords []string `json:"keywords"`
	Domain   string   `json:"domain"`

	// Execution config
	PreferredTier CapabilityTier `json:"preferred_tier"`
	Tools         []string       `json:"tools,omitempty"`

	// Scoring attributes, clamped to [0,1]
	SpecializationScore float64 `json:"specialization_score"`
	CollaborationScore  float64 `json:"collaboration_score"`

	IsActive bool   `json:"is_active"`
	Avatar   string `json:"avatar,omitempty"`
	Color    string `json:"color,omitempty"`

	// Rolling performance summary, updated from metrics rollups.
	Performance AgentPerformance `json:"performance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentPerformance is the embedded rolling-average summary.
type AgentPerformance struct {
	Interactions int     `json:"interactions"`
	AvgQuality   float64 `json:"avg_quality"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SuccessRate  float64 `json:"success_rate"`
	AvgRating    float64 `json:"avg_rating,omitempty"`
}

// Clamp01 bounds v to [0,1]. Score fields pass through this on every write.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalize enforces agent invariants in place: scores clamped, tier
// defaulted to balanced when unset or unknown.
func (a *Agent) Normalize() {
	a.SpecializationScore = Clamp01(a.SpecializationScore)
	a.CollaborationScore = Clamp01(a.CollaborationScore)
	if !ValidTier(a.PreferredTier) {
		a.PreferredTier = TierBalanced
	}
}
