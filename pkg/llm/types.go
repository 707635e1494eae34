// Package llm owns the pool of configured model capabilities: selection by
// task type and complexity, live per-capability metrics, and invocation with
// fallback across capabilities.
package llm

import (
	"context"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// Request is a single model invocation.
type Request struct {
	ModelID      string
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
}

// Response is the model output.
type Response struct {
	Text         string
	TokensIn     int
	TokensOut    int
	FinishReason string
}

// Invoker is the outbound model capability interface. Implementations must
// honor ctx cancellation and return a models.KindError on failure so the
// pool can classify it.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// CapabilityConfig binds a logical tier to a concrete provider model.
type CapabilityConfig struct {
	Tier         models.CapabilityTier `yaml:"tier"`
	ModelID      string                `yaml:"model_id"`
	Temperature  float64               `yaml:"temperature"`
	MaxTokens    int                   `yaml:"max_tokens"`
	CostPerToken float64               `yaml:"cost_per_token"`
}

// InvokeRequest is what the coordinator hands the pool: selection inputs
// plus the assembled prompt.
type InvokeRequest struct {
	TaskType      string
	Complexity    float64
	BudgetCap     float64 // max costPerToken; 0 means unbounded
	PreferredTier models.CapabilityTier

	SystemPrompt string
	UserPrompt   string
	MaxTokens    int // 0 uses the capability ceiling
}

// InvokeResult reports a successful invocation and which capability served it.
type InvokeResult struct {
	Text         string
	Tier         models.CapabilityTier
	ModelID      string
	TokensIn     int
	TokensOut    int
	Cost         float64
	LatencyMs    int64
	FinishReason string
	Attempts     int
}

// Candidate is one scored selection option.
type Candidate struct {
	Tier  models.CapabilityTier
	Score float64
}

// CapabilityStats is the read-only metrics view of one capability.
type CapabilityStats struct {
	Tier            models.CapabilityTier `json:"tier"`
	ModelID         string                `json:"model_id"`
	AvgQuality      float64               `json:"avg_quality"`
	QualitySamples  int                   `json:"quality_samples"`
	AvgResponseSec  float64               `json:"avg_response_sec"`
	SuccessCount    int64                 `json:"success_count"`
	ErrorCount      int64                 `json:"error_count"`
	TokensIn        int64                 `json:"tokens_in"`
	TokensOut       int64                 `json:"tokens_out"`
	TotalCost       float64               `json:"total_cost"`
	EfficiencyScore float64               `json:"efficiency_score"`
}
