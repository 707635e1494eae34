// Package coordinator owns the per-query orchestration: routing, planning,
// knowledge retrieval, agent execution, synthesis, and commit, with budgets
// and cooperative cancellation.
package coordinator

import (
	"context"
	"time"

	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/llm"
	"github.com/ensembleworks/ensemble/pkg/models"
	"github.com/ensembleworks/ensemble/pkg/router"
)

// Router selects agents for a query.
type Router interface {
	Route(ctx context.Context, query string) ([]router.Selection, error)
}

// Retriever produces ranked knowledge and citations for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) *knowledge.Knowledge
}

// Pool invokes a model capability with internal fallback.
type Pool interface {
	Invoke(ctx context.Context, req llm.InvokeRequest) (*llm.InvokeResult, error)
	RecordQuality(tier models.CapabilityTier, quality float64)
}

// Budgets are the execution resource limits.
type Budgets struct {
	ExecutionTimeout  time.Duration `yaml:"execution_timeout"`
	AgentTimeout      time.Duration `yaml:"agent_timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxParallelAgents int           `yaml:"max_parallel_agents"`
	CancelTimeout     time.Duration `yaml:"cancel_timeout"`
}

// DefaultBudgets returns the standard limits.
func DefaultBudgets() Budgets {
	return Budgets{
		ExecutionTimeout:  120 * time.Second,
		AgentTimeout:      60 * time.Second,
		MaxTokens:         4096,
		MaxParallelAgents: 3,
		CancelTimeout:     2 * time.Second,
	}
}

func (b *Budgets) applyDefaults() {
	def := DefaultBudgets()
	if b.ExecutionTimeout <= 0 {
		b.ExecutionTimeout = def.ExecutionTimeout
	}
	if b.AgentTimeout <= 0 {
		b.AgentTimeout = def.AgentTimeout
	}
	if b.MaxTokens <= 0 {
		b.MaxTokens = def.MaxTokens
	}
	if b.MaxParallelAgents <= 0 {
		b.MaxParallelAgents = def.MaxParallelAgents
	}
	if b.CancelTimeout <= 0 {
		b.CancelTimeout = def.CancelTimeout
	}
}

// Request is one inbound query.
type Request struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Query     string `json:"query"`
	Context   string `json:"context,omitempty"`
}

// Performance summarizes one execution's resource use.
type Performance struct {
	ResponseTimeMs int64   `json:"response_time_ms"`
	TokensUsed     int     `json:"tokens_used"`
	Cost           float64 `json:"cost"`
	QualityScore   float64 `json:"quality_score"`
}

// Warning describes a non-fatal sub-operation failure.
type Warning struct {
	AgentName string           `json:"agent_name,omitempty"`
	Kind      models.ErrorKind `json:"kind"`
	Message   string           `json:"message"`
}

// Result is the synthesized answer for one query.
type Result struct {
	SessionID   string            `json:"session_id"`
	Response    string            `json:"response"`
	Citations   []models.Citation `json:"citations,omitempty"`
	AgentsUsed  []string          `json:"agents_used"`
	Performance Performance       `json:"performance"`
	// Warnings is populated on partial failures.
	Warnings []Warning `json:"warnings,omitempty"`
	// ErrorKind is partial_failure when some agents or sources failed but
	// a response was still produced; empty otherwise.
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
}

// agentOutcome is the per-agent execution result.
type agentOutcome struct {
	selection router.Selection
	text      string
	tier      models.CapabilityTier
	quality   float64
	tokens    int
	cost      float64
	err       error
}
