// Package router selects specialist agents for a query by keyword scoring
// against the active agent set.
package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/ensembleworks/ensemble/pkg/agents"
	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	// defaultTopK bounds how many agents one query can select.
	defaultTopK = 3

	// minScore is the keep threshold; below it the default agent handles
	// the query.
	minScore = 1.0

	// defaultConfidence assigned to the fallback agent.
	defaultConfidence = 0.5
)

// Selection is one routed agent with its confidence.
type Selection struct {
	Agent      models.Agent `json:"agent"`
	Confidence float64      `json:"confidence"`
}

// Config tunes the router.
type Config struct {
	// DefaultAgentName handles queries no specialist matched.
	DefaultAgentName string `yaml:"default_agent"`
	// OrchestratorName, when set, is prepended to every selection.
	OrchestratorName string `yaml:"orchestrator_agent,omitempty"`
	// TopK bounds the selection size (default 3).
	TopK int `yaml:"top_k"`
}

// Router scores active agents against query keywords.
type Router struct {
	registry *agents.Registry
	cfg      Config
}

// New creates a router over the registry.
func New(registry *agents.Registry, cfg Config) *Router {
	if cfg.DefaultAgentName == "" {
		cfg.DefaultAgentName = "technical_support"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &Router{registry: registry, cfg: cfg}
}

// Route returns the ordered agent selection for a query. Deterministic for
// a fixed agent set: same query, same ordered result within a cache epoch.
func (r *Router) Route(ctx context.Context, query string) ([]Selection, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewKindError(models.ErrKindInvalidInput, "query is empty")
	}

	active, err := r.registry.Active(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, models.NewKindError(models.ErrKindNoAgentsAvailable, "no active agents")
	}

	normalized := strings.ToLower(query)
	tokens := tokenize(normalized)
	categories := categoriesFor(tokens)

	type scored struct {
		agent models.Agent
		score float64
	}
	candidates := make([]scored, 0, len(active))
	for _, agent := range active {
		score := scoreAgent(agent, normalized, tokens, categories)
		if score >= minScore {
			candidates = append(candidates, scored{agent: agent, score: score})
		}
	}

	// Keyword collisions break by higher specialization, then name for a
	// stable total order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].agent.SpecializationScore != candidates[j].agent.SpecializationScore {
			return candidates[i].agent.SpecializationScore > candidates[j].agent.SpecializationScore
		}
		return candidates[i].agent.Name < candidates[j].agent.Name
	})

	selections := make([]Selection, 0, r.cfg.TopK)
	for _, cand := range candidates {
		confidence := cand.score / 3
		if confidence > 1 {
			confidence = 1
		}
		selections = append(selections, Selection{Agent: cand.agent, Confidence: confidence})
	}

	if len(selections) == 0 {
		fallback, err := r.registry.ByName(ctx, r.cfg.DefaultAgentName)
		if err != nil {
			return nil, models.NewKindError(models.ErrKindNoAgentsAvailable,
				"no matching agents and no default agent configured")
		}
		selections = append(selections, Selection{Agent: *fallback, Confidence: defaultConfidence})
		slog.Debug("Routing fell back to default agent", "agent", fallback.Name)
	}

	selections = r.prependOrchestrator(ctx, selections)
	if len(selections) > r.cfg.TopK {
		selections = selections[:r.cfg.TopK]
	}
	return selections, nil
}

// scoreAgent sums keyword signals: 1.0 for a direct query match, 0.5 for a
// category-level match.
func scoreAgent(agent models.Agent, normalizedQuery string, tokens map[string]bool, categories map[string]bool) float64 {
	score := 0.0
	for _, kw := range agent.Keywords {
		kw = strings.ToLower(kw)
		switch {
		case tokens[kw]:
			score += 1.0
		case strings.Contains(kw, " ") && strings.Contains(normalizedQuery, kw):
			// Multi-word keywords match as phrases.
			score += 1.0
		case categoryMatch(kw, categories):
			score += 0.5
		}
	}
	return score
}

// prependOrchestrator puts the configured orchestrator first, dropping any
// duplicate of it further down.
func (r *Router) prependOrchestrator(ctx context.Context, selections []Selection) []Selection {
	if r.cfg.OrchestratorName == "" {
		return selections
	}
	orchestrator, err := r.registry.ByName(ctx, r.cfg.OrchestratorName)
	if err != nil {
		return selections
	}

	out := make([]Selection, 0, len(selections)+1)
	out = append(out, Selection{Agent: *orchestrator, Confidence: 1.0})
	for _, sel := range selections {
		if sel.Agent.ID != orchestrator.ID {
			out = append(out, sel)
		}
	}
	return out
}

// tokenize splits a normalized query into a token set, trimming punctuation.
func tokenize(normalized string) map[string]bool {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return tokens
}
