package api

import (
	"time"

	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// knowledgeResult is the wire shape of one knowledge search hit.
type knowledgeResult struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	URL       string    `json:"url,omitempty"`
	Source    string    `json:"source"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// knowledgeSearchResponse is the body for GET /api/v1/knowledge/search.
type knowledgeSearchResponse struct {
	Query        string            `json:"query"`
	Results      []knowledgeResult `json:"results"`
	TotalResults int               `json:"total_results"`
	Citations    []models.Citation `json:"citations,omitempty"`
	Warning      string            `json:"warning,omitempty"`
}

func toKnowledgeResponse(query string, k *knowledge.Knowledge, limit int) knowledgeSearchResponse {
	resp := knowledgeSearchResponse{
		Query:        query,
		Results:      make([]knowledgeResult, 0, len(k.Results)),
		TotalResults: len(k.Results),
		Citations:    k.Citations,
		Warning:      k.Warning,
	}
	results := k.Results
	if len(results) > limit {
		results = results[:limit]
	}
	for _, r := range results {
		resp.Results = append(resp.Results, knowledgeResult{
			ID:        r.ID,
			Title:     r.Title,
			Content:   r.Content,
			Category:  r.Category,
			Tags:      r.Tags,
			URL:       r.URL,
			Source:    string(r.Source),
			Score:     r.Score,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return resp
}

// sessionListResponse is the body for GET /api/v1/sessions.
type sessionListResponse struct {
	Sessions []models.SessionSummary `json:"sessions"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

// metricsSummaryResponse is the body for GET /api/v1/metrics/summary.
type metricsSummaryResponse struct {
	AgentID string                `json:"agent_id,omitempty"`
	Window  string                `json:"window"`
	Summary models.MetricsSummary `json:"summary"`
}
