package models

import "time"

// CitationType distinguishes indexed knowledge from scraped web content.
type CitationType string

const (
	CitationInternal CitationType = "internal"
	CitationExternal CitationType = "external"
)

// KnowledgeArticle is an indexed knowledge entry. RelevanceScore is
// transient — populated per query by the retriever, zero at rest.
type KnowledgeArticle struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	Category       string    `json:"category,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
}

// Citation is a structured pointer to a knowledge source used in an answer.
type Citation struct {
	Index      int          `json:"index"`
	Title      string       `json:"title"`
	Source     string       `json:"source"`
	URL        string       `json:"url,omitempty"`
	Relevance  float64      `json:"relevance"`
	Type       CitationType `json:"type"`
	AccessedAt time.Time    `json:"accessed_at"`
}
