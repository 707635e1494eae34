// Package knowledge retrieves ranked, deduplicated knowledge snippets and
// citations for a query by fanning out to vector search and web scraping
// in parallel.
package knowledge

import (
	"context"
	"time"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// SourceType identifies where a result came from.
type SourceType string

const (
	SourceIndexed SourceType = "indexed"
	SourceScraped SourceType = "scraped"
)

// Result is a single ranked knowledge snippet.
type Result struct {
	ID            string
	Title         string
	Content       string
	Category      string
	Tags          []string
	URL           string
	Source        SourceType
	BaseRelevance float64
	UpdatedAt     time.Time
	Score         float64
}

// Knowledge is the retriever output for one query.
type Knowledge struct {
	Results   []Result
	Citations []models.Citation
	// Warning is set when one or both sources failed. Non-fatal — the
	// caller decides whether to proceed without citations.
	Warning string
}

// VectorHit is a raw vector search match.
type VectorHit struct {
	ID         string
	Title      string
	Content    string
	Category   string
	Tags       []string
	Similarity float64
	UpdatedAt  time.Time
}

// VectorSearcher is the outbound vector search capability.
// Distance semantics are cosine; the embedding dimension is fixed per
// collection. Implementations may be remote (qdrant) or in-memory (chromem).
type VectorSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]VectorHit, error)
}

// ScrapeResult is the outcome of scraping a single URL.
type ScrapeResult struct {
	URL       string
	Title     string
	Content   string
	ScrapedAt time.Time
}

// Scraper is the outbound web scraping capability.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*ScrapeResult, error)
}

// Config tunes the retriever.
type Config struct {
	// CrawlURLs are candidate scrape targets, in priority order.
	CrawlURLs []string

	VectorTimeout time.Duration // per vector search call (default 5s)
	ScrapeTimeout time.Duration // per scrape call (default 15s)

	// MaxInFlightScrapes bounds concurrent scrapes (default 5).
	MaxInFlightScrapes int64
}

func (c *Config) applyDefaults() {
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = 5 * time.Second
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = 15 * time.Second
	}
	if c.MaxInFlightScrapes <= 0 {
		c.MaxInFlightScrapes = 5
	}
}
