package knowledge

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ensembleworks/ensemble/pkg/ids"
	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	// vectorScoreFloor: below this top similarity, the scraper is engaged
	// as a second opinion even for non-temporal queries.
	vectorScoreFloor = 0.7

	// fingerprintPrefix is how much lowercased content feeds the dedup hash.
	fingerprintPrefix = 500

	// maxCitations bounds citations attached to an answer.
	maxCitations = 5
)

// Retriever fans a query out to vector search and the scraper, then
// merges, deduplicates, ranks, and cites the results.
type Retriever struct {
	vector  VectorSearcher
	scraper Scraper
	cfg     Config

	scrapeSem *semaphore.Weighted
	clock     ids.Clock
}

// NewRetriever creates a retriever. Either capability may be nil
// (that source is simply skipped).
func NewRetriever(vector VectorSearcher, scraper Scraper, cfg Config) *Retriever {
	cfg.applyDefaults()
	return &Retriever{
		vector:    vector,
		scraper:   scraper,
		cfg:       cfg,
		scrapeSem: semaphore.NewWeighted(cfg.MaxInFlightScrapes),
		clock:     ids.NewMonotonicClock(),
	}
}

// Retrieve runs the retrieval pipeline for a query.
// Source failures are isolated: one empty or failed source never fails the
// call. When every source fails the result is empty with a warning.
func (r *Retriever) Retrieve(ctx context.Context, query string) *Knowledge {
	features := AnalyzeQuery(query)
	log := slog.With("query_len", len(query),
		"technical", features.Technical, "temporal", features.Temporal)

	vectorResults, vectorErr := r.searchVector(ctx, query, features.VectorLimit())

	needScrape := features.Temporal || features.Comparison || topSimilarity(vectorResults) < vectorScoreFloor
	var scrapeResults []Result
	var scrapeErr error
	if needScrape && r.scraper != nil && len(r.cfg.CrawlURLs) > 0 {
		scrapeResults, scrapeErr = r.scrapeURLs(ctx, features.ScrapeLimit())
	}

	merged := dedup(append(vectorResults, scrapeResults...))
	rank(merged, query, r.clock.Now())

	out := &Knowledge{Results: merged}
	out.Citations = r.cite(merged)

	if len(merged) == 0 && (vectorErr != nil || scrapeErr != nil) {
		out.Warning = "all knowledge sources failed"
		log.Warn("Knowledge retrieval returned nothing",
			"vector_error", vectorErr, "scrape_error", scrapeErr)
	} else if vectorErr != nil || scrapeErr != nil {
		out.Warning = "partial knowledge source failure"
	}
	return out
}

// searchVector queries the vector capability with its own timeout.
func (r *Retriever) searchVector(ctx context.Context, query string, limit int) ([]Result, error) {
	if r.vector == nil {
		return nil, nil
	}
	vctx, cancel := context.WithTimeout(ctx, r.cfg.VectorTimeout)
	defer cancel()

	hits, err := r.vector.Search(vctx, query, limit)
	if err != nil {
		slog.Warn("Vector search failed", "error", err)
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			ID:            hit.ID,
			Title:         hit.Title,
			Content:       hit.Content,
			Category:      hit.Category,
			Tags:          hit.Tags,
			Source:        SourceIndexed,
			BaseRelevance: hit.Similarity,
			UpdatedAt:     hit.UpdatedAt,
		})
	}
	return results, nil
}

// scrapeURLs scrapes up to limit configured URLs concurrently, bounded by
// the in-flight semaphore. Individual failures are dropped.
func (r *Retriever) scrapeURLs(ctx context.Context, limit int) ([]Result, error) {
	urls := r.cfg.CrawlURLs
	if len(urls) > limit {
		urls = urls[:limit]
	}

	var mu sync.Mutex
	var results []Result
	var firstErr error
	var wg sync.WaitGroup

	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			if err := r.scrapeSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer r.scrapeSem.Release(1)

			sctx, cancel := context.WithTimeout(ctx, r.cfg.ScrapeTimeout)
			defer cancel()

			res, err := r.scraper.Scrape(sctx, url)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("Scrape failed", "url", url, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results = append(results, Result{
				ID:            "scrape:" + url,
				Title:         res.Title,
				Content:       res.Content,
				URL:           url,
				Source:        SourceScraped,
				BaseRelevance: 0.6, // scrape relevance estimate: content matched a configured URL
				UpdatedAt:     res.ScrapedAt,
			})
		}(url)
	}
	wg.Wait()

	if len(results) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// dedup removes results whose lowercased first-500-char content prefix
// matches an earlier result. First occurrence wins.
func dedup(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, res := range results {
		fp := fingerprint(res.Content)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, res)
	}
	return out
}

func fingerprint(content string) string {
	lower := strings.ToLower(content)
	if len(lower) > fingerprintPrefix {
		lower = lower[:fingerprintPrefix]
	}
	sum := md5.Sum([]byte(lower))
	return hex.EncodeToString(sum[:])
}

// rank scores results in place and sorts them descending.
//
//	score = 0.5·baseRelevance + 0.2·freshness + sourceBonus + 0.15·titleMatch
func rank(results []Result, query string, now time.Time) {
	tokens := strings.Fields(strings.ToLower(query))
	for i := range results {
		res := &results[i]

		freshness := 0.0
		if !res.UpdatedAt.IsZero() {
			ageDays := now.Sub(res.UpdatedAt).Hours() / 24
			freshness = 1 - ageDays/365
			if freshness < 0 {
				freshness = 0
			}
		}

		sourceBonus := 0.10
		if res.Source == SourceScraped {
			sourceBonus = 0.15
		}

		titleMatch := 0.0
		title := strings.ToLower(res.Title)
		for _, tok := range tokens {
			if strings.Contains(title, tok) {
				titleMatch = 0.15
				break
			}
		}

		res.Score = 0.5*res.BaseRelevance + 0.2*freshness + sourceBonus + titleMatch
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// cite produces ordered citations from the top-ranked results.
func (r *Retriever) cite(results []Result) []models.Citation {
	now := r.clock.Now()
	citations := make([]models.Citation, 0, maxCitations)
	for i, res := range results {
		if i >= maxCitations {
			break
		}
		cite := models.Citation{
			Index:     i + 1,
			Title:     res.Title,
			Relevance: models.Clamp01(res.Score),
		}
		if res.Source == SourceScraped {
			cite.Type = models.CitationExternal
			cite.Source = res.URL
			cite.URL = res.URL
			cite.AccessedAt = now
		} else {
			cite.Type = models.CitationInternal
			cite.Source = res.Category
			cite.AccessedAt = res.UpdatedAt
		}
		citations = append(citations, cite)
	}
	return citations
}

func topSimilarity(results []Result) float64 {
	top := 0.0
	for _, res := range results {
		if res.BaseRelevance > top {
			top = res.BaseRelevance
		}
	}
	return top
}
