package knowledge

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/pkg/models"
)

type fakeVector struct {
	hits  []VectorHit
	err   error
	calls atomic.Int32
}

func (f *fakeVector) Search(_ context.Context, _ string, _ int) ([]VectorHit, error) {
	f.calls.Add(1)
	return f.hits, f.err
}

type fakeScraper struct {
	pages map[string]*ScrapeResult
	err   error
	calls atomic.Int32
}

func (f *fakeScraper) Scrape(_ context.Context, url string) (*ScrapeResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return nil, errors.New("no such page")
}

func TestRetrieveVectorOnly(t *testing.T) {
	vector := &fakeVector{hits: []VectorHit{
		{ID: "kb-1", Title: "Billing overview", Content: "billing content", Category: "billing", Similarity: 0.9, UpdatedAt: time.Now()},
		{ID: "kb-2", Title: "Refund policy", Content: "refund content", Category: "billing", Similarity: 0.8, UpdatedAt: time.Now()},
	}}
	scraper := &fakeScraper{}
	r := NewRetriever(vector, scraper, Config{CrawlURLs: []string{"https://example.com/docs"}})

	out := r.Retrieve(context.Background(), "where is my invoice")

	require.Len(t, out.Results, 2)
	assert.Empty(t, out.Warning)
	// Top similarity is above the floor and the query is not temporal, so
	// the scraper stays idle.
	assert.Zero(t, scraper.calls.Load())
	assert.Equal(t, "kb-1", out.Results[0].ID)
}

func TestRetrieveEngagesScraperForTemporalQuery(t *testing.T) {
	vector := &fakeVector{hits: []VectorHit{
		{ID: "kb-1", Title: "Pricing", Content: "old pricing", Similarity: 0.95},
	}}
	scraper := &fakeScraper{pages: map[string]*ScrapeResult{
		"https://example.com/pricing": {
			URL:       "https://example.com/pricing",
			Title:     "Current pricing",
			Content:   "fresh pricing content",
			ScrapedAt: time.Now(),
		},
	}}
	r := NewRetriever(vector, scraper, Config{CrawlURLs: []string{"https://example.com/pricing"}})

	out := r.Retrieve(context.Background(), "what is the latest pricing")

	require.Len(t, out.Results, 2)
	assert.Equal(t, int32(1), scraper.calls.Load())
}

func TestRetrieveEngagesScraperOnWeakVectorMatch(t *testing.T) {
	vector := &fakeVector{hits: []VectorHit{
		{ID: "kb-1", Title: "Unrelated", Content: "something else", Similarity: 0.4},
	}}
	scraper := &fakeScraper{pages: map[string]*ScrapeResult{
		"https://example.com/docs": {URL: "https://example.com/docs", Title: "Docs", Content: "doc body", ScrapedAt: time.Now()},
	}}
	r := NewRetriever(vector, scraper, Config{CrawlURLs: []string{"https://example.com/docs"}})

	out := r.Retrieve(context.Background(), "where is my invoice")

	assert.Equal(t, int32(1), scraper.calls.Load())
	require.Len(t, out.Results, 2)
}

func TestRetrieveDedupFirstWins(t *testing.T) {
	shared := strings.Repeat("same content ", 50)
	vector := &fakeVector{hits: []VectorHit{
		{ID: "kb-1", Title: "First", Content: shared + "tail one", Similarity: 0.9},
		{ID: "kb-2", Title: "Second", Content: strings.ToUpper(shared) + "tail two", Similarity: 0.8},
		{ID: "kb-3", Title: "Distinct", Content: "entirely different", Similarity: 0.75},
	}}
	r := NewRetriever(vector, nil, Config{})

	out := r.Retrieve(context.Background(), "anything specific enough")

	// kb-2 shares the first 500 lowercased chars with kb-1 and is dropped.
	require.Len(t, out.Results, 2)
	ids := []string{out.Results[0].ID, out.Results[1].ID}
	assert.Contains(t, ids, "kb-1")
	assert.Contains(t, ids, "kb-3")
	assert.NotContains(t, ids, "kb-2")
}

func TestRetrieveRanking(t *testing.T) {
	now := time.Now()
	vector := &fakeVector{hits: []VectorHit{
		{ID: "stale", Title: "Nothing relevant", Content: "a", Similarity: 0.8, UpdatedAt: now.AddDate(-2, 0, 0)},
		{ID: "fresh-title", Title: "Invoice guide", Content: "b", Similarity: 0.8, UpdatedAt: now},
	}}
	r := NewRetriever(vector, nil, Config{})

	out := r.Retrieve(context.Background(), "invoice")

	require.Len(t, out.Results, 2)
	// Same base relevance, but freshness and the title match push it up.
	assert.Equal(t, "fresh-title", out.Results[0].ID)
	assert.Greater(t, out.Results[0].Score, out.Results[1].Score)
}

func TestRetrieveAllSourcesFailed(t *testing.T) {
	vector := &fakeVector{err: errors.New("vector store down")}
	scraper := &fakeScraper{err: errors.New("network unreachable")}
	r := NewRetriever(vector, scraper, Config{CrawlURLs: []string{"https://example.com/docs"}})

	out := r.Retrieve(context.Background(), "latest updates")

	assert.Empty(t, out.Results)
	assert.Empty(t, out.Citations)
	assert.Equal(t, "all knowledge sources failed", out.Warning)
}

func TestRetrievePartialFailure(t *testing.T) {
	vector := &fakeVector{err: errors.New("vector store down")}
	scraper := &fakeScraper{pages: map[string]*ScrapeResult{
		"https://example.com/docs": {URL: "https://example.com/docs", Title: "Docs", Content: "doc body", ScrapedAt: time.Now()},
	}}
	r := NewRetriever(vector, scraper, Config{CrawlURLs: []string{"https://example.com/docs"}})

	out := r.Retrieve(context.Background(), "latest updates")

	require.Len(t, out.Results, 1)
	assert.Equal(t, "partial knowledge source failure", out.Warning)
}

func TestRetrieveCitations(t *testing.T) {
	now := time.Now()
	hits := make([]VectorHit, 0, 7)
	for i := 0; i < 7; i++ {
		hits = append(hits, VectorHit{
			ID:         string(rune('a' + i)),
			Title:      "Article " + string(rune('A'+i)),
			Content:    strings.Repeat(string(rune('a'+i)), 40),
			Category:   "support",
			Similarity: 0.9 - float64(i)*0.05,
			UpdatedAt:  now,
		})
	}
	scraper := &fakeScraper{pages: map[string]*ScrapeResult{
		"https://example.com/news": {URL: "https://example.com/news", Title: "News", Content: "news body", ScrapedAt: now},
	}}
	r := NewRetriever(&fakeVector{hits: hits}, scraper, Config{CrawlURLs: []string{"https://example.com/news"}})

	out := r.Retrieve(context.Background(), "latest news")

	require.Len(t, out.Citations, maxCitations)
	for i, cite := range out.Citations {
		assert.Equal(t, i+1, cite.Index)
		assert.GreaterOrEqual(t, cite.Relevance, 0.0)
		assert.LessOrEqual(t, cite.Relevance, 1.0)
		switch cite.Type {
		case models.CitationExternal:
			assert.NotEmpty(t, cite.URL)
			assert.False(t, cite.AccessedAt.IsZero())
		case models.CitationInternal:
			assert.Equal(t, "support", cite.Source)
			assert.Empty(t, cite.URL)
		default:
			t.Fatalf("unexpected citation type %q", cite.Type)
		}
	}
}

func TestRetrieveNilSources(t *testing.T) {
	r := NewRetriever(nil, nil, Config{})
	out := r.Retrieve(context.Background(), "anything")
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Warning)
}

func TestFingerprintPrefix(t *testing.T) {
	long := strings.Repeat("x", 600)
	assert.Equal(t, fingerprint(long), fingerprint(long[:500]+"different tail"))
	assert.NotEqual(t, fingerprint("alpha"), fingerprint("beta"))
	assert.Equal(t, fingerprint("MiXeD"), fingerprint("mixed"))
}
