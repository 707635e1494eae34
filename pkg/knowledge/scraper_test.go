package knowledge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/pkg/models"
)

func TestScrapeHTMLPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><head><title>Release Notes</title>
			<script>ignored()</script></head>
			<body><nav>menu</nav><p>Version 2 adds webhooks.</p></body></html>`))
	}))
	defer server.Close()

	s := NewHTTPScraper(HTTPScraperConfig{})
	result, err := s.Scrape(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Release Notes", result.Title)
	assert.Contains(t, result.Content, "Version 2 adds webhooks.")
	assert.NotContains(t, result.Content, "ignored()")
	assert.NotContains(t, result.Content, "menu")
	assert.False(t, result.ScrapedAt.IsZero())
}

func TestScrapeMarkdownTitleFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("# Getting Started\n\nInstall the CLI first."))
	}))
	defer server.Close()

	s := NewHTTPScraper(HTTPScraperConfig{})
	result, err := s.Scrape(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Getting Started", result.Title)
	assert.Contains(t, result.Content, "Install the CLI first.")
}

func TestScrapeCacheHit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte("cached body"))
	}))
	defer server.Close()

	s := NewHTTPScraper(HTTPScraperConfig{CacheTTL: time.Minute})

	_, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	_, err = s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
}

func TestScrapeCacheExpiry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte("body"))
	}))
	defer server.Close()

	s := NewHTTPScraper(HTTPScraperConfig{CacheTTL: time.Nanosecond})

	_, err := s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = s.Scrape(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
}

func TestScrapeDomainAllowList(t *testing.T) {
	s := NewHTTPScraper(HTTPScraperConfig{AllowedDomains: []string{"example.com"}})

	_, err := s.Scrape(context.Background(), "https://evil.test/page")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindInvalidInput, models.KindOf(err))

	assert.NoError(t, s.checkDomain("https://example.com/page"))
	assert.NoError(t, s.checkDomain("https://docs.example.com/page"))
	assert.Error(t, s.checkDomain("https://notexample.com/page"))
	assert.Error(t, s.checkDomain("not a url"))
}

func TestScrapeErrorStatuses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "limited") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := NewHTTPScraper(HTTPScraperConfig{})

	_, err := s.Scrape(context.Background(), server.URL+"/limited")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindRateLimited, models.KindOf(err))

	_, err = s.Scrape(context.Background(), server.URL+"/missing")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindProviderError, models.KindOf(err))
}
