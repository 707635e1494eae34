package knowledge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// maxScrapeBody caps how much of a page is read (1 MiB).
const maxScrapeBody = 1 << 20

// HTTPScraper fetches page content over HTTP with an allow-list and a TTL
// cache. Responses are reduced to main text content.
type HTTPScraper struct {
	httpClient     *http.Client
	cache          *scrapeCache
	allowedDomains []string
}

// HTTPScraperConfig configures the scraper.
type HTTPScraperConfig struct {
	// AllowedDomains restricts scrape targets. Empty means allow all.
	AllowedDomains []string
	// CacheTTL for scraped pages (default 10 minutes).
	CacheTTL time.Duration
	// Timeout for a single fetch (default 15s).
	Timeout time.Duration
}

// NewHTTPScraper creates the HTTP scraper capability.
func NewHTTPScraper(cfg HTTPScraperConfig) *HTTPScraper {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPScraper{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		cache:          newScrapeCache(cfg.CacheTTL),
		allowedDomains: cfg.AllowedDomains,
	}
}

// Scrape fetches a URL, serving from cache when fresh.
func (s *HTTPScraper) Scrape(ctx context.Context, rawURL string) (*ScrapeResult, error) {
	if err := s.checkDomain(rawURL); err != nil {
		return nil, err
	}

	if cached, ok := s.cache.get(rawURL); ok {
		return &cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html, text/markdown, text/plain")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, models.WrapKind(models.ErrKindTimeout, err)
		}
		return nil, models.WrapKind(models.ErrKindProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, models.NewKindError(models.ErrKindRateLimited,
			fmt.Sprintf("HTTP 429 for %s", rawURL))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewKindError(models.ErrKindProviderError,
			fmt.Sprintf("HTTP %d for %s", resp.StatusCode, rawURL))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	title, content := extractMainContent(string(body))
	result := ScrapeResult{
		URL:       rawURL,
		Title:     title,
		Content:   content,
		ScrapedAt: time.Now(),
	}
	s.cache.set(rawURL, result)
	return &result, nil
}

// checkDomain enforces the allow-list.
func (s *HTTPScraper) checkDomain(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return models.NewKindError(models.ErrKindInvalidInput, "invalid scrape URL: "+rawURL)
	}
	if len(s.allowedDomains) == 0 {
		return nil
	}
	host := strings.ToLower(parsed.Hostname())
	for _, domain := range s.allowedDomains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return nil
		}
	}
	return models.NewKindError(models.ErrKindInvalidInput,
		fmt.Sprintf("domain %q not in scrape allow-list", host))
}

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style|nav|header|footer)[^>]*>.*?</(script|style|nav|header|footer)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

// extractMainContent reduces an HTML or markdown page to title + text.
func extractMainContent(body string) (title, content string) {
	if m := titleRe.FindStringSubmatch(body); m != nil {
		title = strings.TrimSpace(m[1])
	}

	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		body = scriptRe.ReplaceAllString(body, "")
		body = tagRe.ReplaceAllString(body, "\n")
	}

	// Markdown fallback: first heading becomes the title.
	if title == "" {
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "#") {
				title = strings.TrimSpace(strings.TrimLeft(line, "# "))
				break
			}
		}
	}

	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	content = blankRe.ReplaceAllString(strings.Join(kept, "\n"), "\n\n")
	return title, content
}
