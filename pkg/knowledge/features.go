package knowledge

import (
	"regexp"
	"strings"
)

// Features classifies a query to steer retrieval strategy.
type Features struct {
	Temporal   bool // asks about recent/current state
	Specific   bool // asks for steps, guides, examples
	Technical  bool // mentions APIs, code, integration
	Comparison bool // asks to compare alternatives
}

var yearToken = regexp.MustCompile(`\b20\d{2}\b`)

var (
	temporalTerms   = []string{"latest", "current", "recent", "new", "updated"}
	specificTerms   = []string{"how to", "step by step", "guide", "tutorial", "example"}
	technicalTerms  = []string{"api", "webhook", "integration", "code", "implementation"}
	comparisonTerms = []string{"compare", "versus", "vs", "difference", "better"}
)

// AnalyzeQuery computes retrieval features from the raw query text.
func AnalyzeQuery(query string) Features {
	q := strings.ToLower(query)
	return Features{
		Temporal:   containsAny(q, temporalTerms) || yearToken.MatchString(q),
		Specific:   containsAny(q, specificTerms),
		Technical:  containsAny(q, technicalTerms),
		Comparison: containsAny(q, comparisonTerms),
	}
}

func containsAny(q string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}

// VectorLimit returns how many vector hits to request.
func (f Features) VectorLimit() int {
	if f.Technical {
		return 10
	}
	return 5
}

// ScrapeLimit returns how many URLs to scrape when scraping is engaged.
func (f Features) ScrapeLimit() int {
	if f.Comparison {
		return 5
	}
	return 3
}
