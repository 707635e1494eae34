package coordinator

import (
	"strings"
	"unicode"
)

// technicalTerms mark a query as technical for complexity scoring.
var technicalTerms = []string{
	"api", "webhook", "endpoint", "signature", "token", "oauth", "ssl", "tls",
	"database", "query", "index", "migration", "deploy", "deployment", "docker",
	"kubernetes", "error", "exception", "timeout", "latency", "debug", "integration",
	"sdk", "schema", "encryption", "certificate", "rate limit",
}

// comparisonTerms mark a query as comparative.
var comparisonTerms = []string{
	"compare", "comparison", "versus", " vs ", "difference", "better", "best",
	"tradeoff", "trade-off", "pros and cons", "alternative",
}

// referenceTerms suggest the query leans on earlier conversation turns.
var referenceTerms = []string{
	"that", "it", "this", "those", "previous", "earlier", "before", "again",
	"you said", "you mentioned", "the same",
}

const longQueryWords = 15

// plan is the execution strategy derived for one query.
type plan struct {
	complexity    float64
	collaboration bool
	parallel      bool
}

// complexityOf scores a query in [0.2, 1.0]. Each signal contributes a flat
// 0.2 on top of the 0.2 base.
func complexityOf(query string, hasHistory bool) float64 {
	normalized := strings.ToLower(query)

	score := 0.2
	if containsAny(normalized, technicalTerms) {
		score += 0.2
	}
	if containsAny(normalized, comparisonTerms) {
		score += 0.2
	}
	if wordCount(normalized) > longQueryWords {
		score += 0.2
	}
	if hasHistory && referencesHistory(normalized) {
		score += 0.2
	}
	return score
}

// referencesHistory matches single reference terms on word boundaries so
// "it" does not fire inside "with", and multi-word terms as substrings.
func referencesHistory(normalized string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		words[strings.Trim(w, ".,!?;:")] = true
	}
	for _, term := range referenceTerms {
		if strings.ContainsRune(term, ' ') {
			if strings.Contains(normalized, term) {
				return true
			}
		} else if words[term] {
			return true
		}
	}
	return false
}

// buildPlan decides collaboration and parallelism. Agents run in parallel
// only when collaborating and their tool sets do not overlap, so no two
// agents contend for the same external resource.
func buildPlan(query string, hasHistory bool, toolSets [][]string) plan {
	p := plan{complexity: complexityOf(query, hasHistory)}
	p.collaboration = p.complexity >= 0.6 || len(toolSets) > 1
	p.parallel = p.collaboration && len(toolSets) > 1 && disjointToolSets(toolSets)
	return p
}

// disjointToolSets reports whether no tool appears in more than one set.
func disjointToolSets(sets [][]string) bool {
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, tool := range set {
			if seen[tool] {
				return false
			}
			seen[tool] = true
		}
	}
	return true
}

func containsAny(normalized string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(normalized, term) {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	}))
}
